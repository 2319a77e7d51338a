package banner

import (
	"fmt"

	"github.com/sandboxnu/searchneu-sub001/validation"
)

// Record is one section row of the searchResults endpoint, as Banner sends it.
// Text fields are HTML-escaped upstream.
type Record struct {
	CRN                     string           `json:"courseReferenceNumber" validate:"crn"`
	Term                    string           `json:"term"`
	Subject                 string           `json:"subject" validate:"required"`
	SubjectDescription      string           `json:"subjectDescription"`
	CourseNumber            string           `json:"courseNumber" validate:"required"`
	SequenceNumber          string           `json:"sequenceNumber"`
	CampusDescription       string           `json:"campusDescription"`
	ScheduleTypeDescription string           `json:"scheduleTypeDescription"`
	CourseTitle             string           `json:"courseTitle" validate:"required"`
	MaximumEnrollment       int              `json:"maximumEnrollment"`
	SeatsAvailable          int              `json:"seatsAvailable"`
	WaitCapacity            int              `json:"waitCapacity"`
	WaitAvailable           int              `json:"waitAvailable"`
	CrossList               *string          `json:"crossList"`
	CreditHourLow           *float64         `json:"creditHourLow"`
	CreditHourHigh          *float64         `json:"creditHourHigh"`
	SectionAttributes       []Attribute      `json:"sectionAttributes"`
	Faculty                 []Faculty        `json:"faculty"`
	MeetingsFaculty         []MeetingFaculty `json:"meetingsFaculty"`
}

type Attribute struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Faculty struct {
	DisplayName string `json:"displayName"`
}

type MeetingFaculty struct {
	CRN         string      `json:"courseReferenceNumber"`
	Faculty     []Faculty   `json:"faculty"`
	MeetingTime MeetingTime `json:"meetingTime"`
}

// MeetingTime times are "HHMM" strings or null for unscheduled meetings.
type MeetingTime struct {
	BeginTime              *string `json:"beginTime"`
	EndTime                *string `json:"endTime"`
	Building               *string `json:"building"`
	BuildingDescription    *string `json:"buildingDescription"`
	Room                   *string `json:"room"`
	Campus                 *string `json:"campus"`
	CampusDescription      *string `json:"campusDescription"`
	StartDate              string  `json:"startDate"`
	EndDate                string  `json:"endDate"`
	MeetingType            string  `json:"meetingType"`
	MeetingTypeDescription string  `json:"meetingTypeDescription"`
	Sunday                 bool    `json:"sunday"`
	Monday                 bool    `json:"monday"`
	Tuesday                bool    `json:"tuesday"`
	Wednesday              bool    `json:"wednesday"`
	Thursday               bool    `json:"thursday"`
	Friday                 bool    `json:"friday"`
	Saturday               bool    `json:"saturday"`
}

// FinalMeetingType marks final exam meetings.
const FinalMeetingType = "FNEX"

func (m MeetingTime) IsFinal() bool {
	return m.MeetingType == FinalMeetingType
}

// Days returns the meeting weekdays, 0 for Sunday through 6 for Saturday.
func (m MeetingTime) Days() []int {
	days := make([]int, 0, 7)
	for i, on := range []bool{m.Sunday, m.Monday, m.Tuesday, m.Wednesday, m.Thursday, m.Friday, m.Saturday} {
		if on {
			days = append(days, i)
		}
	}
	return days
}

type searchResults struct {
	Success    bool     `json:"success"`
	TotalCount int      `json:"totalCount"`
	Data       []Record `json:"data"`
}

type codeDescription struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type facultyMeetingTimes struct {
	Fmt []MeetingFaculty `json:"fmt"`
}

// validateRecords checks every record and reports all offenders at once.
func validateRecords(records []Record) error {
	var problems []string
	for i := range records {
		if err := validation.Struct(&records[i]); err != nil {
			problems = append(problems, fmt.Sprintf("record %d (crn %q): %v", i, records[i].CRN, err))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &SchemaError{Endpoint: "searchResults", Problems: problems}
}
