// Package catalog holds the normalized term snapshot produced by a scrape and
// consumed by the cache, the reconciler and the updater.
package catalog

// Version of the snapshot layout. Bump whenever a field changes meaning so
// that stale cache artifacts are rejected instead of coerced.
const Version = 3

// SpecialTopicsName replaces the course-level name of special topics courses;
// the real names live on the sections.
const SpecialTopicsName = "Special Topics"

type Term struct {
	Code        string `json:"code" validate:"required,numeric"`
	Description string `json:"description" validate:"required"`
}

type Subject struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type Campus struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type Building struct {
	Code   string `json:"code" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Campus string `json:"campus" validate:"required"`
}

// Booking is one section meeting held in a room.
type Booking struct {
	CRN       string `json:"crn" validate:"crn"`
	Days      []int  `json:"days" validate:"dive,min=0,max=6"`
	StartTime int    `json:"startTime" validate:"hhmm"`
	EndTime   int    `json:"endTime" validate:"hhmm"`
}

type Room struct {
	Code         string    `json:"code" validate:"required"`
	BuildingCode string    `json:"buildingCode" validate:"required"`
	Campus       string    `json:"campus" validate:"required"`
	Schedule     []Booking `json:"schedule" validate:"dive"`
}

type Attribute struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
}

type Course struct {
	Subject       string    `json:"subject" validate:"required"`
	CourseNumber  string    `json:"courseNumber" validate:"len=4"`
	SpecialTopics bool      `json:"specialTopics"`
	Name          string    `json:"name" validate:"required"`
	Description   string    `json:"description"`
	MinCredits    float64   `json:"minCredits" validate:"gte=0"`
	MaxCredits    float64   `json:"maxCredits" validate:"gtefield=MinCredits"`
	Attributes    []string  `json:"attributes"`
	Prereqs       Requisite `json:"prereqs"`
	Coreqs        Requisite `json:"coreqs"`
	Postreqs      Requisite `json:"postreqs"`
}

// RegisterKey is the key a course's sections are filed under.
func (c Course) RegisterKey() string {
	return RegisterKey(c.Subject, c.CourseNumber)
}

func RegisterKey(subject, courseNumber string) string {
	return subject + courseNumber
}

// MeetingTime times are 24-hour HHMM integers (1430 is 2:30 PM). Room is nil
// for meetings without an assigned room.
type MeetingTime struct {
	Building     string  `json:"building"`
	BuildingCode string  `json:"buildingCode"`
	Room         *string `json:"room"`
	Days         []int   `json:"days" validate:"dive,min=0,max=6"`
	StartTime    int     `json:"startTime" validate:"hhmm"`
	EndTime      int     `json:"endTime" validate:"hhmm"`
	Final        bool    `json:"final"`
	FinalDate    *string `json:"finalDate,omitempty"`
}

// Section name, description and requisites are only meaningful for special
// topics courses.
type Section struct {
	CRN               string        `json:"crn" validate:"crn"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	SectionNumber     string        `json:"sectionNumber"`
	SeatCapacity      int           `json:"seatCapacity" validate:"gte=0"`
	SeatRemaining     int           `json:"seatRemaining"`
	WaitlistCapacity  int           `json:"waitlistCapacity" validate:"gte=0"`
	WaitlistRemaining int           `json:"waitlistRemaining"`
	ClassType         string        `json:"classType"`
	Honors            bool          `json:"honors"`
	Campus            string        `json:"campus" validate:"required"`
	Faculty           []string      `json:"faculty"`
	Xlist             []string      `json:"xlist" validate:"dive,crn"`
	MeetingTimes      []MeetingTime `json:"meetingTimes" validate:"dive"`
	Prereqs           Requisite     `json:"prereqs"`
	Coreqs            Requisite     `json:"coreqs"`
}

// Snapshot is a complete scrape of one term. It is not modified after the
// orchestrator returns it.
type Snapshot struct {
	Version    int                  `json:"version"`
	Term       Term                 `json:"term"`
	Courses    []Course             `json:"courses" validate:"dive"`
	Sections   map[string][]Section `json:"sections" validate:"dive,keys,required,endkeys,dive"`
	Subjects   []Subject            `json:"subjects" validate:"dive"`
	Campuses   []Campus             `json:"campuses" validate:"dive"`
	Buildings  []Building           `json:"buildings" validate:"dive"`
	Rooms      []Room               `json:"rooms" validate:"dive"`
	Attributes []Attribute          `json:"attributes" validate:"dive"`
}

// SectionCount returns the number of sections across all courses.
func (s *Snapshot) SectionCount() int {
	n := 0
	for _, sections := range s.Sections {
		n += len(sections)
	}
	return n
}

// CRNs returns every section CRN in the snapshot.
func (s *Snapshot) CRNs() []string {
	out := make([]string, 0, s.SectionCount())
	for _, sections := range s.Sections {
		for _, section := range sections {
			out = append(out, section.CRN)
		}
	}
	return out
}
