package db

import (
	"errors"
	"fmt"
	"time"
)

// NUPath is an entry of the fixed NUPath taxonomy. Attribute is the Banner
// section attribute code that marks a course with it.
type NUPath struct {
	Code      string
	Attribute string
	Name      string
}

var NUPaths = []NUPath{
	{Code: "ND", Attribute: "NCND", Name: "Natural and Designed World"},
	{Code: "EI", Attribute: "NCEI", Name: "Creative Expression/Innovation"},
	{Code: "IC", Attribute: "NCIC", Name: "Interpreting Culture"},
	{Code: "FQ", Attribute: "NCFQ", Name: "Formal and Quantitative Reasoning"},
	{Code: "SI", Attribute: "NCSI", Name: "Societies and Institutions"},
	{Code: "AD", Attribute: "NCAD", Name: "Analyzing and Using Data"},
	{Code: "DD", Attribute: "NCDD", Name: "Difference and Diversity"},
	{Code: "ER", Attribute: "NCER", Name: "Ethical Reasoning"},
	{Code: "WF", Attribute: "NCWF", Name: "First Year Writing"},
	{Code: "WD", Attribute: "NCWD", Name: "Advanced Writing in the Disciplines"},
	{Code: "WI", Attribute: "NCWI", Name: "Writing Intensive"},
	{Code: "EX", Attribute: "NCEX", Name: "Integration Experience"},
	{Code: "CE", Attribute: "NCCE", Name: "Capstone Experience"},
}

// DaysMask packs weekdays (0 is Sunday) into a bit set, bit d for day d.
func DaysMask(days []int) int {
	mask := 0
	for _, d := range days {
		if d >= 0 && d <= 6 {
			mask |= 1 << d
		}
	}
	return mask
}

// MaskDays unpacks a DaysMask bit set in ascending day order.
func MaskDays(mask int) []int {
	days := []int{}
	for d := 0; d <= 6; d++ {
		if mask&(1<<d) != 0 {
			days = append(days, d)
		}
	}
	return days
}

var (
	ErrUnresolved    = errors.New("db: unresolved reference")
	ErrTermNotStored = errors.New("db: term not stored")
)

// UnresolvedError is a snapshot row whose foreign key has no stored target.
type UnresolvedError struct {
	Entity string
	Key    string
	From   string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("db: %s references unknown %s %q", e.From, e.Entity, e.Key)
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolved
}

// UploadOptions carries term metadata that is not part of a snapshot.
type UploadOptions struct {
	ActiveUntil *time.Time
}

// UploadStats counts what one upload touched.
type UploadStats struct {
	Term            string
	Campuses        int
	Buildings       int
	Rooms           int
	Subjects        int
	Courses         int
	CourseNUPaths   int
	Sections        int
	MeetingTimes    int
	DeletedSections int64
	DeletedMeetings int64
	StaleCourses    int64
	Duration        time.Duration
}
