// Package marshal turns Banner's flat section list into the normalized
// courses, sections, subjects, campuses, buildings and rooms of a snapshot.
// It does no I/O.
package marshal

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/catalog"
)

// specialTopicsMarkers flag a course as special topics when found in its
// title, case-insensitively.
var specialTopicsMarkers = []string{"special topics", "special topic"}

// topicAttributes are section attribute codes Banner uses for topic courses.
var topicAttributes = map[string]bool{
	"TOPC": true,
	"STPC": true,
}

// Result is the marshalled part of a snapshot. Enrichment fields (course
// descriptions, requisites, full titles) are left empty.
type Result struct {
	Courses    []catalog.Course
	Sections   map[string][]catalog.Section
	Subjects   []catalog.Subject
	Campuses   []catalog.Campus
	Buildings  []catalog.Building
	Rooms      []catalog.Room
	Attributes []catalog.Attribute

	// DroppedMeetings counts meetings without a usable start or end time.
	DroppedMeetings int
}

// SpecialTopics lists the register keys of special topics courses.
func (r *Result) SpecialTopics() []string {
	var keys []string
	for _, c := range r.Courses {
		if c.SpecialTopics {
			keys = append(keys, c.RegisterKey())
		}
	}
	return keys
}

type builder struct {
	result *Result

	campusCodes map[string]string
	buildings   map[string]*catalog.Building
	rooms       map[string]*catalog.Room
	attributes  map[string]string
	subjects    map[string]string
}

// Marshal groups records by course. Output slices are sorted by natural key
// so the same input always marshals identically.
func Marshal(records []banner.Record) *Result {
	b := &builder{
		result:      &Result{Sections: make(map[string][]catalog.Section)},
		campusCodes: make(map[string]string),
		buildings:   make(map[string]*catalog.Building),
		rooms:       make(map[string]*catalog.Room),
		attributes:  make(map[string]string),
		subjects:    make(map[string]string),
	}

	var keys []string
	groups := make(map[string][]banner.Record)
	for _, r := range records {
		key := catalog.RegisterKey(r.Subject, r.CourseNumber)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r)
	}
	sort.Strings(keys)

	xlists := crossLists(records)
	for _, key := range keys {
		group := groups[key]
		b.result.Courses = append(b.result.Courses, b.course(group))
		sections := make([]catalog.Section, 0, len(group))
		for _, r := range group {
			sections = append(sections, b.section(r, xlists))
		}
		sort.Slice(sections, func(i, j int) bool { return sections[i].CRN < sections[j].CRN })
		b.result.Sections[key] = sections
	}

	b.finish()
	return b.result
}

func (b *builder) course(group []banner.Record) catalog.Course {
	first := group[0]
	if name := banner.CleanText(first.SubjectDescription); name != "" {
		b.subjects[first.Subject] = name
	} else if _, ok := b.subjects[first.Subject]; !ok {
		b.subjects[first.Subject] = first.Subject
	}

	course := catalog.Course{
		Subject:      first.Subject,
		CourseNumber: first.CourseNumber,
		Name:         banner.CleanText(first.CourseTitle),
		Attributes:   []string{},
	}
	course.MinCredits, course.MaxCredits = credits(first)
	course.SpecialTopics = isSpecialTopics(group)
	if course.SpecialTopics {
		course.Name = catalog.SpecialTopicsName
	}

	seen := make(map[string]bool)
	for _, r := range group {
		for _, a := range r.SectionAttributes {
			code := strings.TrimSpace(a.Code)
			if code == "" {
				continue
			}
			b.attributes[code] = banner.CleanText(a.Description)
			if !seen[code] {
				seen[code] = true
				course.Attributes = append(course.Attributes, code)
			}
		}
	}
	sort.Strings(course.Attributes)

	return course
}

func credits(r banner.Record) (lo, hi float64) {
	switch {
	case r.CreditHourLow != nil:
		lo = *r.CreditHourLow
	case r.CreditHourHigh != nil:
		lo = *r.CreditHourHigh
	}
	hi = lo
	if r.CreditHourHigh != nil && *r.CreditHourHigh > lo {
		hi = *r.CreditHourHigh
	}
	return lo, hi
}

func isSpecialTopics(group []banner.Record) bool {
	title := banner.CleanText(group[0].CourseTitle)
	lower := strings.ToLower(title)
	for _, marker := range specialTopicsMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, r := range group {
		if banner.CleanText(r.CourseTitle) != title {
			return true
		}
		for _, a := range r.SectionAttributes {
			if topicAttributes[strings.TrimSpace(a.Code)] {
				return true
			}
		}
	}
	return false
}

// crossLists maps each CRN to the other CRNs of its cross-list group.
func crossLists(records []banner.Record) map[string][]string {
	groups := make(map[string][]string)
	for _, r := range records {
		if r.CrossList == nil || strings.TrimSpace(*r.CrossList) == "" {
			continue
		}
		id := strings.TrimSpace(*r.CrossList)
		groups[id] = append(groups[id], r.CRN)
	}

	out := make(map[string][]string)
	for _, crns := range groups {
		sort.Strings(crns)
		for _, crn := range crns {
			others := make([]string, 0, len(crns)-1)
			for _, other := range crns {
				if other != crn {
					others = append(others, other)
				}
			}
			out[crn] = others
		}
	}
	return out
}

func (b *builder) section(r banner.Record, xlists map[string][]string) catalog.Section {
	campus := catalog.CanonicalCampus(r.CampusDescription)
	b.campus(campus, r)

	section := catalog.Section{
		CRN:               r.CRN,
		Name:              banner.CleanText(r.CourseTitle),
		SectionNumber:     r.SequenceNumber,
		SeatCapacity:      max(r.MaximumEnrollment, 0),
		SeatRemaining:     r.SeatsAvailable,
		WaitlistCapacity:  max(r.WaitCapacity, 0),
		WaitlistRemaining: r.WaitAvailable,
		ClassType:         banner.CleanText(r.ScheduleTypeDescription),
		Honors:            isHonors(r),
		Campus:            campus,
		Faculty:           faculty(r),
		Xlist:             xlists[r.CRN],
		MeetingTimes:      []catalog.MeetingTime{},
	}
	if section.Xlist == nil {
		section.Xlist = []string{}
	}

	for _, mf := range r.MeetingsFaculty {
		meeting, ok := b.meeting(campus, r.CRN, mf.MeetingTime)
		if !ok {
			b.result.DroppedMeetings++
			continue
		}
		section.MeetingTimes = append(section.MeetingTimes, meeting)
	}

	return section
}

func isHonors(r banner.Record) bool {
	for _, a := range r.SectionAttributes {
		if strings.Contains(a.Description, "Honors") {
			return true
		}
	}
	return false
}

func faculty(r banner.Record) []string {
	names := []string{}
	for _, f := range r.Faculty {
		if name := banner.CleanText(f.DisplayName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// campus records a campus and its code, preferring a code Banner reports on
// one of the record's meetings.
func (b *builder) campus(name string, r banner.Record) {
	if code := b.campusCodes[name]; code != "" && code != catalog.CampusCode(name) {
		return
	}
	code := catalog.CampusCode(name)
	for _, mf := range r.MeetingsFaculty {
		mt := mf.MeetingTime
		if mt.Campus != nil && mt.CampusDescription != nil && *mt.Campus != "" &&
			catalog.CanonicalCampus(*mt.CampusDescription) == name {
			code = strings.TrimSpace(*mt.Campus)
			break
		}
	}
	b.campusCodes[name] = code
}

// ParseTime parses Banner's "HHMM" clock strings. The result keeps the digits
// as written: "1430" is 1430.
func ParseTime(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	t, err := strconv.Atoi(s)
	if err != nil || t/100 > 23 || t%100 > 59 {
		return 0, false
	}
	return t, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (b *builder) meeting(campus, crn string, mt banner.MeetingTime) (catalog.MeetingTime, bool) {
	start, ok := ParseTime(deref(mt.BeginTime))
	if !ok {
		return catalog.MeetingTime{}, false
	}
	end, ok := ParseTime(deref(mt.EndTime))
	if !ok {
		return catalog.MeetingTime{}, false
	}

	meeting := catalog.MeetingTime{
		Days:      mt.Days(),
		StartTime: start,
		EndTime:   end,
		Final:     mt.IsFinal(),
	}
	if meeting.Final && mt.StartDate != "" {
		date := mt.StartDate
		meeting.FinalDate = &date
	}

	buildingCode := deref(mt.Building)
	buildingName := banner.CleanText(deref(mt.BuildingDescription))
	if buildingCode == "" || buildingName == "" {
		return meeting, true
	}
	meeting.Building = buildingName
	meeting.BuildingCode = buildingCode

	buildingKey := campus + "/" + buildingCode
	if _, ok := b.buildings[buildingKey]; !ok {
		b.buildings[buildingKey] = &catalog.Building{Code: buildingCode, Name: buildingName, Campus: campus}
	}

	roomCode := deref(mt.Room)
	if roomCode == "" {
		return meeting, true
	}
	meeting.Room = &roomCode

	roomKey := buildingKey + "/" + roomCode
	room, ok := b.rooms[roomKey]
	if !ok {
		room = &catalog.Room{Code: roomCode, BuildingCode: buildingCode, Campus: campus, Schedule: []catalog.Booking{}}
		b.rooms[roomKey] = room
	}
	if !meeting.Final {
		room.Schedule = append(room.Schedule, catalog.Booking{CRN: crn, Days: meeting.Days, StartTime: start, EndTime: end})
	}
	return meeting, true
}

func (b *builder) finish() {
	r := b.result

	for code, name := range b.subjects {
		r.Subjects = append(r.Subjects, catalog.Subject{Code: code, Name: name})
	}
	sort.Slice(r.Subjects, func(i, j int) bool { return r.Subjects[i].Code < r.Subjects[j].Code })

	for name, code := range b.campusCodes {
		r.Campuses = append(r.Campuses, catalog.Campus{Code: code, Name: name})
	}
	sort.Slice(r.Campuses, func(i, j int) bool { return r.Campuses[i].Name < r.Campuses[j].Name })

	for _, building := range b.buildings {
		r.Buildings = append(r.Buildings, *building)
	}
	sort.Slice(r.Buildings, func(i, j int) bool {
		if r.Buildings[i].Campus != r.Buildings[j].Campus {
			return r.Buildings[i].Campus < r.Buildings[j].Campus
		}
		return r.Buildings[i].Code < r.Buildings[j].Code
	})

	for _, room := range b.rooms {
		sort.SliceStable(room.Schedule, func(i, j int) bool {
			a, c := room.Schedule[i], room.Schedule[j]
			if a.StartTime != c.StartTime {
				return a.StartTime < c.StartTime
			}
			return a.CRN < c.CRN
		})
		r.Rooms = append(r.Rooms, *room)
	}
	sort.Slice(r.Rooms, func(i, j int) bool {
		a, c := r.Rooms[i], r.Rooms[j]
		if a.Campus != c.Campus {
			return a.Campus < c.Campus
		}
		if a.BuildingCode != c.BuildingCode {
			return a.BuildingCode < c.BuildingCode
		}
		return a.Code < c.Code
	})

	for code, description := range b.attributes {
		r.Attributes = append(r.Attributes, catalog.Attribute{Code: code, Description: description})
	}
	sort.Slice(r.Attributes, func(i, j int) bool { return r.Attributes[i].Code < r.Attributes[j].Code })
}
