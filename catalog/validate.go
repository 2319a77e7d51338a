package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sandboxnu/searchneu-sub001/validation"
)

var ErrVersionMismatch = errors.New("catalog: snapshot version mismatch")

// ValidationError lists every problem found in a snapshot.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	const limit = 10
	problems := e.Problems
	suffix := ""
	if len(problems) > limit {
		suffix = fmt.Sprintf(" (and %d more)", len(problems)-limit)
		problems = problems[:limit]
	}
	return "catalog: invalid snapshot: " + strings.Join(problems, "; ") + suffix
}

// Validate checks s against the versioned schema: field constraints,
// requisite tree shape, natural-key uniqueness and referential consistency
// between sections, courses, campuses, buildings and rooms.
func Validate(s *Snapshot) error {
	if s == nil {
		return &ValidationError{Problems: []string{"snapshot is nil"}}
	}
	if s.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, s.Version, Version)
	}

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := validation.Struct(s); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				report("%s", f.Error())
			}
		} else {
			report("%v", err)
		}
	}

	courses := make(map[string]Course, len(s.Courses))
	for _, course := range s.Courses {
		key := course.RegisterKey()
		if _, dup := courses[key]; dup {
			report("duplicate course %s", key)
		}
		courses[key] = course
		for name, req := range map[string]Requisite{"prereqs": course.Prereqs, "coreqs": course.Coreqs, "postreqs": course.Postreqs} {
			if err := req.Validate(); err != nil {
				report("course %s %s: %v", key, name, err)
			}
		}
	}

	campuses := make(map[string]bool, len(s.Campuses))
	for _, campus := range s.Campuses {
		if campuses[campus.Name] {
			report("duplicate campus %s", campus.Name)
		}
		campuses[campus.Name] = true
	}

	buildings := make(map[string]bool, len(s.Buildings))
	for _, building := range s.Buildings {
		key := building.Campus + "/" + building.Code
		if buildings[key] {
			report("duplicate building %s", key)
		}
		if !campuses[building.Campus] {
			report("building %s references unknown campus %s", building.Code, building.Campus)
		}
		buildings[key] = true
	}

	rooms := make(map[string]bool, len(s.Rooms))
	for _, room := range s.Rooms {
		building := room.Campus + "/" + room.BuildingCode
		key := building + "/" + room.Code
		if rooms[key] {
			report("duplicate room %s", key)
		}
		if !buildings[building] {
			report("room %s references unknown building %s", room.Code, building)
		}
		rooms[key] = true
	}

	crns := make(map[string]string)
	for key, sections := range s.Sections {
		course, ok := courses[key]
		if !ok {
			report("sections filed under unknown course %s", key)
		}
		for _, section := range sections {
			if other, dup := crns[section.CRN]; dup {
				report("crn %s appears under %s and %s", section.CRN, other, key)
			}
			crns[section.CRN] = key
			if !campuses[section.Campus] {
				report("section %s references unknown campus %s", section.CRN, section.Campus)
			}
			if ok && !course.SpecialTopics && !(section.Prereqs.IsNone() && section.Coreqs.IsNone()) {
				report("section %s carries requisites but %s is not special topics", section.CRN, key)
			}
			for name, req := range map[string]Requisite{"prereqs": section.Prereqs, "coreqs": section.Coreqs} {
				if err := req.Validate(); err != nil {
					report("section %s %s: %v", section.CRN, name, err)
				}
			}
			for _, meeting := range section.MeetingTimes {
				if meeting.BuildingCode != "" && !buildings[section.Campus+"/"+meeting.BuildingCode] {
					report("section %s meets in unknown building %s", section.CRN, meeting.BuildingCode)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
