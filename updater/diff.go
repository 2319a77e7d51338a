// Package updater polls Banner for seat and waitlist changes of a term that
// is already stored, without a full scrape or reconciliation.
package updater

import (
	"sort"

	"github.com/sandboxnu/searchneu-sub001/catalog"
)

// Counts are the seat figures compared between storage and Banner.
type Counts struct {
	SeatCapacity      int
	SeatRemaining     int
	WaitlistCapacity  int
	WaitlistRemaining int
}

func countsOf(s catalog.Section) Counts {
	return Counts{
		SeatCapacity:      s.SeatCapacity,
		SeatRemaining:     s.SeatRemaining,
		WaitlistCapacity:  s.WaitlistCapacity,
		WaitlistRemaining: s.WaitlistRemaining,
	}
}

// State is what storage holds for a term.
type State struct {
	// Sections by CRN.
	Sections map[string]Counts
	// Courses holds the register keys of stored courses.
	Courses map[string]bool
}

// Change is a stored section whose counts differ from Banner's.
type Change struct {
	CRN    string
	Before Counts
	After  Counts
}

// NewSection is a section Banner lists that storage lacks, filed under a
// stored course.
type NewSection struct {
	CourseKey string
	Section   catalog.Section
}

// Report classifies the differences for one term. The count buckets overlap
// (a section whose seats opened up also had its seats change) but never
// contain a CRN that is also Missing or New. All CRN lists are sorted.
type Report struct {
	Term string

	SeatsAvailable          []string
	SeatsChanged            []string
	WaitlistAvailable       []string
	WaitlistChanged         []string
	CapacityChanged         []string
	WaitlistCapacityChanged []string
	Changes                 map[string]Change

	Missing  []string
	New      []NewSection
	Unrooted []string
}

// Empty reports whether nothing changed.
func (r *Report) Empty() bool {
	return len(r.Changes) == 0 && len(r.Missing) == 0 && len(r.New) == 0 && len(r.Unrooted) == 0
}

// NewCRNs lists the CRNs of the rooted new sections.
func (r *Report) NewCRNs() []string {
	crns := make([]string, len(r.New))
	for i, n := range r.New {
		crns[i] = n.Section.CRN
	}
	return crns
}

// Diff compares stored state with freshly scraped sections, keyed by course
// register key. It does not modify either input.
func Diff(term string, stored State, fresh map[string][]catalog.Section) *Report {
	report := &Report{Term: term, Changes: make(map[string]Change)}
	seen := make(map[string]bool)

	keys := make([]string, 0, len(fresh))
	for key := range fresh {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, section := range fresh[key] {
			seen[section.CRN] = true
			after := countsOf(section)

			before, ok := stored.Sections[section.CRN]
			if !ok {
				if stored.Courses[key] {
					report.New = append(report.New, NewSection{CourseKey: key, Section: section})
				} else {
					report.Unrooted = append(report.Unrooted, section.CRN)
				}
				continue
			}
			if before == after {
				continue
			}

			report.Changes[section.CRN] = Change{CRN: section.CRN, Before: before, After: after}
			if before.SeatRemaining != after.SeatRemaining {
				report.SeatsChanged = append(report.SeatsChanged, section.CRN)
				if before.SeatRemaining <= 0 && after.SeatRemaining > 0 {
					report.SeatsAvailable = append(report.SeatsAvailable, section.CRN)
				}
			}
			if before.WaitlistRemaining != after.WaitlistRemaining {
				report.WaitlistChanged = append(report.WaitlistChanged, section.CRN)
				if before.WaitlistRemaining <= 0 && after.WaitlistRemaining > 0 {
					report.WaitlistAvailable = append(report.WaitlistAvailable, section.CRN)
				}
			}
			if before.SeatCapacity != after.SeatCapacity {
				report.CapacityChanged = append(report.CapacityChanged, section.CRN)
			}
			if before.WaitlistCapacity != after.WaitlistCapacity {
				report.WaitlistCapacityChanged = append(report.WaitlistCapacityChanged, section.CRN)
			}
		}
	}

	for crn := range stored.Sections {
		if !seen[crn] {
			report.Missing = append(report.Missing, crn)
		}
	}

	for _, list := range [][]string{
		report.SeatsAvailable, report.SeatsChanged, report.WaitlistAvailable, report.WaitlistChanged,
		report.CapacityChanged, report.WaitlistCapacityChanged, report.Missing, report.Unrooted,
	} {
		sort.Strings(list)
	}
	sort.Slice(report.New, func(i, j int) bool { return report.New[i].Section.CRN < report.New[j].Section.CRN })

	return report
}
