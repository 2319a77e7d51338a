// Package catalogtest provides snapshot fixtures for tests.
package catalogtest

import "github.com/sandboxnu/searchneu-sub001/catalog"

func ptr(s string) *string { return &s }

// Snapshot returns a small, valid snapshot for term with two ordinary courses
// (CS2500 with two sections, CS2510 requiring CS2500) and one special topics
// course.
func Snapshot(term string) *catalog.Snapshot {
	return &catalog.Snapshot{
		Version: catalog.Version,
		Term:    catalog.Term{Code: term, Description: "Spring 2025 Semester"},
		Courses: []catalog.Course{
			{
				Subject:      "CS",
				CourseNumber: "2500",
				Name:         "Fundamentals of Computer Science 1",
				Description:  "Introduces the fundamental ideas of computing.",
				MinCredits:   4,
				MaxCredits:   4,
				Attributes:   []string{"NCFQ"},
				Prereqs:      catalog.None(),
				Coreqs:       catalog.And(catalog.CourseRef("CS", "2501")),
				Postreqs:     catalog.Or(catalog.CourseRef("CS", "2510")),
			},
			{
				Subject:      "CS",
				CourseNumber: "2510",
				Name:         "Fundamentals of Computer Science 2",
				MinCredits:   4,
				MaxCredits:   4,
				Prereqs: catalog.Or(
					catalog.CourseRef("CS", "2500"),
					catalog.Test("AP Computer Science A", 4),
				),
			},
			{
				Subject:       "CS",
				CourseNumber:  "4973",
				SpecialTopics: true,
				Name:          catalog.SpecialTopicsName,
				MinCredits:    4,
				MaxCredits:    4,
			},
		},
		Sections: map[string][]catalog.Section{
			"CS2500": {
				{
					CRN:               "30001",
					Name:              "Fundamentals of Computer Science 1",
					SectionNumber:     "01",
					SeatCapacity:      100,
					SeatRemaining:     10,
					WaitlistCapacity:  10,
					WaitlistRemaining: 10,
					ClassType:         "Lecture",
					Campus:            "Boston",
					Faculty:           []string{"Lerner, Benjamin"},
					Xlist:             []string{},
					MeetingTimes: []catalog.MeetingTime{
						{Building: "West Village H", BuildingCode: "WVH", Room: ptr("210"), Days: []int{1, 3, 4}, StartTime: 1030, EndTime: 1135},
						{Building: "West Village H", BuildingCode: "WVH", Room: ptr("210"), Days: []int{2}, StartTime: 800, EndTime: 1000, Final: true, FinalDate: ptr("04/22/2025")},
					},
				},
				{
					CRN:               "30002",
					Name:              "Fundamentals of Computer Science 1",
					SectionNumber:     "02",
					SeatCapacity:      100,
					SeatRemaining:     0,
					WaitlistCapacity:  10,
					WaitlistRemaining: 3,
					ClassType:         "Lecture",
					Campus:            "Boston",
					Faculty:           []string{"Razzaq, Leena"},
					Xlist:             []string{},
					MeetingTimes: []catalog.MeetingTime{
						{Building: "Richards Hall", BuildingCode: "RI", Room: ptr("300"), Days: []int{1, 3, 4}, StartTime: 1335, EndTime: 1440},
					},
				},
			},
			"CS2510": {
				{
					CRN:              "30003",
					Name:             "Fundamentals of Computer Science 2",
					SectionNumber:    "01",
					SeatCapacity:     80,
					SeatRemaining:    20,
					ClassType:        "Lecture",
					Honors:           true,
					Campus:           "Boston",
					Faculty:          []string{},
					Xlist:            []string{},
					MeetingTimes:     []catalog.MeetingTime{},
					WaitlistCapacity: 0,
				},
			},
			"CS4973": {
				{
					CRN:           "30004",
					Name:          "Topics: Compilers",
					Description:   "Special topic on compilers.",
					SectionNumber: "01",
					SeatCapacity:  30,
					SeatRemaining: 5,
					ClassType:     "Lecture",
					Campus:        "Boston",
					Faculty:       []string{"Holtzen, Steven"},
					Xlist:         []string{},
					MeetingTimes: []catalog.MeetingTime{
						{Building: "West Village H", BuildingCode: "WVH", Room: ptr("108"), Days: []int{2, 5}, StartTime: 1430, EndTime: 1610},
					},
					Prereqs: catalog.And(catalog.CourseRef("CS", "3500")),
				},
			},
		},
		Subjects:  []catalog.Subject{{Code: "CS", Name: "Computer Science"}},
		Campuses:  []catalog.Campus{{Code: "BOS", Name: "Boston"}},
		Buildings: []catalog.Building{{Code: "WVH", Name: "West Village H", Campus: "Boston"}, {Code: "RI", Name: "Richards Hall", Campus: "Boston"}},
		Rooms: []catalog.Room{
			{Code: "210", BuildingCode: "WVH", Campus: "Boston", Schedule: []catalog.Booking{{CRN: "30001", Days: []int{1, 3, 4}, StartTime: 1030, EndTime: 1135}}},
			{Code: "108", BuildingCode: "WVH", Campus: "Boston", Schedule: []catalog.Booking{{CRN: "30004", Days: []int{2, 5}, StartTime: 1430, EndTime: 1610}}},
			{Code: "300", BuildingCode: "RI", Campus: "Boston", Schedule: []catalog.Booking{{CRN: "30002", Days: []int{1, 3, 4}, StartTime: 1335, EndTime: 1440}}},
		},
		Attributes: []catalog.Attribute{{Code: "NCFQ", Description: "NUpath Formal/Quant Reasoning"}},
	}
}
