package marshal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/banner/bannertest"
	"github.com/sandboxnu/searchneu-sub001/catalog"
)

func strptr(s string) *string { return &s }

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1430", 1430, true},
		{"0800", 800, true},
		{"0000", 0, true},
		{"2359", 2359, true},
		{"2400", 0, false},
		{"1260", 0, false},
		{"830", 0, false},
		{"14:30", 0, false},
		{"", 0, false},
		{"12a0", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMarshalGroupsCourses(t *testing.T) {
	records := []banner.Record{
		bannertest.Record("30002", "CS", "2500", "Fundamentals of Computer Science 1"),
		bannertest.Record("30001", "CS", "2500", "Fundamentals of Computer Science 1"),
		bannertest.Record("30003", "CS", "2510", "Fundamentals of Computer Science 2"),
	}
	for i := range records {
		records[i].SubjectDescription = "Computer Science"
	}
	records[0].SectionAttributes = []banner.Attribute{{Code: "NCFQ", Description: "NUpath Formal/Quant Reasoning"}}

	result := Marshal(records)

	require.Len(t, result.Courses, 2)
	fundies := result.Courses[0]
	assert.Equal(t, "CS2500", fundies.RegisterKey())
	assert.False(t, fundies.SpecialTopics)
	assert.Equal(t, "Fundamentals of Computer Science 1", fundies.Name)
	assert.Equal(t, []string{"NCFQ"}, fundies.Attributes)
	assert.Equal(t, 4.0, fundies.MinCredits)
	assert.Equal(t, 4.0, fundies.MaxCredits)

	sections := result.Sections["CS2500"]
	require.Len(t, sections, 2)
	assert.Equal(t, "30001", sections[0].CRN)
	assert.Equal(t, "30002", sections[1].CRN)
	assert.Len(t, result.Sections["CS2510"], 1)

	assert.Equal(t, []catalog.Subject{{Code: "CS", Name: "Computer Science"}}, result.Subjects)
	assert.Equal(t, []catalog.Campus{{Code: "BOS", Name: "Boston"}}, result.Campuses)
	assert.Equal(t, []catalog.Attribute{{Code: "NCFQ", Description: "NUpath Formal/Quant Reasoning"}}, result.Attributes)
}

func TestMarshalSpecialTopics(t *testing.T) {
	t.Run("divergent titles", func(t *testing.T) {
		result := Marshal([]banner.Record{
			bannertest.Record("30001", "CS", "4973", "Topics: Compilers"),
			bannertest.Record("30002", "CS", "4973", "Topics: Quantum Computing"),
		})
		require.Len(t, result.Courses, 1)
		assert.True(t, result.Courses[0].SpecialTopics)
		assert.Equal(t, catalog.SpecialTopicsName, result.Courses[0].Name)
		assert.Equal(t, "Topics: Compilers", result.Sections["CS4973"][0].Name)
		assert.Equal(t, "Topics: Quantum Computing", result.Sections["CS4973"][1].Name)
		assert.Equal(t, []string{"CS4973"}, result.SpecialTopics())
	})

	t.Run("marker phrase", func(t *testing.T) {
		result := Marshal([]banner.Record{bannertest.Record("30001", "ARTH", "2700", "SPECIAL TOPICS in Art History")})
		assert.True(t, result.Courses[0].SpecialTopics)
	})

	t.Run("topic attribute", func(t *testing.T) {
		r := bannertest.Record("30001", "PHIL", "3000", "Philosophy Seminar")
		r.SectionAttributes = []banner.Attribute{{Code: "TOPC", Description: "Topics Course"}}
		assert.True(t, Marshal([]banner.Record{r}).Courses[0].SpecialTopics)
	})

	t.Run("identical titles", func(t *testing.T) {
		result := Marshal([]banner.Record{
			bannertest.Record("30001", "CS", "3500", "Object-Oriented Design"),
			bannertest.Record("30002", "CS", "3500", "Object-Oriented Design"),
		})
		assert.False(t, result.Courses[0].SpecialTopics)
		assert.Equal(t, "Object-Oriented Design", result.Courses[0].Name)
		assert.Empty(t, result.SpecialTopics())
	})
}

func TestMarshalCrossLists(t *testing.T) {
	a := bannertest.Record("30001", "CS", "4100", "Artificial Intelligence")
	b := bannertest.Record("30002", "DS", "4100", "Artificial Intelligence")
	c := bannertest.Record("30003", "EECE", "4100", "Artificial Intelligence")
	d := bannertest.Record("30004", "CS", "4200", "Other")
	a.CrossList, b.CrossList, c.CrossList = strptr("X1"), strptr("X1"), strptr("X1")

	result := Marshal([]banner.Record{a, b, c, d})
	assert.Equal(t, []string{"30002", "30003"}, result.Sections["CS4100"][0].Xlist)
	assert.Equal(t, []string{"30001", "30003"}, result.Sections["DS4100"][0].Xlist)
	assert.Equal(t, []string{"30001", "30002"}, result.Sections["EECE4100"][0].Xlist)
	assert.Equal(t, []string{}, result.Sections["CS4200"][0].Xlist)
}

func TestMarshalMeetings(t *testing.T) {
	r := bannertest.Record("30001", "CS", "2500", "Fundies")
	final := bannertest.Meeting("WVH", "West Village H", "210", "0800", "1000", 2)
	final.MeetingType = banner.FinalMeetingType
	final.StartDate = "04/22/2025"
	online := bannertest.Meeting("", "", "", "1800", "1900", 4)
	online.Building, online.BuildingDescription, online.Room = nil, nil, nil
	noRoom := bannertest.Meeting("RI", "Richards Hall", "", "1200", "1300", 5)
	noRoom.Room = nil
	tba := bannertest.Meeting("WVH", "West Village H", "210", "", "", 5)
	tba.BeginTime, tba.EndTime = nil, nil
	bad := bannertest.Meeting("WVH", "West Village H", "210", "930", "1045", 5)
	r.MeetingsFaculty = append(r.MeetingsFaculty,
		banner.MeetingFaculty{MeetingTime: final},
		banner.MeetingFaculty{MeetingTime: online},
		banner.MeetingFaculty{MeetingTime: noRoom},
		banner.MeetingFaculty{MeetingTime: tba},
		banner.MeetingFaculty{MeetingTime: bad},
	)

	result := Marshal([]banner.Record{r})

	assert.Equal(t, 2, result.DroppedMeetings)
	want := []catalog.MeetingTime{
		{Building: "West Village H", BuildingCode: "WVH", Room: strptr("210"), Days: []int{1, 3}, StartTime: 1430, EndTime: 1610},
		{Building: "West Village H", BuildingCode: "WVH", Room: strptr("210"), Days: []int{2}, StartTime: 800, EndTime: 1000, Final: true, FinalDate: strptr("04/22/2025")},
		{Days: []int{4}, StartTime: 1800, EndTime: 1900},
		{Building: "Richards Hall", BuildingCode: "RI", Days: []int{5}, StartTime: 1200, EndTime: 1300},
	}
	if diff := cmp.Diff(want, result.Sections["CS2500"][0].MeetingTimes); diff != "" {
		t.Errorf("meetings mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []catalog.Building{
		{Code: "RI", Name: "Richards Hall", Campus: "Boston"},
		{Code: "WVH", Name: "West Village H", Campus: "Boston"},
	}, result.Buildings)
	require.Len(t, result.Rooms, 1)
	assert.Equal(t, catalog.Room{
		Code:         "210",
		BuildingCode: "WVH",
		Campus:       "Boston",
		Schedule:     []catalog.Booking{{CRN: "30001", Days: []int{1, 3}, StartTime: 1430, EndTime: 1610}},
	}, result.Rooms[0])
}

func TestMarshalNormalizesCampusAndHonors(t *testing.T) {
	r := bannertest.Record("30001", "HONR", "1102", "Honors Discovery")
	r.CampusDescription = "Boston Main Campus"
	r.SectionAttributes = []banner.Attribute{{Code: "UBHS", Description: "Honors Course"}}
	r.MeetingsFaculty = nil

	result := Marshal([]banner.Record{r})
	section := result.Sections["HONR1102"][0]
	assert.Equal(t, "Boston", section.Campus)
	assert.True(t, section.Honors)
	assert.Equal(t, []catalog.Campus{{Code: "BOSTON", Name: "Boston"}}, result.Campuses)
}

func TestMarshalOutputValidates(t *testing.T) {
	records := []banner.Record{
		bannertest.Record("30001", "CS", "2500", "Fundies 1"),
		bannertest.Record("30002", "CS", "4973", "Topics A"),
		bannertest.Record("30003", "CS", "4973", "Topics B"),
	}
	result := Marshal(records)

	snapshot := &catalog.Snapshot{
		Version:    catalog.Version,
		Term:       catalog.Term{Code: "202530", Description: "Spring 2025"},
		Courses:    result.Courses,
		Sections:   result.Sections,
		Subjects:   result.Subjects,
		Campuses:   result.Campuses,
		Buildings:  result.Buildings,
		Rooms:      result.Rooms,
		Attributes: result.Attributes,
	}
	assert.NoError(t, catalog.Validate(snapshot))
}
