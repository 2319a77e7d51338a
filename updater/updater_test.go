package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/banner/bannertest"
	"github.com/sandboxnu/searchneu-sub001/catalog"
)

func section(crn string, seats, capacity, waitlist, waitlistCapacity int) catalog.Section {
	return catalog.Section{
		CRN:               crn,
		SeatCapacity:      capacity,
		SeatRemaining:     seats,
		WaitlistCapacity:  waitlistCapacity,
		WaitlistRemaining: waitlist,
	}
}

func TestDiffSeatsBecameAvailable(t *testing.T) {
	stored := State{
		Sections: map[string]Counts{"12345": {SeatCapacity: 30, SeatRemaining: 0, WaitlistCapacity: 5, WaitlistRemaining: 5}},
		Courses:  map[string]bool{"CS2500": true},
	}
	fresh := map[string][]catalog.Section{"CS2500": {section("12345", 3, 30, 5, 5)}}

	report := Diff("202530", stored, fresh)

	assert.Equal(t, []string{"12345"}, report.SeatsAvailable)
	assert.Equal(t, []string{"12345"}, report.SeatsChanged)
	assert.Empty(t, report.WaitlistAvailable)
	assert.Empty(t, report.WaitlistChanged)
	assert.Empty(t, report.CapacityChanged)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.New)
	assert.Empty(t, report.Unrooted)
	assert.Equal(t, Change{
		CRN:    "12345",
		Before: Counts{SeatCapacity: 30, SeatRemaining: 0, WaitlistCapacity: 5, WaitlistRemaining: 5},
		After:  Counts{SeatCapacity: 30, SeatRemaining: 3, WaitlistCapacity: 5, WaitlistRemaining: 5},
	}, report.Changes["12345"])
}

func TestDiffBuckets(t *testing.T) {
	stored := State{
		Sections: map[string]Counts{
			"30001": {SeatCapacity: 30, SeatRemaining: 5, WaitlistCapacity: 5, WaitlistRemaining: 0},
			"30002": {SeatCapacity: 30, SeatRemaining: 5, WaitlistCapacity: 5, WaitlistRemaining: 2},
			"30003": {SeatCapacity: 30, SeatRemaining: 5, WaitlistCapacity: 5, WaitlistRemaining: 2},
			"30004": {SeatCapacity: 30, SeatRemaining: 5, WaitlistCapacity: 5, WaitlistRemaining: 2},
			"30009": {SeatCapacity: 30, SeatRemaining: 5},
		},
		Courses: map[string]bool{"CS2500": true},
	}
	fresh := map[string][]catalog.Section{
		"CS2500": {
			section("30001", 5, 30, 1, 5),
			section("30002", 4, 30, 1, 5),
			section("30003", 5, 40, 2, 10),
			section("30004", 5, 30, 2, 5),
			section("30005", 10, 30, 0, 0),
		},
		"CS9999": {section("30006", 10, 30, 0, 0)},
	}

	report := Diff("202530", stored, fresh)

	assert.Equal(t, []string{"30001"}, report.WaitlistAvailable)
	assert.Equal(t, []string{"30001", "30002"}, report.WaitlistChanged)
	assert.Equal(t, []string{"30002"}, report.SeatsChanged)
	assert.Empty(t, report.SeatsAvailable)
	assert.Equal(t, []string{"30003"}, report.CapacityChanged)
	assert.Equal(t, []string{"30003"}, report.WaitlistCapacityChanged)
	assert.NotContains(t, report.Changes, "30004")
	assert.Equal(t, []string{"30009"}, report.Missing)
	require.Len(t, report.New, 1)
	assert.Equal(t, "CS2500", report.New[0].CourseKey)
	assert.Equal(t, "30005", report.New[0].Section.CRN)
	assert.Equal(t, []string{"30006"}, report.Unrooted)
	assert.Equal(t, []string{"30005"}, report.NewCRNs())
	assert.False(t, report.Empty())
}

func TestDiffNoChanges(t *testing.T) {
	stored := State{Sections: map[string]Counts{"30001": {SeatCapacity: 30, SeatRemaining: 5}}}
	report := Diff("202530", stored, map[string][]catalog.Section{"CS2500": {section("30001", 5, 30, 0, 0)}})
	assert.True(t, report.Empty())
}

type fakeSource struct {
	records []banner.Record
	err     error
}

func (f fakeSource) Sections(context.Context, string) ([]banner.Record, error) {
	return f.records, f.err
}

type fakeStore struct {
	state   State
	applied []*Report
}

func (f *fakeStore) LoadState(context.Context, string) (State, error) {
	return f.state, nil
}

func (f *fakeStore) ApplyReport(_ context.Context, r *Report) error {
	f.applied = append(f.applied, r)
	return nil
}

func TestRun(t *testing.T) {
	record := bannertest.Record("30001", "CS", "2500", "Fundies")
	record.SeatsAvailable = 0
	source := fakeSource{records: []banner.Record{record, bannertest.Record("30002", "CS", "2500", "Fundies")}}
	store := &fakeStore{state: State{
		Sections: map[string]Counts{"30001": {SeatCapacity: 30, SeatRemaining: 2, WaitlistCapacity: 5, WaitlistRemaining: 5}},
		Courses:  map[string]bool{"CS2500": true},
	}}
	u := New(source, store, zerolog.Nop())

	report, err := u.Run(context.Background(), "202530", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"30001"}, report.SeatsChanged)
	assert.Equal(t, []string{"30002"}, report.NewCRNs())
	assert.Equal(t, "Boston", report.New[0].Section.Campus)
	assert.Len(t, report.New[0].Section.MeetingTimes, 1)
	assert.Empty(t, store.applied)

	_, err = u.Run(context.Background(), "202530", true)
	require.NoError(t, err)
	assert.Len(t, store.applied, 1)

	_, err = New(fakeSource{err: errors.New("banner down")}, store, zerolog.Nop()).Run(context.Background(), "202530", true)
	assert.ErrorContains(t, err, "banner down")
}
