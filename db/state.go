package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sandboxnu/searchneu-sub001/catalog"
	"github.com/sandboxnu/searchneu-sub001/updater"
)

func (d *Database) termID(ctx context.Context, q pgx.Tx, term string) (int32, error) {
	var id int32
	err := q.QueryRow(ctx, selectTermID, term).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrTermNotStored, term)
	}
	return id, err
}

// LoadState reads the stored seat counts and course keys of term.
func (d *Database) LoadState(ctx context.Context, term string) (updater.State, error) {
	state := updater.State{
		Sections: make(map[string]updater.Counts),
		Courses:  make(map[string]bool),
	}

	err := pgx.BeginTxFunc(ctx, d.Pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		termID, err := d.termID(ctx, tx, term)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, listSectionCounts, termID)
		if err != nil {
			return err
		}
		var crn string
		var c updater.Counts
		if _, err := pgx.ForEachRow(rows, []any{&crn, &c.SeatCapacity, &c.SeatRemaining, &c.WaitlistCapacity, &c.WaitlistRemaining}, func() error {
			state.Sections[crn] = c
			return nil
		}); err != nil {
			return err
		}

		courses, err := idMap(ctx, tx, listCourses, termID)
		if err != nil {
			return err
		}
		for key := range courses {
			state.Courses[key] = true
		}
		return nil
	})
	if err != nil {
		return updater.State{}, fmt.Errorf("db: load state %s: %w", term, err)
	}
	return state, nil
}

// ApplyReport writes the count changes and rooted new sections of report in
// one transaction. It never deletes: missing sections wait for the next full
// upload. New sections whose meeting rooms are unknown are stored without a
// room.
func (d *Database) ApplyReport(ctx context.Context, report *updater.Report) error {
	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		termID, err := d.termID(ctx, tx, report.Term)
		if err != nil {
			return err
		}

		changes := make([]updater.Change, 0, len(report.Changes))
		for _, change := range report.Changes {
			changes = append(changes, change)
		}
		updated, err := d.sendChunked(ctx, tx, len(changes), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
			c := changes[i]
			return b.Queue(updateSectionCounts, termID, c.CRN,
				c.After.SeatCapacity, c.After.SeatRemaining, c.After.WaitlistCapacity, c.After.WaitlistRemaining)
		})
		if err != nil {
			return err
		}

		inserted, err := d.insertNewSections(ctx, tx, termID, report.New)
		if err != nil {
			return err
		}

		d.Log.Info().
			Str("term", report.Term).
			Int64("updated", updated).
			Int("inserted", inserted).
			Int("missing", len(report.Missing)).
			Msg("report applied")
		return nil
	})
	if err != nil {
		return fmt.Errorf("db: apply report %s: %w", report.Term, err)
	}
	return nil
}

func (d *Database) insertNewSections(ctx context.Context, tx pgx.Tx, termID int32, added []updater.NewSection) (int, error) {
	if len(added) == 0 {
		return 0, nil
	}

	campuses, err := d.ensureCampuses(ctx, tx, added)
	if err != nil {
		return 0, err
	}
	courses, err := idMap(ctx, tx, listCourses, termID)
	if err != nil {
		return 0, err
	}

	rows := make([]sectionRow, len(added))
	sections := make([]catalog.Section, len(added))
	for i, n := range added {
		courseID, ok := courses[n.CourseKey]
		if !ok {
			return 0, &UnresolvedError{Entity: "course", Key: n.CourseKey, From: "section " + n.Section.CRN}
		}
		campusID, ok := campuses[catalog.CanonicalCampus(n.Section.Campus)]
		if !ok {
			return 0, &UnresolvedError{Entity: "campus", Key: n.Section.Campus, From: "section " + n.Section.CRN}
		}
		if rows[i], err = newSectionRow(courseID, campusID, n.Section); err != nil {
			return 0, err
		}
		sections[i] = n.Section
	}

	if _, err := d.sendChunked(ctx, tx, len(rows), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return queueSection(b, termID, rows[i])
	}); err != nil {
		return 0, err
	}

	sectionIDs, err := idMap(ctx, tx, listSections, termID)
	if err != nil {
		return 0, err
	}
	rooms, err := idMap(ctx, tx, listRooms)
	if err != nil {
		return 0, err
	}
	meetings, err := meetingRows(sections, sectionIDs, rooms, false)
	if err != nil {
		return 0, err
	}
	if _, err := d.sendChunked(ctx, tx, len(meetings), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return queueMeeting(b, termID, meetings[i])
	}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ensureCampuses stores any campus a new section names that storage lacks.
func (d *Database) ensureCampuses(ctx context.Context, tx pgx.Tx, added []updater.NewSection) (map[string]int32, error) {
	campuses, err := idMap(ctx, tx, listCampuses)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, n := range added {
		name := catalog.CanonicalCampus(n.Section.Campus)
		if _, ok := campuses[name]; !ok {
			campuses[name] = 0
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return campuses, nil
	}

	d.Log.Warn().Strs("campuses", missing).Msg("storing campuses first seen by the updater")
	if _, err := d.sendChunked(ctx, tx, len(missing), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(upsertCampus, catalog.CampusCode(missing[i]), missing[i])
	}); err != nil {
		return nil, err
	}
	return idMap(ctx, tx, listCampuses)
}
