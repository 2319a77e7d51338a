package db

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sandboxnu/searchneu-sub001/catalog"
)

// Upload makes the stored term agree with snapshot inside one transaction.
// Reference data is upserted first, in foreign key order, and every step
// re-reads the ids it depends on. Sections and meeting times absent from the
// snapshot are deleted; courses never are. Any reference the snapshot makes
// to a row that does not exist aborts the whole upload with an
// *UnresolvedError.
//
// Concurrent uploads of the same term must be serialized by the caller.
func (d *Database) Upload(ctx context.Context, snapshot *catalog.Snapshot, opts UploadOptions) (*UploadStats, error) {
	start := time.Now()
	stats := &UploadStats{Term: snapshot.Term.Code}
	log := d.Log.With().Str("term", snapshot.Term.Code).Logger()

	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		r := &reconciler{db: d, tx: tx, snapshot: snapshot, stats: stats, log: log}
		return r.run(ctx, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("db: upload %s: %w", snapshot.Term.Code, err)
	}

	stats.Duration = time.Since(start)
	log.Info().
		Int("courses", stats.Courses).
		Int("sections", stats.Sections).
		Int("meeting_times", stats.MeetingTimes).
		Int64("deleted_sections", stats.DeletedSections).
		Int64("deleted_meeting_times", stats.DeletedMeetings).
		Dur("elapsed", stats.Duration).
		Msg("upload committed")
	return stats, nil
}

type reconciler struct {
	db       *Database
	tx       pgx.Tx
	snapshot *catalog.Snapshot
	stats    *UploadStats
	log      zerolog.Logger

	termID    int32
	campuses  map[string]int32
	buildings map[string]int32
	rooms     map[string]int32
	nupaths   map[string]int32
	subjects  map[string]int32
	courses   map[string]int32
	sections  map[string]int32
}

func (r *reconciler) run(ctx context.Context, opts UploadOptions) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"campuses", r.upsertCampuses},
		{"buildings", r.upsertBuildings},
		{"rooms", r.upsertRooms},
		{"nupaths", r.upsertNUPaths},
		{"subjects", r.upsertSubjects},
		{"term", func(ctx context.Context) error { return r.upsertTerm(ctx, opts) }},
		{"courses", r.upsertCourses},
		{"course nupaths", r.replaceCourseNUPaths},
		{"sections", r.upsertSections},
		{"meeting times", r.upsertMeetingTimes},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		r.log.Debug().Str("step", step.name).Msg("reconciled")
	}
	return nil
}

func campusCode(c catalog.Campus) string {
	if c.Code != "" {
		return c.Code
	}
	return catalog.CampusCode(c.Name)
}

func (r *reconciler) upsertCampuses(ctx context.Context) error {
	campuses := r.snapshot.Campuses
	if _, err := r.db.sendChunked(ctx, r.tx, len(campuses), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		c := campuses[i]
		return b.Queue(upsertCampus, campusCode(c), catalog.CanonicalCampus(c.Name))
	}); err != nil {
		return err
	}
	r.stats.Campuses = len(campuses)

	var err error
	r.campuses, err = idMap(ctx, r.tx, listCampuses)
	return err
}

func (r *reconciler) campusID(name, from string) (int32, error) {
	name = catalog.CanonicalCampus(name)
	id, ok := r.campuses[name]
	if !ok {
		return 0, &UnresolvedError{Entity: "campus", Key: name, From: from}
	}
	return id, nil
}

func (r *reconciler) upsertBuildings(ctx context.Context) error {
	buildings := r.snapshot.Buildings
	campusIDs := make([]int32, len(buildings))
	for i, b := range buildings {
		id, err := r.campusID(b.Campus, "building "+b.Code)
		if err != nil {
			return err
		}
		campusIDs[i] = id
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(buildings), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(upsertBuilding, campusIDs[i], buildings[i].Code, buildings[i].Name)
	}); err != nil {
		return err
	}
	r.stats.Buildings = len(buildings)

	var err error
	r.buildings, err = idMap(ctx, r.tx, listBuildings)
	return err
}

func buildingKey(campus, code string) string {
	return catalog.CanonicalCampus(campus) + "/" + code
}

func (r *reconciler) upsertRooms(ctx context.Context) error {
	rooms := r.snapshot.Rooms
	buildingIDs := make([]int32, len(rooms))
	for i, room := range rooms {
		key := buildingKey(room.Campus, room.BuildingCode)
		id, ok := r.buildings[key]
		if !ok {
			return &UnresolvedError{Entity: "building", Key: key, From: "room " + room.Code}
		}
		buildingIDs[i] = id
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(rooms), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(insertRoom, buildingIDs[i], rooms[i].Code)
	}); err != nil {
		return err
	}
	r.stats.Rooms = len(rooms)

	var err error
	r.rooms, err = idMap(ctx, r.tx, listRooms)
	return err
}

func (r *reconciler) upsertNUPaths(ctx context.Context) error {
	if _, err := r.db.sendChunked(ctx, r.tx, len(NUPaths), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(upsertNUPath, NUPaths[i].Code, NUPaths[i].Attribute, NUPaths[i].Name)
	}); err != nil {
		return err
	}

	var err error
	r.nupaths, err = idMap(ctx, r.tx, listNUPaths)
	return err
}

func (r *reconciler) upsertSubjects(ctx context.Context) error {
	subjects := r.snapshot.Subjects
	if _, err := r.db.sendChunked(ctx, r.tx, len(subjects), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(upsertSubject, subjects[i].Code, subjects[i].Name)
	}); err != nil {
		return err
	}
	r.stats.Subjects = len(subjects)

	var err error
	r.subjects, err = idMap(ctx, r.tx, listSubjects)
	return err
}

func (r *reconciler) upsertTerm(ctx context.Context, opts UploadOptions) error {
	term := r.snapshot.Term
	return r.tx.QueryRow(ctx, upsertTerm, term.Code, term.Description, opts.ActiveUntil).Scan(&r.termID)
}

func requisiteJSON(req catalog.Requisite) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type courseRow struct {
	subjectID                 int32
	prereqs, coreqs, postreqs string
}

func (r *reconciler) upsertCourses(ctx context.Context) error {
	courses := r.snapshot.Courses
	rows := make([]courseRow, len(courses))
	for i, c := range courses {
		subjectID, ok := r.subjects[c.Subject]
		if !ok {
			return &UnresolvedError{Entity: "subject", Key: c.Subject, From: "course " + c.RegisterKey()}
		}
		row := courseRow{subjectID: subjectID}
		var err error
		if row.prereqs, err = requisiteJSON(c.Prereqs); err != nil {
			return err
		}
		if row.coreqs, err = requisiteJSON(c.Coreqs); err != nil {
			return err
		}
		if row.postreqs, err = requisiteJSON(c.Postreqs); err != nil {
			return err
		}
		rows[i] = row
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(courses), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		c, row := courses[i], rows[i]
		return b.Queue(upsertCourse, r.termID, row.subjectID, c.CourseNumber, c.Name, c.Description,
			c.MinCredits, c.MaxCredits, c.SpecialTopics, row.prereqs, row.coreqs, row.postreqs)
	}); err != nil {
		return err
	}
	r.stats.Courses = len(courses)

	var err error
	r.courses, err = idMap(ctx, r.tx, listCourses, r.termID)
	if err != nil {
		return err
	}

	keys := make([]string, len(courses))
	for i, c := range courses {
		keys[i] = c.RegisterKey()
	}
	if err := r.tx.QueryRow(ctx, countStaleCourses, r.termID, keys).Scan(&r.stats.StaleCourses); err != nil {
		return err
	}
	if r.stats.StaleCourses > 0 {
		r.log.Warn().Int64("courses", r.stats.StaleCourses).Msg("stored courses missing from snapshot were kept")
	}
	return nil
}

func (r *reconciler) replaceCourseNUPaths(ctx context.Context) error {
	if _, err := r.tx.Exec(ctx, deleteCourseNUPaths, r.termID); err != nil {
		return err
	}

	type pair struct{ course, nupath int32 }
	var pairs []pair
	for _, c := range r.snapshot.Courses {
		courseID, ok := r.courses[c.RegisterKey()]
		if !ok {
			return &UnresolvedError{Entity: "course", Key: c.RegisterKey(), From: "course nupaths"}
		}
		for _, attribute := range c.Attributes {
			if nupathID, ok := r.nupaths[attribute]; ok {
				pairs = append(pairs, pair{course: courseID, nupath: nupathID})
			}
		}
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(pairs), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return b.Queue(insertCourseNUPath, pairs[i].course, pairs[i].nupath)
	}); err != nil {
		return err
	}
	r.stats.CourseNUPaths = len(pairs)
	return nil
}

type sectionRow struct {
	courseID, campusID int32
	section            catalog.Section
	prereqs, coreqs    string
}

func newSectionRow(courseID, campusID int32, s catalog.Section) (sectionRow, error) {
	row := sectionRow{courseID: courseID, campusID: campusID, section: s}
	var err error
	if row.prereqs, err = requisiteJSON(s.Prereqs); err != nil {
		return row, err
	}
	if row.coreqs, err = requisiteJSON(s.Coreqs); err != nil {
		return row, err
	}
	return row, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func queueSection(b *pgx.Batch, termID int32, row sectionRow) *pgx.QueuedQuery {
	s := row.section
	return b.Queue(upsertSection, termID, row.courseID, row.campusID, s.CRN, s.Name, s.Description, s.SectionNumber,
		s.SeatCapacity, s.SeatRemaining, s.WaitlistCapacity, s.WaitlistRemaining, s.ClassType, s.Honors,
		nonNil(s.Faculty), nonNil(s.Xlist), row.prereqs, row.coreqs)
}

func (r *reconciler) upsertSections(ctx context.Context) error {
	var rows []sectionRow
	crns := []string{}
	for _, c := range r.snapshot.Courses {
		key := c.RegisterKey()
		courseID, ok := r.courses[key]
		if !ok {
			return &UnresolvedError{Entity: "course", Key: key, From: "sections"}
		}
		for _, s := range r.snapshot.Sections[key] {
			campusID, err := r.campusID(s.Campus, "section "+s.CRN)
			if err != nil {
				return err
			}
			row, err := newSectionRow(courseID, campusID, s)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			crns = append(crns, s.CRN)
		}
	}
	if len(rows) != r.snapshot.SectionCount() {
		for key := range r.snapshot.Sections {
			if _, ok := r.courses[key]; !ok {
				return &UnresolvedError{Entity: "course", Key: key, From: "sections"}
			}
		}
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(rows), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return queueSection(b, r.termID, rows[i])
	}); err != nil {
		return err
	}
	r.stats.Sections = len(rows)

	tag, err := r.tx.Exec(ctx, deleteAbsentSections, r.termID, crns)
	if err != nil {
		return err
	}
	r.stats.DeletedSections = tag.RowsAffected()
	if r.stats.DeletedSections > 0 {
		r.log.Info().Int64("sections", r.stats.DeletedSections).Msg("deleted sections missing from snapshot")
	}

	r.sections, err = idMap(ctx, r.tx, listSections, r.termID)
	return err
}

type meetingRow struct {
	sectionID        int32
	roomID           *int32
	days, start, end int
}

type meetingKey struct {
	sectionID        int32
	days, start, end int
}

// meetingRows resolves the non-final meetings of sections. With strict set,
// a meeting in an unknown room is an error; otherwise it is stored without a
// room. Meetings sharing a section, days and times collapse into one row
// carrying the last room, as the upsert would.
func meetingRows(sections []catalog.Section, sectionIDs, rooms map[string]int32, strict bool) ([]meetingRow, error) {
	var rows []meetingRow
	seen := make(map[meetingKey]int)
	for _, s := range sections {
		sectionID, ok := sectionIDs[s.CRN]
		if !ok {
			return nil, &UnresolvedError{Entity: "section", Key: s.CRN, From: "meeting times"}
		}
		for _, m := range s.MeetingTimes {
			if m.Final {
				continue
			}
			row := meetingRow{sectionID: sectionID, days: DaysMask(m.Days), start: m.StartTime, end: m.EndTime}
			if m.BuildingCode != "" && m.Room != nil {
				key := buildingKey(s.Campus, m.BuildingCode) + "/" + *m.Room
				if id, ok := rooms[key]; ok {
					row.roomID = &id
				} else if strict {
					return nil, &UnresolvedError{Entity: "room", Key: key, From: "section " + s.CRN}
				}
			}
			key := meetingKey{sectionID: row.sectionID, days: row.days, start: row.start, end: row.end}
			if i, ok := seen[key]; ok {
				rows[i] = row
				continue
			}
			seen[key] = len(rows)
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func queueMeeting(b *pgx.Batch, termID int32, m meetingRow) *pgx.QueuedQuery {
	return b.Queue(upsertMeetingTime, termID, m.sectionID, m.roomID, m.days, m.start, m.end)
}

func (r *reconciler) upsertMeetingTimes(ctx context.Context) error {
	var sections []catalog.Section
	for _, c := range r.snapshot.Courses {
		sections = append(sections, r.snapshot.Sections[c.RegisterKey()]...)
	}
	rows, err := meetingRows(sections, r.sections, r.rooms, true)
	if err != nil {
		return err
	}

	if _, err := r.db.sendChunked(ctx, r.tx, len(rows), func(b *pgx.Batch, i int) *pgx.QueuedQuery {
		return queueMeeting(b, r.termID, rows[i])
	}); err != nil {
		return err
	}
	r.stats.MeetingTimes = len(rows)

	sectionIDs := make([]int32, len(rows))
	days := make([]int32, len(rows))
	starts := make([]int32, len(rows))
	ends := make([]int32, len(rows))
	for i, m := range rows {
		sectionIDs[i], days[i], starts[i], ends[i] = m.sectionID, int32(m.days), int32(m.start), int32(m.end)
	}
	tag, err := r.tx.Exec(ctx, deleteAbsentMeetingTimes, r.termID, sectionIDs, days, starts, ends)
	if err != nil {
		return err
	}
	r.stats.DeletedMeetings = tag.RowsAffected()
	return nil
}
