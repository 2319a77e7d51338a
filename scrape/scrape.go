// Package scrape builds one validated term snapshot from Banner: it pages the
// section list, marshals it, and then enriches courses and sections with
// faculty, titles, descriptions and requisites through the shared fetch
// engine.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/catalog"
	"github.com/sandboxnu/searchneu-sub001/fetch"
	"github.com/sandboxnu/searchneu-sub001/marshal"
)

// Upstream is the Banner API as the orchestrator uses it.
type Upstream interface {
	Term(ctx context.Context, code string) (catalog.Term, error)
	Subjects(ctx context.Context, term string) ([]catalog.Subject, error)
	Sections(ctx context.Context, term string) ([]banner.Record, error)
	Faculty(ctx context.Context, term, crn string) ([]string, error)
	CatalogTitle(ctx context.Context, term, crn string) (string, error)
	Description(ctx context.Context, term, crn string) (string, error)
	Prerequisites(ctx context.Context, term, crn string, subjects map[string]string) (catalog.Requisite, error)
	Corequisites(ctx context.Context, term, crn string, subjects map[string]string) (catalog.Requisite, error)
}

// StatusSource reports fetch engine progress.
type StatusSource interface {
	Status() fetch.Status
}

// Progress is emitted periodically while enrichment requests are outstanding.
type Progress struct {
	Term    string
	Status  fetch.Status
	Elapsed time.Duration
}

// Observer receives progress events. It must not block and has no influence
// on the run.
type Observer interface {
	Progress(Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) Progress(p Progress) { f(p) }

type Options struct {
	Logger           zerolog.Logger
	Observer         Observer
	Status           StatusSource
	ProgressInterval time.Duration
}

type Orchestrator struct {
	upstream Upstream
	status   StatusSource
	observer Observer
	interval time.Duration
	log      zerolog.Logger
}

func New(upstream Upstream, opts Options) *Orchestrator {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}
	return &Orchestrator{
		upstream: upstream,
		status:   opts.Status,
		observer: opts.Observer,
		interval: opts.ProgressInterval,
		log:      opts.Logger.With().Str("component", "scrape").Logger(),
	}
}

// Scrape produces the snapshot of one term. Per-item enrichment failures are
// recorded in the report and leave defaults in place. The run fails with a
// *StageError if the term cannot be resolved, the term has no sections, a
// stage has no successes at all, or the snapshot does not validate.
func (o *Orchestrator) Scrape(ctx context.Context, code string) (*catalog.Snapshot, *Report, error) {
	report := newReport(code)
	defer func() { report.Duration = time.Since(report.Started) }()
	log := o.log.With().Str("term", code).Logger()

	fatal := func(stage Stage, keys []string, err error) (*catalog.Snapshot, *Report, error) {
		log.Error().Err(err).Str("stage", string(stage)).Int("keys", len(keys)).Msg("scrape failed")
		return nil, report, &StageError{Term: code, Stage: stage, Keys: keys, Err: err}
	}

	term, err := o.upstream.Term(ctx, code)
	if err != nil {
		report.fail(StageTerm, code, err)
		return fatal(StageTerm, []string{code}, err)
	}
	report.succeed(StageTerm)
	log.Info().Str("description", term.Description).Msg("term resolved")

	records, err := o.upstream.Sections(ctx, code)
	if err != nil {
		report.fail(StageSections, code, err)
		return fatal(StageSections, nil, err)
	}
	if len(records) == 0 {
		return fatal(StageSections, nil, ErrNoSections)
	}
	report.succeed(StageSections)
	log.Info().Int("records", len(records)).Msg("sections fetched")

	marshalled := marshal.Marshal(records)
	report.DroppedMeetings = marshalled.DroppedMeetings
	if marshalled.DroppedMeetings > 0 {
		log.Warn().Int("meetings", marshalled.DroppedMeetings).Msg("dropped meetings without usable times")
	}

	snapshot := &catalog.Snapshot{
		Version:    catalog.Version,
		Term:       term,
		Courses:    marshalled.Courses,
		Sections:   marshalled.Sections,
		Campuses:   marshalled.Campuses,
		Buildings:  marshalled.Buildings,
		Rooms:      marshalled.Rooms,
		Attributes: marshalled.Attributes,
	}
	report.Courses = len(snapshot.Courses)
	report.Sections = snapshot.SectionCount()

	subjects, err := o.upstream.Subjects(ctx, code)
	if err != nil {
		report.fail(StageSubjects, code, err)
		return fatal(StageSubjects, nil, err)
	}
	report.succeed(StageSubjects)
	snapshot.Subjects = o.reconcileSubjects(log, subjects, marshalled.Subjects)

	if err := o.enrich(ctx, log, snapshot, report); err != nil {
		return nil, report, fmt.Errorf("scrape %s: %w", code, err)
	}
	for _, stage := range enrichmentStages {
		if failed := report.FailedKeys(stage); len(failed) > 0 {
			log.Warn().Str("stage", string(stage)).Int("failed", len(failed)).Int("attempts", report.Attempts(stage)).Msg("enrichment failures")
		}
		if report.fatal(stage) {
			return fatal(stage, report.FailedKeys(stage), errors.Join(failureErrors(report.Failures(stage), 3)...))
		}
	}

	derivePostreqs(snapshot)

	if err := catalog.Validate(snapshot); err != nil {
		return fatal(StageValidate, nil, err)
	}

	log.Info().
		Int("courses", report.Courses).
		Int("sections", report.Sections).
		Int("failures", report.FailureCount()).
		Dur("elapsed", time.Since(report.Started)).
		Msg("scrape complete")
	return snapshot, report, nil
}

func failureErrors(failures []Failure, limit int) []error {
	errs := make([]error, 0, limit)
	for _, f := range failures {
		if len(errs) == limit {
			break
		}
		errs = append(errs, fmt.Errorf("%s: %w", f.Key, f.Err))
	}
	return errs
}

// reconcileSubjects returns the upstream subject list plus any subject only
// seen in sections, logging the difference.
func (o *Orchestrator) reconcileSubjects(log zerolog.Logger, upstream, extracted []catalog.Subject) []catalog.Subject {
	known := make(map[string]bool, len(upstream))
	out := append([]catalog.Subject(nil), upstream...)
	for _, s := range upstream {
		known[s.Code] = true
	}

	var missing []string
	for _, s := range extracted {
		if !known[s.Code] {
			missing = append(missing, s.Code)
			out = append(out, s)
		}
	}
	if len(missing) > 0 {
		log.Warn().Strs("subjects", missing).Msg("sections reference subjects missing from the subject list")
	}
	if unused := len(upstream) - (len(extracted) - len(missing)); unused > 0 {
		log.Debug().Int("subjects", unused).Msg("subjects without sections this term")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// enrich runs every enrichment request concurrently and applies the results
// once all of them have finished. It only fails if ctx is done.
func (o *Orchestrator) enrich(ctx context.Context, log zerolog.Logger, s *catalog.Snapshot, report *Report) error {
	term := s.Term.Code
	subjects := banner.SubjectCodes(s.Subjects)

	var mu sync.Mutex
	var updates []func()
	var g errgroup.Group
	spawn := func(stage Stage, key string, run func() (func(), error)) {
		g.Go(func() error {
			apply, err := run()
			if err != nil {
				report.fail(stage, key, err)
				log.Debug().Err(err).Str("stage", string(stage)).Str("key", key).Msg("enrichment failed")
				return nil
			}
			report.succeed(stage)
			mu.Lock()
			updates = append(updates, apply)
			mu.Unlock()
			return nil
		})
	}

	for ci := range s.Courses {
		course := &s.Courses[ci]
		key := course.RegisterKey()
		sections := s.Sections[key]

		for si := range sections {
			section := &sections[si]
			crn := section.CRN
			spawn(StageFaculty, crn, func() (func(), error) {
				faculty, err := o.upstream.Faculty(ctx, term, crn)
				return func() { section.Faculty = faculty }, err
			})
		}

		if len(sections) == 0 {
			continue
		}

		if course.SpecialTopics {
			for si := range sections {
				section := &sections[si]
				crn := section.CRN
				spawn(StageDescriptions, crn, func() (func(), error) {
					description, err := o.upstream.Description(ctx, term, crn)
					return func() { section.Description = description }, err
				})
				spawn(StagePrerequisites, crn, func() (func(), error) {
					prereqs, err := o.upstream.Prerequisites(ctx, term, crn, subjects)
					return func() { section.Prereqs = prereqs }, err
				})
				spawn(StageCorequisites, crn, func() (func(), error) {
					coreqs, err := o.upstream.Corequisites(ctx, term, crn, subjects)
					return func() { section.Coreqs = coreqs }, err
				})
			}
			continue
		}

		crn := sections[0].CRN
		spawn(StageTitles, key, func() (func(), error) {
			title, err := o.upstream.CatalogTitle(ctx, term, crn)
			if err == nil && title == "" {
				err = errors.New("empty catalog title")
			}
			return func() { course.Name = title }, err
		})
		spawn(StageDescriptions, key, func() (func(), error) {
			description, err := o.upstream.Description(ctx, term, crn)
			return func() { course.Description = description }, err
		})
		spawn(StagePrerequisites, key, func() (func(), error) {
			prereqs, err := o.upstream.Prerequisites(ctx, term, crn, subjects)
			return func() { course.Prereqs = prereqs }, err
		})
		spawn(StageCorequisites, key, func() (func(), error) {
			coreqs, err := o.upstream.Corequisites(ctx, term, crn, subjects)
			return func() { course.Coreqs = coreqs }, err
		})
	}

	stop := o.reportProgress(term)
	_ = g.Wait()
	stop()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, apply := range updates {
		apply()
	}
	return nil
}

// reportProgress emits Progress on every interval until the returned func is
// called, which also emits a final event.
func (o *Orchestrator) reportProgress(term string) func() {
	if o.observer == nil || o.status == nil {
		return func() {}
	}

	start := time.Now()
	emit := func() {
		o.observer.Progress(Progress{Term: term, Status: o.status.Status(), Elapsed: time.Since(start)})
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				emit()
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		emit()
	}
}

// derivePostreqs sets each course's postreqs to the courses whose
// prerequisites mention it, special topics sections included.
func derivePostreqs(s *catalog.Snapshot) {
	postreqs := make(map[string]map[string]catalog.Requisite)
	add := func(prereqs catalog.Requisite, dependent catalog.Course) {
		for _, ref := range prereqs.Courses() {
			target := catalog.RegisterKey(ref.Subject, ref.CourseNumber)
			if target == dependent.RegisterKey() {
				continue
			}
			if postreqs[target] == nil {
				postreqs[target] = make(map[string]catalog.Requisite)
			}
			postreqs[target][dependent.RegisterKey()] = catalog.CourseRef(dependent.Subject, dependent.CourseNumber)
		}
	}

	for _, course := range s.Courses {
		add(course.Prereqs, course)
		for _, section := range s.Sections[course.RegisterKey()] {
			add(section.Prereqs, course)
		}
	}

	for i := range s.Courses {
		dependents := postreqs[s.Courses[i].RegisterKey()]
		if len(dependents) == 0 {
			s.Courses[i].Postreqs = catalog.None()
			continue
		}
		keys := make([]string, 0, len(dependents))
		for k := range dependents {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]catalog.Requisite, 0, len(keys))
		for _, k := range keys {
			items = append(items, dependents[k])
		}
		s.Courses[i].Postreqs = catalog.Or(items...)
	}
}
