package scrape

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Stage string

const (
	StageTerm          Stage = "term"
	StageSections      Stage = "sections"
	StageSubjects      Stage = "subjects"
	StageFaculty       Stage = "faculty"
	StageTitles        Stage = "titles"
	StageDescriptions  Stage = "descriptions"
	StagePrerequisites Stage = "prerequisites"
	StageCorequisites  Stage = "corequisites"
	StageValidate      Stage = "validate"
)

// enrichmentStages run concurrently once sections are marshalled.
var enrichmentStages = []Stage{StageFaculty, StageTitles, StageDescriptions, StagePrerequisites, StageCorequisites}

var ErrNoSections = errors.New("scrape: term has no sections")

// StageError is a run-fatal failure. Keys lists the affected items, if any.
type StageError struct {
	Term  string
	Stage Stage
	Keys  []string
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("scrape %s: stage %s failed", e.Term, e.Stage)
	if len(e.Keys) > 0 {
		const limit = 10
		keys := e.Keys
		if len(keys) > limit {
			keys = keys[:limit]
		}
		msg += fmt.Sprintf(" for %d items (%s)", len(e.Keys), strings.Join(keys, ", "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Failure is one item that could not be enriched. Key is a CRN or a
// register key, depending on the stage.
type Failure struct {
	Key string
	Err error
}

// Report summarizes a scrape run. It is filled in even when the run fails.
type Report struct {
	Term            string
	Started         time.Time
	Duration        time.Duration
	Sections        int
	Courses         int
	DroppedMeetings int

	mu        sync.Mutex
	attempts  map[Stage]int
	successes map[Stage]int
	failures  map[Stage][]Failure
}

func newReport(term string) *Report {
	return &Report{
		Term:      term,
		Started:   time.Now(),
		attempts:  make(map[Stage]int),
		successes: make(map[Stage]int),
		failures:  make(map[Stage][]Failure),
	}
}

func (r *Report) succeed(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[stage]++
	r.successes[stage]++
}

func (r *Report) fail(stage Stage, key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[stage]++
	r.failures[stage] = append(r.failures[stage], Failure{Key: key, Err: err})
}

// Attempts returns how many items a stage tried.
func (r *Report) Attempts(stage Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[stage]
}

// Failures returns a stage's failures sorted by key.
func (r *Report) Failures(stage Stage) []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Failure(nil), r.failures[stage]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// FailedKeys returns the keys of a stage's failures, sorted.
func (r *Report) FailedKeys(stage Stage) []string {
	failures := r.Failures(stage)
	keys := make([]string, len(failures))
	for i, f := range failures {
		keys[i] = f.Key
	}
	return keys
}

// FailureCount is the number of failed items across all stages.
func (r *Report) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.failures {
		n += len(f)
	}
	return n
}

// Stages lists every stage with at least one attempt.
func (r *Report) Stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	stages := make([]Stage, 0, len(r.attempts))
	for s := range r.attempts {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}

// fatal reports whether a stage tried items and none succeeded.
func (r *Report) fatal(stage Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[stage] > 0 && r.successes[stage] == 0
}
