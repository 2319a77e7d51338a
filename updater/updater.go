package updater

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/marshal"
)

// SectionSource returns a term's raw section list.
type SectionSource interface {
	Sections(ctx context.Context, term string) ([]banner.Record, error)
}

// Store loads stored state and applies reports.
type Store interface {
	LoadState(ctx context.Context, term string) (State, error)
	ApplyReport(ctx context.Context, report *Report) error
}

type Updater struct {
	source SectionSource
	store  Store
	log    zerolog.Logger
}

func New(source SectionSource, store Store, logger zerolog.Logger) *Updater {
	return &Updater{
		source: source,
		store:  store,
		log:    logger.With().Str("component", "updater").Logger(),
	}
}

// Run diffs the stored term against a fresh section list. With apply set,
// seat changes and rooted new sections are written through the store;
// missing sections are left for the next full upload.
func (u *Updater) Run(ctx context.Context, term string, apply bool) (*Report, error) {
	log := u.log.With().Str("term", term).Logger()

	state, err := u.store.LoadState(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("updater: load %s: %w", term, err)
	}

	records, err := u.source.Sections(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("updater: fetch %s: %w", term, err)
	}

	report := Diff(term, state, marshal.Marshal(records).Sections)
	log.Info().
		Int("seats_available", len(report.SeatsAvailable)).
		Int("seats_changed", len(report.SeatsChanged)).
		Int("waitlist_available", len(report.WaitlistAvailable)).
		Int("waitlist_changed", len(report.WaitlistChanged)).
		Int("capacity_changed", len(report.CapacityChanged)).
		Int("waitlist_capacity_changed", len(report.WaitlistCapacityChanged)).
		Int("missing", len(report.Missing)).
		Int("new", len(report.New)).
		Int("unrooted", len(report.Unrooted)).
		Msg("diff complete")
	if len(report.Unrooted) > 0 {
		log.Warn().Strs("crns", report.Unrooted).Msg("new sections without a stored course; run a full upload")
	}

	if !apply || report.Empty() {
		return report, nil
	}
	if err := u.store.ApplyReport(ctx, report); err != nil {
		return report, fmt.Errorf("updater: apply %s: %w", term, err)
	}
	return report, nil
}
