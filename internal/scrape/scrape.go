package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shiftcal/internal/calendar"
	"shiftcal/internal/config"
	appLog "shiftcal/internal/log"
	"shiftcal/internal/model"
	"shiftcal/internal/portal"
	"shiftcal/internal/store"
)

// ErrCycleInProgress is returned when a cycle is triggered while another
// one is still running. Cycles never interleave writes to the persisted
// document.
var ErrCycleInProgress = errors.New("a scrape cycle is already running")

// Runner executes full reconciliation cycles:
// login -> fetch -> extract -> decode previous -> merge -> persist.
type Runner struct {
	cfg    *config.Config
	store  *store.Store
	client *portal.Client
	loc    *time.Location

	mu sync.Mutex // held for the duration of one cycle
}

func New(cfg *config.Config, st *store.Store) (*Runner, error) {
	client, err := portal.NewClient(cfg.Portal)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		store:  st,
		client: client,
		loc:    cfg.Location(),
	}, nil
}

// Run executes one cycle to completion. Safe to call from a timer and
// on demand; an overlapping trigger is rejected with ErrCycleInProgress
// instead of queueing.
//
// The persisted document is only touched by the final atomic write: any
// failure before that leaves the previous document authoritative.
func (r *Runner) Run(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrCycleInProgress
	}
	defer r.mu.Unlock()

	now := time.Now().In(r.loc)
	appLog.Info("starting scrape cycle")

	session, err := r.client.Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	doc, err := session.FetchSchedule(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch schedule: %w", err)
	}

	fresh := portal.ExtractShifts(doc, r.client.Host(), r.loc)

	previous := model.NewCalendar()
	data, err := r.store.Read()
	switch {
	case err == nil:
		previous = calendar.Decode(data)
	case errors.Is(err, store.ErrNotFound):
		// First run: empty history.
	default:
		// Only a missing or corrupt document counts as empty history.
		// An unreadable one must not be silently clobbered.
		return fmt.Errorf("read previous document: %w", err)
	}

	merged := calendar.Merge(fresh, previous, now, r.cfg.Retention())

	if err := r.store.Write(calendar.Encode(merged, now), now); err != nil {
		return fmt.Errorf("persist calendar: %w", err)
	}

	appLog.Info("scrape cycle completed", "bookings", len(fresh), "total", len(merged))
	return nil
}
