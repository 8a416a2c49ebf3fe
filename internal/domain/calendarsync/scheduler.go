package calendarsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/platform/telemetry"
)

// ErrSyncInFlight is returned when a manual trigger collides with a sync
// already running for the same clinician.
var ErrSyncInFlight = errors.New("sync already in flight for this clinician")

// Syncer runs one reconciliation cycle for one clinician.
type Syncer interface {
	SyncClinician(ctx context.Context, clinicianID uuid.UUID) (*SyncSummary, error)
}

// runState is the scheduler-owned re-entrancy and cooldown table. It is
// an in-process optimization only: correctness lives in the persisted
// cursor, and the table resets on restart.
type runState struct {
	mu         sync.Mutex
	inFlight   map[uuid.UUID]bool
	lastSynced map[uuid.UUID]time.Time
	passActive bool
}

func newRunState() *runState {
	return &runState{
		inFlight:   make(map[uuid.UUID]bool),
		lastSynced: make(map[uuid.UUID]time.Time),
	}
}

func (s *runState) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *runState) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *runState) markSynced(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	s.lastSynced[id] = at
	s.mu.Unlock()
}

func (s *runState) withinCooldown(id uuid.UUID, cooldown time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSynced[id]
	return ok && now.Sub(last) < cooldown
}

func (s *runState) beginPass() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passActive {
		return false
	}
	s.passActive = true
	return true
}

func (s *runState) endPass() {
	s.mu.Lock()
	s.passActive = false
	s.mu.Unlock()
}

// StatusSnapshot is an operator-facing view of the run-state table.
type StatusSnapshot struct {
	InFlight   []uuid.UUID          `json:"in_flight"`
	LastSynced map[uuid.UUID]string `json:"last_synced"`
	PassActive bool                 `json:"pass_active"`
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Syncer      Syncer
	Credentials CredentialRepository
	Metrics     *telemetry.Provider // optional
	Logger      zerolog.Logger

	Interval    time.Duration
	Cooldown    time.Duration
	Concurrency int
	BatchPause  time.Duration
	CycleBudget time.Duration // per-clinician upper bound

	// Tick/Stop override the interval ticker, for tests.
	Tick <-chan time.Time
	Stop func()
}

// Scheduler drives reconciliation on a fixed interval. Each tick runs one
// pass: select clinicians with credentials that are outside the cooldown
// window and not mid-sync, then fan them out to a bounded pool in batches
// with a pause in between to cap burst load on the remote API and the
// availability store. Ticks that arrive while a pass is still running are
// skipped entirely.
type Scheduler struct {
	syncer  Syncer
	creds   CredentialRepository
	metrics *telemetry.Provider
	logger  zerolog.Logger

	cooldown    time.Duration
	concurrency int
	batchPause  time.Duration
	cycleBudget time.Duration

	state *runState

	tick <-chan time.Time
	stop func()
}

// NewScheduler builds a Scheduler, applying defaults for optional fields.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Syncer == nil {
		return nil, errors.New("calendarsync: scheduler requires a syncer")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("calendarsync: scheduler requires a credential repository")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.CycleBudget <= 0 {
		cfg.CycleBudget = 2 * time.Minute
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Scheduler{
		syncer:      cfg.Syncer,
		creds:       cfg.Credentials,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		cooldown:    cfg.Cooldown,
		concurrency: cfg.Concurrency,
		batchPause:  cfg.BatchPause,
		cycleBudget: cfg.CycleBudget,
		state:       newRunState(),
		tick:        tick,
		stop:        stop,
	}, nil
}

// Start blocks until ctx is cancelled, running one pass per tick. Passes
// run inline so a long pass naturally absorbs (skips) the ticks that
// fire while it is active.
func (s *Scheduler) Start(ctx context.Context) {
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			if err := s.RunPass(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduler pass failed")
			}
		}
	}
}

// RunPass executes one full scheduler pass. It returns nil immediately
// when another pass is still active.
func (s *Scheduler) RunPass(ctx context.Context) error {
	if !s.state.beginPass() {
		s.logger.Debug().Msg("previous sync pass still running, skipping tick")
		return nil
	}
	defer s.state.endPass()

	creds, err := s.creds.ListConnected(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	eligible := make([]uuid.UUID, 0, len(creds))
	for _, c := range creds {
		if s.state.withinCooldown(c.ClinicianID, s.cooldown, now) {
			continue
		}
		eligible = append(eligible, c.ClinicianID)
	}
	s.metrics.SetClinicianBacklog(int64(len(eligible)))
	if len(eligible) == 0 {
		return nil
	}

	s.logger.Info().
		Int("connected", len(creds)).
		Int("eligible", len(eligible)).
		Msg("starting sync pass")

	for start := 0; start < len(eligible); start += s.concurrency {
		end := start + s.concurrency
		if end > len(eligible) {
			end = len(eligible)
		}

		var wg sync.WaitGroup
		for _, id := range eligible[start:end] {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				s.runOne(ctx, id)
			}(id)
		}
		wg.Wait()

		if end < len(eligible) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}
	return nil
}

// runOne syncs a single clinician inside a scheduled pass. Failures are
// isolated: they are logged and counted, and never abort the pass or
// sibling workers.
func (s *Scheduler) runOne(ctx context.Context, id uuid.UUID) {
	if !s.state.acquire(id) {
		return
	}
	defer s.state.release(id)

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.cycleBudget)
	defer cancel()

	summary, err := s.syncer.SyncClinician(cctx, id)
	if err != nil {
		s.metrics.SyncRunCompleted("failed", time.Since(start))
		s.logger.Error().Err(err).
			Str("clinician_id", id.String()).
			Msg("clinician sync failed")
		return
	}

	s.state.markSynced(id, time.Now())
	s.metrics.SyncRunCompleted("ok", time.Since(start))
	s.logger.Info().
		Str("clinician_id", id.String()).
		Bool("incremental", summary.Incremental).
		Int("events_seen", summary.EventsSeen).
		Int("slots_retracted", summary.RetractedCount()).
		Msg("clinician sync completed")
}

// TriggerClinician runs one cycle for one clinician immediately,
// bypassing cooldown and batching. It still respects the per-clinician
// re-entrancy guard: a trigger while that clinician's sync is in flight
// returns ErrSyncInFlight.
func (s *Scheduler) TriggerClinician(ctx context.Context, id uuid.UUID) (*SyncSummary, error) {
	if !s.state.acquire(id) {
		return nil, ErrSyncInFlight
	}
	defer s.state.release(id)

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.cycleBudget)
	defer cancel()

	summary, err := s.syncer.SyncClinician(cctx, id)
	if err != nil {
		s.metrics.SyncRunCompleted("failed", time.Since(start))
		return nil, err
	}
	s.state.markSynced(id, time.Now())
	s.metrics.SyncRunCompleted("ok", time.Since(start))
	return summary, nil
}

// Status returns a snapshot of the run-state table for operators.
func (s *Scheduler) Status() StatusSnapshot {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	snap := StatusSnapshot{
		LastSynced: make(map[uuid.UUID]string, len(s.state.lastSynced)),
		PassActive: s.state.passActive,
	}
	for id := range s.state.inFlight {
		snap.InFlight = append(snap.InFlight, id)
	}
	for id, at := range s.state.lastSynced {
		snap.LastSynced[id] = at.UTC().Format(time.RFC3339)
	}
	return snap
}
