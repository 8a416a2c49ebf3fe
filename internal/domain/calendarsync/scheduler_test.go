package calendarsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockSyncer struct {
	mu      sync.Mutex
	synced  []uuid.UUID
	failFor map[uuid.UUID]error
	started chan uuid.UUID
	release chan struct{}
}

func (m *mockSyncer) SyncClinician(_ context.Context, id uuid.UUID) (*SyncSummary, error) {
	if m.started != nil {
		m.started <- id
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[id]; err != nil {
		return nil, err
	}
	m.synced = append(m.synced, id)
	return &SyncSummary{ClinicianID: id}, nil
}

func (m *mockSyncer) syncedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.synced...)
}

func newTestScheduler(t *testing.T, syncer Syncer, creds CredentialRepository, cooldown time.Duration) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{
		Syncer:      syncer,
		Credentials: creds,
		Logger:      zerolog.Nop(),
		Cooldown:    cooldown,
		Concurrency: 2,
		Tick:        make(chan time.Time),
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestScheduler_RunPass_CooldownFilter(t *testing.T) {
	recent := uuid.New()
	stale := uuid.New()
	never := uuid.New()
	creds := newMockCredRepo(
		&Credential{ClinicianID: recent},
		&Credential{ClinicianID: stale},
		&Credential{ClinicianID: never},
	)
	syncer := &mockSyncer{}
	s := newTestScheduler(t, syncer, creds, 5*time.Minute)

	now := time.Now()
	s.state.markSynced(recent, now.Add(-2*time.Minute))
	s.state.markSynced(stale, now.Add(-10*time.Minute))

	if err := s.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	got := make(map[uuid.UUID]bool)
	for _, id := range syncer.syncedIDs() {
		got[id] = true
	}
	if got[recent] {
		t.Error("clinician inside cooldown window was synced")
	}
	if !got[stale] || !got[never] {
		t.Errorf("synced = %v, want both clinicians outside the cooldown", syncer.syncedIDs())
	}
}

func TestScheduler_RunPass_FailureIsolation(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	creds := newMockCredRepo(
		&Credential{ClinicianID: a},
		&Credential{ClinicianID: b},
		&Credential{ClinicianID: c},
	)
	syncer := &mockSyncer{failFor: map[uuid.UUID]error{b: errors.New("remote 500")}}
	s := newTestScheduler(t, syncer, creds, time.Minute)

	if err := s.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if len(syncer.syncedIDs()) != 2 {
		t.Errorf("successful syncs = %v, want the two healthy clinicians", syncer.syncedIDs())
	}
	// The failed clinician must stay eligible for the next pass.
	if s.state.withinCooldown(b, time.Minute, time.Now()) {
		t.Error("failed sync entered the cooldown window")
	}
}

func TestScheduler_RunPass_SkipsWhilePassActive(t *testing.T) {
	creds := newMockCredRepo(&Credential{ClinicianID: uuid.New()})
	syncer := &mockSyncer{}
	s := newTestScheduler(t, syncer, creds, time.Minute)

	s.state.beginPass()
	defer s.state.endPass()

	if err := s.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(syncer.syncedIDs()) != 0 {
		t.Errorf("overlapping pass synced %v, want nothing", syncer.syncedIDs())
	}
}

func TestScheduler_TriggerClinician_BypassesCooldown(t *testing.T) {
	id := uuid.New()
	creds := newMockCredRepo(&Credential{ClinicianID: id})
	syncer := &mockSyncer{}
	s := newTestScheduler(t, syncer, creds, time.Hour)

	s.state.markSynced(id, time.Now())

	summary, err := s.TriggerClinician(context.Background(), id)
	if err != nil {
		t.Fatalf("TriggerClinician: %v", err)
	}
	if summary.ClinicianID != id {
		t.Errorf("summary for %s, want %s", summary.ClinicianID, id)
	}
}

func TestScheduler_TriggerClinician_RejectsWhileInFlight(t *testing.T) {
	id := uuid.New()
	creds := newMockCredRepo(&Credential{ClinicianID: id})
	syncer := &mockSyncer{
		started: make(chan uuid.UUID, 1),
		release: make(chan struct{}),
	}
	s := newTestScheduler(t, syncer, creds, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.TriggerClinician(context.Background(), id); err != nil {
			t.Errorf("first trigger: %v", err)
		}
	}()
	<-syncer.started

	if _, err := s.TriggerClinician(context.Background(), id); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("second trigger err = %v, want ErrSyncInFlight", err)
	}

	close(syncer.release)
	<-done
}

func TestScheduler_Status(t *testing.T) {
	id := uuid.New()
	creds := newMockCredRepo(&Credential{ClinicianID: id})
	s := newTestScheduler(t, &mockSyncer{}, creds, time.Minute)

	syncedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.state.markSynced(id, syncedAt)

	snap := s.Status()
	if snap.PassActive {
		t.Error("PassActive = true, want false")
	}
	if got := snap.LastSynced[id]; got != "2025-05-01T12:00:00Z" {
		t.Errorf("LastSynced = %q", got)
	}
	if len(snap.InFlight) != 0 {
		t.Errorf("InFlight = %v, want empty", snap.InFlight)
	}
}
