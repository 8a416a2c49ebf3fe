package calendarsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newHandlerFixture(t *testing.T, syncer Syncer) (*echo.Echo, *Handler) {
	t.Helper()
	creds := newMockCredRepo()
	s := newTestScheduler(t, syncer, creds, time.Minute)
	e := echo.New()
	h := NewHandler(s)
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, h
}

func TestHandler_TriggerSync_OK(t *testing.T) {
	id := uuid.New()
	e, _ := newHandlerFixture(t, &mockSyncer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/"+id.String()+"/sync", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary SyncSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if summary.ClinicianID != id {
		t.Errorf("summary clinician = %s, want %s", summary.ClinicianID, id)
	}
}

func TestHandler_TriggerSync_BadID(t *testing.T) {
	e, _ := newHandlerFixture(t, &mockSyncer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/not-a-uuid/sync", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_TriggerSync_NotConnected(t *testing.T) {
	id := uuid.New()
	syncer := &mockSyncer{failFor: map[uuid.UUID]error{id: ErrNotConnected}}
	e, _ := newHandlerFixture(t, syncer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/"+id.String()+"/sync", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_TriggerSync_Conflict(t *testing.T) {
	id := uuid.New()
	syncer := &mockSyncer{
		started: make(chan uuid.UUID, 1),
		release: make(chan struct{}),
	}
	e, _ := newHandlerFixture(t, syncer)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/"+id.String()+"/sync", nil)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-syncer.started

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/"+id.String()+"/sync", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	close(syncer.release)
	<-firstDone
}

func TestHandler_TriggerSync_UpstreamFailure(t *testing.T) {
	id := uuid.New()
	syncer := &mockSyncer{failFor: map[uuid.UUID]error{id: errors.New("remote 503")}}
	e, _ := newHandlerFixture(t, syncer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinicians/"+id.String()+"/sync", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandler_SyncStatus(t *testing.T) {
	e, _ := newHandlerFixture(t, &mockSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.PassActive {
		t.Error("PassActive = true on an idle scheduler")
	}
}
