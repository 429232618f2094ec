package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/staminads/staminads-sub000/internal/collector"
	"github.com/staminads/staminads-sub000/internal/focus"
	"github.com/staminads/staminads-sub000/internal/heartbeat"
	"github.com/staminads/staminads-sub000/internal/lifecycle"
	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/queue"
	"github.com/staminads/staminads-sub000/internal/service"
	"github.com/staminads/staminads-sub000/internal/storage"
	"github.com/staminads/staminads-sub000/internal/timeutil"
	"github.com/staminads/staminads-sub000/internal/transport"

	"go.uber.org/zap"
)

type downChannel struct{}

func (downChannel) Send(_ context.Context, _ []byte) error { return errors.New("down") }

func newTestServer(t *testing.T) (*StatusServer, *timeutil.ManualClock) {
	t.Helper()
	log := zap.NewNop()
	clock := timeutil.NewManualClock(time.Unix(1700000000, 0))

	tracker := focus.NewTracker(clock, clock, log)
	hb, err := heartbeat.NewScheduler(heartbeat.Options{
		Tiers:       []heartbeat.Tier{{After: 0, Desktop: 10 * time.Second, Mobile: 7 * time.Second}},
		DeviceClass: models.DeviceDesktop,
	}, clock, clock, log)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	actions := collector.NewActionCollector(100, time.Hour, clock, log)
	q := queue.NewOfflineQueue(storage.NewMemoryStore(), clock, queue.Options{}, log)
	sender := transport.NewSender(downChannel{}, downChannel{}, downChannel{}, q, clock, log)

	svc := service.NewEngagementService(tracker, hb, actions, sender, lifecycle.NewBus(), clock, clock, service.Options{
		WorkspaceID: "ws_1",
		SessionID:   "sess_1",
	}, log)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return NewStatusServer(svc, "sess_1", log), clock
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, clock := newTestServer(t)
	clock.Advance(3 * time.Second)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		SessionID        string `json:"session_id"`
		FocusState       string `json:"focus_state"`
		ActiveDurationMs int64  `json:"active_duration_ms"`
		QueueLength      int    `json:"queue_length"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal status body: %v", err)
	}
	if body.SessionID != "sess_1" {
		t.Errorf("session_id = %q", body.SessionID)
	}
	if body.FocusState != "focused" {
		t.Errorf("focus_state = %q, want focused", body.FocusState)
	}
	if body.ActiveDurationMs != 3000 {
		t.Errorf("active_duration_ms = %d, want 3000", body.ActiveDurationMs)
	}
}
