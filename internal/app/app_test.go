package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dokzlo13/trulight/internal/config"
)

type fixedSessions int

func (f fixedSessions) Sessions() int { return int(f) }

func TestHealthService_Handler(t *testing.T) {
	s := NewHealthService(config.Default(), fixedSessions(3))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["sessions"] != 3.0 {
		t.Errorf("body = %v", body)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/ready status = %d", rec.Code)
	}
}

func TestNewServices(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.Enabled = true

	s, err := NewServices(cfg)
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	defer s.Close()

	if s.Ledger == nil || s.DB == nil {
		t.Error("ledger should be initialized when enabled")
	}
	if s.Panel == nil || s.Simulator == nil || s.Health == nil || s.Bus == nil {
		t.Errorf("services not wired: %+v", s)
	}
}

func TestNewServices_LedgerDisabled(t *testing.T) {
	s, err := NewServices(config.Default())
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	defer s.Close()

	if s.Ledger != nil || s.DB != nil {
		t.Error("ledger should be nil when disabled")
	}
}
