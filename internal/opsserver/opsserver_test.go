package opsserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pico-cs/mesh-ingest/internal/logger"
)

type stubSource struct {
	brokers []BrokerStatus
	pending int
}

func (s stubSource) BrokerStatuses() []BrokerStatus { return s.brokers }
func (s stubSource) GroupBufferPending() int        { return s.pending }

func testHealthzAlwaysOK(t *testing.T) {
	srv := New(logger.Null, Config{}, stubSource{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func testReadyzUnreadyWithNoSubscribedBroker(t *testing.T) {
	srv := New(logger.Null, Config{}, stubSource{brokers: []BrokerStatus{{Name: "a", State: "connecting"}}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func testReadyzReadyWithSubscribedBroker(t *testing.T) {
	srv := New(logger.Null, Config{}, stubSource{brokers: []BrokerStatus{{Name: "a", State: "subscribed"}}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func testDashboardRendersBrokerTable(t *testing.T) {
	srv := New(logger.Null, Config{}, stubSource{
		brokers: []BrokerStatus{{Name: "primary", State: "subscribed"}},
		pending: 3,
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"primary", "subscribed", "3 message group"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard body missing %q: %s", want, body)
		}
	}
}

func TestOpsServer(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"healthz-always-ok", testHealthzAlwaysOK},
		{"readyz-unready-with-no-subscribed-broker", testReadyzUnreadyWithNoSubscribedBroker},
		{"readyz-ready-with-subscribed-broker", testReadyzReadyWithSubscribedBroker},
		{"dashboard-renders-broker-table", testDashboardRendersBrokerTable},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
