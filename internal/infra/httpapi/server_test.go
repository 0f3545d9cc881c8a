package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pairing_bot/internal/app"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"
	"pairing_bot/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCycles struct {
	runErr   error
	stateErr error
	runs     []app.Trigger
}

func (m *mockCycles) RunCycle(_ context.Context, tenantID int64, trigger app.Trigger) (*app.CycleReport, error) {
	m.runs = append(m.runs, trigger)
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &app.CycleReport{RunID: "r1", TenantID: tenantID, Cycle: 3, Pairs: []pairing.Pair{{A: 1, B: 2}}}, nil
}

func (m *mockCycles) SendReminders(context.Context, int64) (int, error) {
	return 4, nil
}

func (m *mockCycles) State(_ context.Context, tenantID int64) (*app.TenantState, error) {
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	return &app.TenantState{Tenant: &tenant.Tenant{ID: tenantID, Cycle: 3}, Unpaired: []int64{5}}, nil
}

func newTestServer(m *mockCycles) (*Server, *prometheus.Registry) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	return NewServer(":0", m, reg, logrus.NewEntry(log)), reg
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&mockCycles{})
	w := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunCycle(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"busy", app.ErrCycleInProgress, http.StatusConflict},
		{"unknown tenant", tenant.ErrNotFound, http.StatusNotFound},
		{"storage failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockCycles{runErr: tt.err}
			s, _ := newTestServer(m)
			w := do(t, s, http.MethodPost, "/tenants/-100/cycles")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, []app.Trigger{app.TriggerManual}, m.runs)
			if tt.err == nil {
				var report app.CycleReport
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
				assert.Equal(t, int64(-100), report.TenantID)
				assert.Equal(t, "r1", report.RunID)
			}
		})
	}
}

func TestState(t *testing.T) {
	s, _ := newTestServer(&mockCycles{})
	w := do(t, s, http.MethodGet, "/tenants/-7/state")
	require.Equal(t, http.StatusOK, w.Code)

	var state app.TenantState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, int64(-7), state.Tenant.ID)
	assert.Equal(t, []int64{5}, state.Unpaired)

	s, _ = newTestServer(&mockCycles{stateErr: tenant.ErrNotFound})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/tenants/-7/state").Code)
}

func TestBadTenantID(t *testing.T) {
	s, _ := newTestServer(&mockCycles{})
	for _, path := range []string{"/tenants/abc/state", "/tenants/0/cycles"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "cycles") {
			method = http.MethodPost
		}
		assert.Equal(t, http.StatusBadRequest, do(t, s, method, path).Code, path)
	}
}

func TestReminders(t *testing.T) {
	s, _ := newTestServer(&mockCycles{})
	w := do(t, s, http.MethodPost, "/tenants/-7/reminders")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":4}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, reg := newTestServer(&mockCycles{})
	rec := metrics.NewPrometheus(reg, "pairing")
	rec.AddPairsFormed(2)

	w := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pairing_cycle_pairs_formed_total 2")
}
