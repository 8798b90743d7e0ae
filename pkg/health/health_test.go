package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("engine", up)
	c.Register("redis", Ping(func(context.Context) error { return errors.New("refused") }, false))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
	assert.NotEmpty(t, report.Components["engine"].Latency)

	c.Register("postgres", Ping(func(context.Context) error { return errors.New("gone") }, true))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPingWithoutDependency(t *testing.T) {
	got := Ping(nil, false)(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "not configured", got.Message)
}

func TestSlowCheckTimesOut(t *testing.T) {
	c := NewChecker().WithCheckTimeout(20 * time.Millisecond)
	c.Register("stuck", func(ctx context.Context) ComponentHealth {
		time.Sleep(200 * time.Millisecond)
		return ComponentHealth{Status: StatusUp}
	})

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["stuck"].Message)
}

func TestReadyAndReportHandlers(t *testing.T) {
	c := NewChecker()
	c.Register("engine", up)
	c.Register("redis", Ping(nil, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.ReportHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
