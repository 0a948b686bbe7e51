package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStats map[string]any

func (s staticStats) Stats() map[string]any { return s }

func TestHealthChecker(t *testing.T) {
	checker := NewHealthChecker(staticStats{"sessions": 3})
	checker.Register("database", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var healthy HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&healthy))
	assert.True(t, healthy.Healthy)
	assert.Equal(t, "ok", healthy.Components["database"])
	assert.EqualValues(t, 3, healthy.Engine["sessions"])

	checker.Register("nats", func(context.Context) error { return errors.New("disconnected") })

	rec = httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var degraded HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&degraded))
	assert.False(t, degraded.Healthy)
	assert.Equal(t, "down", degraded.Components["nats"])
	assert.Equal(t, []string{"nats: disconnected"}, degraded.Errors)
}

func TestHealthCheckerReplacesProbe(t *testing.T) {
	checker := NewHealthChecker(nil)
	checker.Register("redis", func(context.Context) error { return errors.New("down") })
	checker.Register("redis", func(context.Context) error { return nil })

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Len(t, status.Components, 1)
	assert.Nil(t, status.Engine)
}
