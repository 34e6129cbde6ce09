package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/audio"
	"luna/internal/events"
)

func flush(t *testing.T, b *events.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func TestCollector_CountsBusEvents(t *testing.T) {
	b := events.NewBus(64)
	defer b.Close()
	c := New()
	stop := c.Attach(b)
	defer stop()

	id := uuid.New()
	b.PublishCorrelated(id, events.PlanStarted{PlanID: id, StepCount: 1})
	b.PublishCorrelated(id, events.ActionRetry{PlanID: id, Attempt: 1})
	b.PublishCorrelated(id, events.ActionCompleted{PlanID: id, Action: "LaunchApp", Success: true})
	b.PublishCorrelated(id, events.PlanCompleted{PlanID: id, Success: true, TotalDurationMs: 1500})
	b.Publish(events.Error{ErrorCode: 1400})
	flush(t, b)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(events.TypePlanStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plans.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("LaunchApp", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("1400")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.planDuration))
}

func TestCollector_CaptureAndHandler(t *testing.T) {
	c := New()
	c.WatchCapture(func() audio.CaptureStats {
		return audio.CaptureStats{FramesCaptured: 120, FramesDropped: 3, RingFillRatio: 0.5}
	})

	expected := `
# HELP luna_capture_frames_dropped_total Frames dropped because the consumer fell behind.
# TYPE luna_capture_frames_dropped_total counter
luna_capture_frames_dropped_total 3
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "luna_capture_frames_dropped_total"))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "luna_capture_frames_captured_total 120")
	assert.Contains(t, rec.Body.String(), "luna_capture_ring_fill_ratio 0.5")
}
