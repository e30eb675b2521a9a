package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/messaging"
	"github.com/cabin-dispatch/internal/notify"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.Observe(ctx, dispatch.Event{Source: "voice", Outcome: dispatch.OutcomeRouted, Duration: time.Millisecond})
	m.Observe(ctx, dispatch.Event{Source: "voice", Outcome: dispatch.OutcomeRouted})
	m.Observe(ctx, dispatch.Event{Source: "gaze", Outcome: dispatch.OutcomeRejected})

	if got := testutil.ToFloat64(m.Instructions.WithLabelValues("voice", "routed")); got != 2 {
		t.Errorf("Expected 2 routed voice instructions, got %v", got)
	}
	if got := testutil.ToFloat64(m.Instructions.WithLabelValues("gaze", "rejected")); got != 1 {
		t.Errorf("Expected 1 rejected gaze instruction, got %v", got)
	}
	if got := testutil.CollectAndCount(m.DispatchDuration); got != 1 {
		t.Errorf("Expected one histogram series, got %d", got)
	}
}

func TestObserveTracksEmergency(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	tests := []struct {
		outcome dispatch.Outcome
		want    float64
	}{
		{dispatch.OutcomeEmergencyEntered, 1},
		{dispatch.OutcomeSuppressed, 1},
		{dispatch.OutcomeEmergencyReleased, 0},
		{dispatch.OutcomeRouted, 0},
	}
	for _, tt := range tests {
		m.Observe(ctx, dispatch.Event{Source: "voice", Outcome: tt.outcome})
		if got := testutil.ToFloat64(m.EmergencyActive); got != tt.want {
			t.Errorf("After %s: expected gauge %v, got %v", tt.outcome, tt.want, got)
		}
	}
}

type stubPublisher struct {
	err error
}

func (p *stubPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	return p.err
}

func TestCountingPublisher(t *testing.T) {
	m := NewMetrics()
	pub := NewCountingPublisher(&stubPublisher{}, m)
	ctx := context.Background()

	_ = pub.Publish(ctx, "crossPageMessage", messaging.NewMessage("nav", "start"))
	_ = pub.Publish(ctx, "crossPageMessage", messaging.NewMessage("nav", "stop"))
	_ = pub.Publish(ctx, "warningSystem", notify.Event{Kind: notify.KindToast})
	_ = pub.Publish(ctx, "other", []byte("{}"))

	tests := []struct {
		label string
		want  float64
	}{
		{"nav", 2},
		{"overlay_toast", 1},
		{"raw", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues(tt.label)); got != tt.want {
			t.Errorf("Expected %v %s messages, got %v", tt.want, tt.label, got)
		}
	}
}

func TestCountingPublisherError(t *testing.T) {
	m := NewMetrics()
	boom := errors.New("broker down")
	pub := NewCountingPublisher(&stubPublisher{err: boom}, m)

	err := pub.Publish(context.Background(), "crossPageMessage", messaging.NewMessage("nav", "start"))
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped publisher error, got %v", err)
	}
	if got := testutil.ToFloat64(m.PublishErrors); got != 1 {
		t.Errorf("Expected one publish error, got %v", got)
	}
	if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues("nav")); got != 0 {
		t.Errorf("Expected failed publish not counted, got %v", got)
	}
}

func TestClientGauge(t *testing.T) {
	m := NewMetrics()
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	if got := testutil.ToFloat64(m.WSClients); got != 1 {
		t.Errorf("Expected 1 client, got %v", got)
	}
}

func TestRuntimeSampling(t *testing.T) {
	m := NewMetrics()
	log, _ := test.NewNullLogger()

	m.sampleRuntime(log)

	if got := testutil.ToFloat64(m.Goroutines); got < 1 {
		t.Errorf("Expected at least one goroutine, got %v", got)
	}
	if got := testutil.ToFloat64(m.MemoryUsage); got <= 0 {
		t.Errorf("Expected positive memory usage, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.Observe(context.Background(), dispatch.Event{Source: "voice", Outcome: dispatch.OutcomeRouted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"cabin_instructions_total", "cabin_emergency_active", "cabin_dispatch_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in exposition", name)
		}
	}
}
