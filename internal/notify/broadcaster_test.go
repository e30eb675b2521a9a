package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	chans  []string
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.chans = append(p.chans, channel)
	p.events = append(p.events, payload.(Event))
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (p *recordingPublisher) last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func waitForKinds(t *testing.T, p *recordingPublisher, want ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if equalKinds(p.kinds(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected events %v, got %v", want, p.kinds())
}

func equalKinds(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func newTestBroadcaster(p Publisher) *Broadcaster {
	log, _ := test.NewNullLogger()
	return NewBroadcaster(p, "warningOverlay", 1500*time.Millisecond, log)
}

func TestShowAlertPublishesAlertEvent(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	err := b.ShowAlert(context.Background(), "警告：请目视前方！", AlertOptions{
		PlaySound:      true,
		BlinkFrequency: 50,
		Duration:       time.Hour,
	})
	if err != nil {
		t.Fatalf("ShowAlert failed: %v", err)
	}

	ev := p.last()
	if ev.Kind != KindAlert || ev.Message != "警告：请目视前方！" {
		t.Errorf("Unexpected event %+v", ev)
	}
	if !ev.PlaySound || !ev.WarningLight || ev.BlinkFrequency != 50 {
		t.Errorf("Expected sound, warning light and blink 50, got %+v", ev)
	}
	if p.chans[0] != "warningOverlay" {
		t.Errorf("Expected channel warningOverlay, got %s", p.chans[0])
	}
	if !b.Visible() {
		t.Error("Expected alert visible")
	}
}

func TestShowAlertSchedulesSecondaryThenHides(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	err := b.ShowAlert(context.Background(), "first", AlertOptions{
		PlaySound:               true,
		BlinkFrequency:          50,
		Duration:                10 * time.Millisecond,
		SecondaryMessage:        "second",
		SecondaryDuration:       20 * time.Millisecond,
		SecondaryBlinkFrequency: 10,
	})
	if err != nil {
		t.Fatalf("ShowAlert failed: %v", err)
	}

	waitForKinds(t, p, KindAlert, KindUpdate, KindHide)

	p.mu.Lock()
	update := p.events[1]
	p.mu.Unlock()
	if update.Message != "second" || update.BlinkFrequency != 10 {
		t.Errorf("Unexpected secondary event %+v", update)
	}
	if b.Visible() {
		t.Error("Expected alert hidden after secondary duration")
	}
}

func TestHideAlertCancelsSecondary(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	_ = b.ShowAlert(context.Background(), "first", AlertOptions{
		Duration:         30 * time.Millisecond,
		SecondaryMessage: "second",
	})
	if err := b.HideAlert(context.Background()); err != nil {
		t.Fatalf("HideAlert failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if got := p.kinds(); !equalKinds(got, []string{KindAlert, KindHide}) {
		t.Errorf("Expected alert then hide only, got %v", got)
	}
}

func TestAutoHide(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	_ = b.ShowAlert(context.Background(), "brief", AlertOptions{
		AutoHide: true,
		Duration: 10 * time.Millisecond,
	})
	waitForKinds(t, p, KindAlert, KindHide)
}

func TestShowAlertReplacesPendingTimers(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	_ = b.ShowAlert(context.Background(), "one", AlertOptions{AutoHide: true, Duration: 20 * time.Millisecond})
	_ = b.ShowAlert(context.Background(), "two", AlertOptions{Duration: time.Hour})

	time.Sleep(60 * time.Millisecond)
	if got := p.kinds(); !equalKinds(got, []string{KindAlert, KindAlert}) {
		t.Errorf("Expected the first auto-hide to be cancelled, got %v", got)
	}
	if !b.Visible() {
		t.Error("Expected second alert still visible")
	}
}

func TestShowToast(t *testing.T) {
	p := &recordingPublisher{}
	b := newTestBroadcaster(p)
	defer b.Close()

	if err := b.ShowToast(context.Background(), "开始导航"); err != nil {
		t.Fatalf("ShowToast failed: %v", err)
	}
	ev := p.last()
	if ev.Kind != KindToast || ev.Message != "开始导航" || ev.DurationMs != 1500 {
		t.Errorf("Unexpected toast event %+v", ev)
	}
	if ev.PlaySound {
		t.Error("Expected toast without sound")
	}
	if b.Visible() {
		t.Error("Expected toast not to count as a visible alert")
	}
}

func TestPublishErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")
	p := &recordingPublisher{err: boom}
	b := newTestBroadcaster(p)
	defer b.Close()

	if err := b.ShowToast(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped publish error, got %v", err)
	}
	if err := b.ShowAlert(context.Background(), "x", AlertOptions{}); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped publish error, got %v", err)
	}
}
