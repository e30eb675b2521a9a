package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event kinds rendered by the warning overlay on the pages
const (
	KindAlert  = "alert"
	KindUpdate = "update"
	KindHide   = "hide"
	KindToast  = "toast"
)

// Publisher is the subset of messaging.Broker the broadcaster needs
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// AlertOptions controls how a persistent alert is shown
type AlertOptions struct {
	PlaySound               bool
	BlinkFrequency          int
	AutoHide                bool
	Duration                time.Duration
	SecondaryMessage        string
	SecondaryDuration       time.Duration
	SecondaryBlinkFrequency int
}

// Event is one overlay instruction sent to the pages
type Event struct {
	Kind           string `json:"kind"`
	Message        string `json:"message,omitempty"`
	PlaySound      bool   `json:"playSound,omitempty"`
	WarningLight   bool   `json:"warningLight"`
	BlinkFrequency int    `json:"blinkFrequency,omitempty"`
	DurationMs     int64  `json:"durationMs,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// Broadcaster implements the alert/notification collaborator by publishing
// overlay events. It owns the alert timers: the secondary message and the
// automatic hide.
type Broadcaster struct {
	mu            sync.Mutex
	publisher     Publisher
	channel       string
	toastDuration time.Duration
	visible       bool
	generation    int
	timers        []*time.Timer
	log           logrus.FieldLogger
}

// NewBroadcaster creates a broadcaster publishing on channel
func NewBroadcaster(publisher Publisher, channel string, toastDuration time.Duration, log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{
		publisher:     publisher,
		channel:       channel,
		toastDuration: toastDuration,
		log:           log,
	}
}

// ShowAlert shows a persistent alert, replacing any alert already shown
func (b *Broadcaster) ShowAlert(ctx context.Context, message string, opts AlertOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimersLocked()
	b.generation++
	gen := b.generation
	b.visible = true

	if err := b.publishLocked(ctx, Event{
		Kind:           KindAlert,
		Message:        message,
		PlaySound:      opts.PlaySound,
		WarningLight:   opts.PlaySound,
		BlinkFrequency: opts.BlinkFrequency,
	}); err != nil {
		return err
	}

	if opts.AutoHide && opts.Duration > 0 {
		b.afterLocked(opts.Duration, gen, b.autoHideLocked)
	}

	if opts.SecondaryMessage != "" {
		b.afterLocked(opts.Duration, gen, func() {
			if !b.visible {
				return
			}
			if err := b.publishLocked(context.Background(), Event{
				Kind:           KindUpdate,
				Message:        opts.SecondaryMessage,
				WarningLight:   true,
				BlinkFrequency: opts.SecondaryBlinkFrequency,
			}); err != nil {
				b.log.WithError(err).Warn("Failed to publish secondary alert")
			}
			if opts.SecondaryDuration > 0 {
				b.afterLocked(opts.SecondaryDuration, gen, b.autoHideLocked)
			}
		})
	}

	b.log.WithField("message", message).Info("Alert shown")
	return nil
}

// HideAlert hides the alert and cancels its pending timers
func (b *Broadcaster) HideAlert(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimersLocked()
	b.generation++
	return b.hideLocked(ctx)
}

func (b *Broadcaster) hideLocked(ctx context.Context) error {
	b.visible = false
	if err := b.publishLocked(ctx, Event{Kind: KindHide}); err != nil {
		return err
	}
	b.log.Info("Alert hidden")
	return nil
}

func (b *Broadcaster) autoHideLocked() {
	if err := b.hideLocked(context.Background()); err != nil {
		b.log.WithError(err).Warn("Failed to auto-hide alert")
	}
}

// ShowToast shows a transient notification without sound
func (b *Broadcaster) ShowToast(ctx context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.publishLocked(ctx, Event{
		Kind:       KindToast,
		Message:    message,
		DurationMs: b.toastDuration.Milliseconds(),
	})
}

// Visible reports whether an alert is currently shown
func (b *Broadcaster) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Close cancels pending timers
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimersLocked()
	b.generation++
	return nil
}

func (b *Broadcaster) publishLocked(ctx context.Context, ev Event) error {
	ev.Timestamp = time.Now().UnixMilli()
	if err := b.publisher.Publish(ctx, b.channel, ev); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// afterLocked runs fn under b.mu after d, unless the alert changed meanwhile
func (b *Broadcaster) afterLocked(d time.Duration, gen int, fn func()) {
	t := time.AfterFunc(d, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.generation != gen {
			return
		}
		fn()
	})
	b.timers = append(b.timers, t)
}

func (b *Broadcaster) stopTimersLocked() {
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
}
