package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/instruction"
	"github.com/cabin-dispatch/internal/notify"
	"github.com/cabin-dispatch/internal/state"
)

// Outcome reports what a dispatch did
type Outcome string

const (
	OutcomeEmergencyEntered  Outcome = "emergency_entered"
	OutcomeEmergencyReleased Outcome = "emergency_released"
	OutcomeSuppressed        Outcome = "suppressed"
	OutcomeRouted            Outcome = "routed"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeSetting           Outcome = "setting"
	OutcomeRejected          Outcome = "rejected"
)

// Publisher sends one payload to a named channel, fire-and-forget
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// Notifier is the alert/notification collaborator
type Notifier interface {
	ShowAlert(ctx context.Context, message string, opts notify.AlertOptions) error
	HideAlert(ctx context.Context) error
	ShowToast(ctx context.Context, message string) error
}

// Observer is told about every processed instruction
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Event describes one processed instruction. Parsed is nil when the code
// was rejected.
type Event struct {
	Source   string
	Code     string
	Parsed   *instruction.Parsed
	Outcome  Outcome
	Err      error
	At       time.Time
	Duration time.Duration
}

// Alert is the alert shown when the emergency state is entered
type Alert struct {
	Message string
	Options notify.AlertOptions
}

// Dispatcher routes parsed instructions to target handlers and runs the
// emergency state machine
type Dispatcher struct {
	// mu makes "check state, then route" atomic across callers
	mu        sync.Mutex
	state     *state.Emergency
	registry  *Registry
	fallback  TargetHandler
	notifier  Notifier
	alert     Alert
	observers []Observer
	log       logrus.FieldLogger
}

// New creates a dispatcher. fallback receives every target without a
// registered handler.
func New(st *state.Emergency, registry *Registry, fallback TargetHandler, notifier Notifier, alert Alert, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		state:    st,
		registry: registry,
		fallback: fallback,
		notifier: notifier,
		alert:    alert,
		log:      log,
	}
}

// NewDefault creates a dispatcher with the navigation, media and phone
// handlers registered and the setting handler as fallback
func NewDefault(st *state.Emergency, deps Deps, alert Alert) *Dispatcher {
	registry := NewRegistry()
	registry.Register(NewNavigationHandler(deps))
	registry.Register(NewMediaHandler(deps))
	registry.Register(NewPhoneHandler(deps))
	return New(st, registry, NewSettingHandler(deps.Log), deps.Notifier, alert, deps.Log)
}

// AddObserver registers an observer. Not safe to call once dispatching started.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Process parses code and dispatches it. A malformed code is logged and its
// FormatError returned; nothing is dispatched.
func (d *Dispatcher) Process(ctx context.Context, code, source string) (*instruction.Parsed, Outcome, error) {
	start := time.Now()

	parsed, err := instruction.Parse(code)
	if err != nil {
		d.log.WithFields(logrus.Fields{"source": source, "code": code}).WithError(err).Error("Failed to parse instruction code")
		d.observe(ctx, Event{
			Source:   source,
			Code:     code,
			Outcome:  OutcomeRejected,
			Err:      err,
			At:       start,
			Duration: time.Since(start),
		})
		return nil, OutcomeRejected, err
	}

	return parsed, d.Dispatch(ctx, parsed, source), nil
}

// Dispatch routes a parsed instruction. It never fails: collaborator errors
// and handler panics are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, p *instruction.Parsed, source string) Outcome {
	start := time.Now()
	outcome := d.dispatch(ctx, p, source)
	d.observe(ctx, Event{
		Source:   source,
		Code:     p.OriginalCode,
		Parsed:   p,
		Outcome:  outcome,
		At:       start,
		Duration: time.Since(start),
	})
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, p *instruction.Parsed, source string) (outcome Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fields := logrus.Fields{
		"source": source,
		"code":   p.OriginalCode,
		"action": p.Action,
		"target": p.Target,
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	logger := d.log.WithFields(fields)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Instruction handler panicked")
			outcome = OutcomeIgnored
		}
	}()

	logger.Infof("Executing %s instruction: %s %s", source, p.Action, p.Target)

	switch {
	case p.IsEmergency():
		if d.state.Enter(source) {
			logger.Warnf("Emergency state entered by %s", source)
		} else {
			logger.Warnf("Emergency repeated by %s", source)
		}
		if err := d.notifier.ShowAlert(ctx, d.alert.Message, d.alert.Options); err != nil {
			logger.WithError(err).Warn("Failed to show emergency alert")
		}
		return OutcomeEmergencyEntered

	case p.IsRelease():
		if d.state.Release(source) {
			logger.Infof("Emergency state released by %s", source)
		}
		if err := d.notifier.HideAlert(ctx); err != nil {
			logger.WithError(err).Warn("Failed to hide emergency alert")
		}
		return OutcomeEmergencyReleased
	}

	if d.state.Suppress() {
		logger.Info("Emergency state active, ignoring non-release instruction")
		return OutcomeSuppressed
	}

	handler, ok := d.registry.Get(p.Target)
	if !ok {
		handler = d.fallback
	}
	return handler.Handle(ctx, Request{
		Action:      p.Action,
		Target:      p.Target,
		Description: p.Description,
		Source:      source,
	})
}

func (d *Dispatcher) observe(ctx context.Context, ev Event) {
	for _, o := range d.observers {
		o.Observe(ctx, ev)
	}
}

// Snapshot returns the emergency state
func (d *Dispatcher) Snapshot() state.Snapshot {
	return d.state.Snapshot()
}

// Handlers describes the registered target handlers
func (d *Dispatcher) Handlers() []HandlerInfo {
	infos := d.registry.Info()
	infos = append(infos, HandlerInfo{
		Name:        d.fallback.GetName(),
		Description: d.fallback.GetDescription(),
	})
	return infos
}
