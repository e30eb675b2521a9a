package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/config"
	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/journal"
	"github.com/cabin-dispatch/internal/jsonrpc"
	"github.com/cabin-dispatch/internal/messaging"
	"github.com/cabin-dispatch/internal/monitor"
	"github.com/cabin-dispatch/internal/notify"
	"github.com/cabin-dispatch/internal/state"
	"github.com/cabin-dispatch/internal/transport/ws"
)

// app holds the wired components of the daemon
type app struct {
	cfg         *config.Config
	log         *logrus.Logger
	broker      messaging.Broker
	broadcaster *notify.Broadcaster
	dispatcher  *dispatch.Dispatcher
	metrics     *monitor.Metrics
	journal     *journal.Journal
	rpc         *jsonrpc.Server
	hub         *ws.Hub
}

// newApp wires every component. ctx bounds the background relays.
func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	broker, err := newBroker(ctx, cfg.Messaging, log)
	if err != nil {
		return nil, err
	}
	a.broker = broker

	var publisher dispatch.Publisher = broker
	if cfg.Monitor.Enabled {
		a.metrics = monitor.NewMetrics()
		publisher = monitor.NewCountingPublisher(broker, a.metrics)
	}

	a.broadcaster = notify.NewBroadcaster(publisher, cfg.Messaging.AlertChannel, cfg.Alert.ToastDuration(),
		log.WithField("component", "notify"))

	alert := dispatch.Alert{
		Message: cfg.Alert.Message,
		Options: notify.AlertOptions{
			PlaySound:               cfg.Alert.PlaySound,
			BlinkFrequency:          cfg.Alert.BlinkFrequency,
			Duration:                cfg.Alert.Duration(),
			SecondaryMessage:        cfg.Alert.SecondaryMessage,
			SecondaryDuration:       cfg.Alert.SecondaryDuration(),
			SecondaryBlinkFrequency: cfg.Alert.SecondaryBlinkFrequency,
		},
	}
	a.dispatcher = dispatch.NewDefault(state.NewEmergency(), dispatch.Deps{
		Publisher: publisher,
		Notifier:  a.broadcaster,
		Channel:   cfg.Messaging.Channel,
		Log:       log.WithField("component", "dispatch"),
	}, alert)

	if a.metrics != nil {
		a.dispatcher.AddObserver(a.metrics)
	}

	var history jsonrpc.History
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, log.WithField("component", "journal"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		a.dispatcher.AddObserver(j)
		history = j
	}

	a.rpc = jsonrpc.NewServer(cfg.Network.HTTP.ServerHeader, log.WithField("component", "jsonrpc"))
	jsonrpc.RegisterInstructionMethods(a.rpc, a.dispatcher, history)

	var tracker ws.ClientTracker
	if a.metrics != nil {
		tracker = a.metrics
	}
	a.hub = ws.NewHub(a.dispatcher, tracker, log.WithField("component", "ws"))
	if err := a.hub.Run(ctx, broker, cfg.Messaging.Channel, cfg.Messaging.AlertChannel); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to subscribe websocket hub: %w", err)
	}

	return a, nil
}

func newBroker(ctx context.Context, cfg config.MessagingConfig, log *logrus.Logger) (messaging.Broker, error) {
	logger := log.WithField("component", "messaging")
	switch cfg.Backend {
	case "redis":
		broker, err := messaging.NewRedisBroker(ctx, messaging.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, cfg.RevokeAfter(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return broker, nil
	default:
		return messaging.NewMemoryBroker(cfg.RevokeAfter(), logger), nil
	}
}

// router builds the HTTP surface
func (a *app) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/instruction_api", a.rpc.HandleRequest)
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/messages/{channel}", a.handleLatest).Methods(http.MethodGet)
	r.Handle("/ws", a.hub.Handler())
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleLatest serves the message currently held on a channel, for pages
// that poll instead of holding a websocket
func (a *app) handleLatest(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	if channel != a.cfg.Messaging.Channel && channel != a.cfg.Messaging.AlertChannel {
		http.NotFound(w, r)
		return
	}

	payload, ok, err := a.broker.Latest(r.Context(), channel)
	if err != nil {
		a.log.WithError(err).WithField("channel", channel).Warn("Failed to read latest message")
		http.Error(w, "messaging unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// Close releases components in reverse wiring order
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.WithError(err).Warn("Journal shutdown error")
		}
	}
	if a.broadcaster != nil {
		if err := a.broadcaster.Close(); err != nil {
			a.log.WithError(err).Warn("Notifier shutdown error")
		}
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.WithError(err).Warn("Broker shutdown error")
		}
	}
}
