package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/instruction"
	"github.com/cabin-dispatch/internal/messaging"
)

// route is one action of a target: the message sent to the pages and the
// toast shown to the user
type route struct {
	msgType string
	content string
	// field names the message field carrying the description, if any
	field string
	toast string
	// appendDescription appends the description to the toast
	appendDescription bool
}

// routeTable maps each target of a handler to its actions
type routeTable map[instruction.OperandTarget]map[instruction.OpcodeAction]route

// Deps are the collaborators shared by the target handlers
type Deps struct {
	Publisher Publisher
	Notifier  Notifier
	Channel   string
	Log       logrus.FieldLogger
}

// RouteHandler is a TargetHandler driven entirely by a route table
type RouteHandler struct {
	name        string
	description string
	routes      routeTable
	deps        Deps
}

func newRouteHandler(name, description string, routes routeTable, deps Deps) *RouteHandler {
	return &RouteHandler{
		name:        name,
		description: description,
		routes:      routes,
		deps:        deps,
	}
}

// Handle publishes the mapped message and shows its toast. Unmapped actions
// are logged and ignored.
func (h *RouteHandler) Handle(ctx context.Context, req Request) Outcome {
	logger := h.deps.Log.WithFields(logrus.Fields{
		"handler": h.name,
		"action":  req.Action,
		"target":  req.Target,
		"source":  req.Source,
	})

	r, ok := h.routes[req.Target][req.Action]
	if !ok {
		logger.Info("No route for action, ignoring")
		return OutcomeIgnored
	}

	msg := messaging.NewMessage(r.msgType, r.content)
	if r.field != "" && req.Description != nil {
		msg = msg.With(r.field, *req.Description)
	}
	if err := h.deps.Publisher.Publish(ctx, h.deps.Channel, msg); err != nil {
		logger.WithError(err).Warn("Failed to publish cross-page message")
	} else {
		logger.WithFields(logrus.Fields{"type": r.msgType, "content": r.content, "id": msg.ID}).Info("Cross-page message sent")
	}

	toast := r.toast
	if r.appendDescription {
		toast += req.DescriptionOr("")
	}
	if err := h.deps.Notifier.ShowToast(ctx, toast); err != nil {
		logger.WithError(err).Warn("Failed to show notification")
	}
	return OutcomeRouted
}

// GetName returns the handler name
func (h *RouteHandler) GetName() string {
	return h.name
}

// GetDescription returns the handler description
func (h *RouteHandler) GetDescription() string {
	return h.description
}

// Targets returns the targets present in the route table
func (h *RouteHandler) Targets() []instruction.OperandTarget {
	targets := make([]instruction.OperandTarget, 0, len(h.routes))
	for t := range h.routes {
		targets = append(targets, t)
	}
	return targets
}

// Routes returns the actions mapped for a target
func (h *RouteHandler) Routes(target instruction.OperandTarget) []instruction.OpcodeAction {
	actions := make([]instruction.OpcodeAction, 0, len(h.routes[target]))
	for a := range h.routes[target] {
		actions = append(actions, a)
	}
	return actions
}
