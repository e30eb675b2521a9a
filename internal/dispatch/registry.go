package dispatch

import (
	"context"
	"sort"

	"github.com/cabin-dispatch/internal/instruction"
)

// TargetHandler handles instructions for one or more operand targets
type TargetHandler interface {
	// Handle carries out the action and reports what happened
	Handle(ctx context.Context, req Request) Outcome

	// GetName returns the handler name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// Targets returns the operand targets routed to this handler
	Targets() []instruction.OperandTarget
}

// Request is what a handler receives for one instruction
type Request struct {
	Action      instruction.OpcodeAction
	Target      instruction.OperandTarget
	Description *string
	Source      string
}

// DescriptionOr returns the description or fallback when it is absent
func (r Request) DescriptionOr(fallback string) string {
	if r.Description == nil {
		return fallback
	}
	return *r.Description
}

// Registry maps operand targets to their handlers
type Registry struct {
	handlers map[instruction.OperandTarget]TargetHandler
	byName   map[string]TargetHandler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[instruction.OperandTarget]TargetHandler),
		byName:   make(map[string]TargetHandler),
	}
}

// Register routes every target of handler to it, replacing earlier handlers
func (r *Registry) Register(handler TargetHandler) {
	for _, target := range handler.Targets() {
		r.handlers[target] = handler
	}
	r.byName[handler.GetName()] = handler
}

// Get returns the handler for a target
func (r *Registry) Get(target instruction.OperandTarget) (TargetHandler, bool) {
	handler, exists := r.handlers[target]
	return handler, exists
}

// List returns all registered handler names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Targets     []string `json:"targets"`
}

// Info describes every registered handler, sorted by name
func (r *Registry) Info() []HandlerInfo {
	infos := make([]HandlerInfo, 0, len(r.byName))
	for _, name := range r.List() {
		handler := r.byName[name]
		var targets []string
		for _, t := range handler.Targets() {
			// A later handler may have taken over the target
			if r.handlers[t] == handler {
				targets = append(targets, string(t))
			}
		}
		infos = append(infos, HandlerInfo{
			Name:        handler.GetName(),
			Description: handler.GetDescription(),
			Targets:     targets,
		})
	}
	return infos
}
