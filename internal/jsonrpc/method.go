package jsonrpc

import (
	"context"
	"sort"
)

// MethodHandler defines the interface for JSON-RPC method handlers
type MethodHandler interface {
	// Handle processes the method and returns the result
	Handle(ctx context.Context, params []string) (interface{}, error)

	// GetName returns the method name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// IsReadOnly returns true if the method only reads data
	IsReadOnly() bool
}

// MethodRegistry manages available methods
type MethodRegistry struct {
	handlers map[string]MethodHandler
}

// NewMethodRegistry creates a new method registry
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		handlers: make(map[string]MethodHandler),
	}
}

// Register adds a method handler to the registry
func (r *MethodRegistry) Register(handler MethodHandler) {
	r.handlers[handler.GetName()] = handler
}

// Get returns a method handler by name
func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// List returns all registered method names, sorted
func (r *MethodRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandError represents a method-specific error. It is reported with
// JSON-RPC code -32602 and Code as the message.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *CommandError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidFormat = "INVALID_FORMAT"
	ErrInvalidParams = "INVALID_PARAMS"
	ErrUnavailable   = "UNAVAILABLE"
	ErrInternal      = "INTERNAL"
)

// MethodFunc adapts a function to MethodHandler
type MethodFunc struct {
	name        string
	description string
	readOnly    bool
	fn          func(ctx context.Context, params []string) (interface{}, error)
}

// NewMethodFunc creates a method handler from fn
func NewMethodFunc(name, description string, readOnly bool, fn func(ctx context.Context, params []string) (interface{}, error)) *MethodFunc {
	return &MethodFunc{
		name:        name,
		description: description,
		readOnly:    readOnly,
		fn:          fn,
	}
}

func (m *MethodFunc) Handle(ctx context.Context, params []string) (interface{}, error) {
	return m.fn(ctx, params)
}

func (m *MethodFunc) GetName() string {
	return m.name
}

func (m *MethodFunc) GetDescription() string {
	return m.description
}

func (m *MethodFunc) IsReadOnly() bool {
	return m.readOnly
}

// MethodInfo provides information about a method
type MethodInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ReadOnly    bool   `json:"read_only"`
}
