package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/instruction"
	"github.com/cabin-dispatch/internal/journal"
	"github.com/cabin-dispatch/internal/state"
)

const (
	apiSource           = "api"
	defaultHistoryLimit = 50
)

// Dispatcher is the part of dispatch.Dispatcher the API exposes
type Dispatcher interface {
	Process(ctx context.Context, code, source string) (*instruction.Parsed, dispatch.Outcome, error)
	Snapshot() state.Snapshot
	Handlers() []dispatch.HandlerInfo
}

// History returns recently processed instructions
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Record, error)
}

// InstructionResult is the result of the instruction method
type InstructionResult struct {
	Outcome dispatch.Outcome    `json:"outcome"`
	Parsed  *instruction.Parsed `json:"parsed"`
}

// RegisterInstructionMethods registers the instruction API on s. history may
// be nil when the journal is disabled.
func RegisterInstructionMethods(s *Server, d Dispatcher, history History) {
	s.Register(NewMethodFunc("instruction", "Parse and dispatch an instruction code: [code, source?]", false,
		func(ctx context.Context, params []string) (interface{}, error) {
			if len(params) < 1 || len(params) > 2 {
				return nil, invalidParams("expected [code, source?]")
			}
			source := apiSource
			if len(params) == 2 && strings.TrimSpace(params[1]) != "" {
				source = params[1]
			}
			parsed, outcome, err := d.Process(ctx, params[0], source)
			if err != nil {
				return nil, formatError(err)
			}
			return InstructionResult{Outcome: outcome, Parsed: parsed}, nil
		}))

	s.Register(NewMethodFunc("parse", "Parse an instruction code without dispatching it: [code]", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			if len(params) != 1 {
				return nil, invalidParams("expected [code]")
			}
			parsed, err := instruction.Parse(params[0])
			if err != nil {
				return nil, formatError(err)
			}
			return parsed, nil
		}))

	s.Register(NewMethodFunc("emergency", "Current emergency state", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return d.Snapshot(), nil
		}))

	s.Register(NewMethodFunc("opcodes", "Opcode table", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return instruction.Actions(), nil
		}))

	s.Register(NewMethodFunc("operands", "Operand table", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return instruction.Targets(), nil
		}))

	s.Register(NewMethodFunc("targets", "Registered target handlers", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return d.Handlers(), nil
		}))

	s.Register(NewMethodFunc("history", "Recently processed instructions, newest first: [limit?]", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			if history == nil {
				return nil, &CommandError{Code: ErrUnavailable, Message: "journal disabled"}
			}
			limit := defaultHistoryLimit
			if len(params) > 0 {
				n, err := strconv.Atoi(params[0])
				if err != nil || n <= 0 {
					return nil, invalidParams(fmt.Sprintf("invalid limit %q", params[0]))
				}
				limit = n
			}
			return history.Recent(ctx, limit)
		}))

	s.Register(NewMethodFunc("methods", "Available methods", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return s.Methods(), nil
		}))
}

func invalidParams(msg string) error {
	return &CommandError{Code: ErrInvalidParams, Message: msg}
}

func formatError(err error) error {
	if errors.Is(err, instruction.ErrInvalidFormat) {
		return &CommandError{Code: ErrInvalidFormat, Message: err.Error()}
	}
	return err
}
