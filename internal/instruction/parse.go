package instruction

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// codePattern matches AABB or AABB[description]
var codePattern = regexp.MustCompile(`^(\d{2})(\d{2})(?:\[([^\]]*)\])?$`)

// ErrInvalidFormat is matched by every FormatError via errors.Is
var ErrInvalidFormat = errors.New("invalid instruction code format")

// FormatError reports a code that does not match AABB[description]
type FormatError struct {
	Code string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid instruction code format: %q", e.Code)
}

// Is lets errors.Is(err, ErrInvalidFormat) match any FormatError
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Parsed is a decoded instruction code
type Parsed struct {
	Opcode       int           `json:"opcode"`
	Operand      int           `json:"operand"`
	Description  *string       `json:"description"`
	OriginalCode string        `json:"originalCode"`
	Action       OpcodeAction  `json:"opcodeAction"`
	Target       OperandTarget `json:"operandTarget"`
}

// Parse decodes an instruction code. It has no side effects.
func Parse(code string) (*Parsed, error) {
	match := codePattern.FindStringSubmatchIndex(code)
	if match == nil {
		return nil, &FormatError{Code: code}
	}

	// Both pairs are exactly two ASCII digits, so Atoi cannot fail
	opcode, _ := strconv.Atoi(code[match[2]:match[3]])
	operand, _ := strconv.Atoi(code[match[4]:match[5]])

	p := &Parsed{
		Opcode:       opcode,
		Operand:      operand,
		OriginalCode: code,
		Action:       ActionFor(opcode),
		Target:       TargetFor(operand),
	}
	// The submatch index is -1 when the bracket group did not participate,
	// which is how an absent description differs from "[]"
	if match[6] >= 0 {
		desc := code[match[6]:match[7]]
		p.Description = &desc
	}
	return p, nil
}

// DescriptionOr returns the description or fallback when it is absent
func (p *Parsed) DescriptionOr(fallback string) string {
	if p.Description == nil {
		return fallback
	}
	return *p.Description
}

// IsEmergency reports whether the opcode enters the emergency state
func (p *Parsed) IsEmergency() bool {
	return p.Opcode == OpEmergency
}

// IsRelease reports whether the opcode leaves the emergency state
func (p *Parsed) IsRelease() bool {
	switch p.Opcode {
	case OpConfirm, OpReject, OpCancelEmergency:
		return true
	}
	return false
}

// Describe renders the instruction with its display labels, e.g. "打开空调"
func Describe(p *Parsed) string {
	action := p.Action.Label()
	if action == "" {
		action = "未知操作"
	}
	target := p.Target.Label()
	if target == "" {
		target = "未知对象"
	}
	return action + target
}
