package instruction

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func TestParseOpcodeAndOperand(t *testing.T) {
	for opcode := 0; opcode < 100; opcode += 7 {
		for operand := 0; operand < 100; operand += 11 {
			code := fmt.Sprintf("%02d%02d", opcode, operand)
			p, err := Parse(code)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", code, err)
			}
			wantOp, _ := strconv.Atoi(code[0:2])
			wantOperand, _ := strconv.Atoi(code[2:4])
			if p.Opcode != wantOp || p.Operand != wantOperand {
				t.Errorf("Parse(%q) = (%d, %d), want (%d, %d)", code, p.Opcode, p.Operand, wantOp, wantOperand)
			}
			if p.Description != nil {
				t.Errorf("Parse(%q) description = %q, want absent", code, *p.Description)
			}
			if p.OriginalCode != code {
				t.Errorf("Expected original code %q, got %q", code, p.OriginalCode)
			}
		}
	}
}

func TestParseDescription(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"chinese text", "1503[去公司]", "去公司"},
		{"english text", "2300[please look ahead]", "please look ahead"},
		{"empty brackets", "0002[]", ""},
		{"digits", "0201[26]", "26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.code)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.code, err)
			}
			if p.Description == nil {
				t.Fatalf("Expected description %q, got absent", tt.want)
			}
			if *p.Description != tt.want {
				t.Errorf("Expected description %q, got %q", tt.want, *p.Description)
			}
		})
	}
}

func TestParseRejectsMalformedCodes(t *testing.T) {
	codes := []string{
		"",
		"030",
		"03021",
		"ab02",
		"0x02",
		"03 2",
		"0302[",
		"0302]",
		"0302[a]b",
		"0302[a]]",
		"0302[a[b]]",
		" 0302",
		"0302 ",
		"٠٣٠٢",
		"-302",
	}

	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			p, err := Parse(code)
			if err == nil {
				t.Fatalf("Parse(%q) = %+v, want error", code, p)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FormatError, got %T", err)
			}
			if fe.Code != code {
				t.Errorf("Expected error code %q, got %q", code, fe.Code)
			}
			if !errors.Is(err, ErrInvalidFormat) {
				t.Error("Expected errors.Is(err, ErrInvalidFormat)")
			}
		})
	}
}

func TestActionFor(t *testing.T) {
	documented := []OpcodeAction{
		TurnOn, TurnOff, SetValue, Start, Stop, Increase, Decrease, Toggle,
		Query, Adjust, Activate, Deactivate, Schedule, CancelSchedule, Locate,
		Connect, Disconnect, Sync, Reset, ModeChange, CustomSetting,
		SaveSetting, LoadSetting, Emergency, StatusUpdate, Calculate,
		Previous, Next, Confirm, Reject, CancelEmergency,
	}
	for opcode, want := range documented {
		if got := ActionFor(opcode); got != want {
			t.Errorf("ActionFor(%d) = %s, want %s", opcode, got, want)
		}
	}

	for _, opcode := range []int{-1, 31, 50, 99} {
		if got := ActionFor(opcode); got != ActionUnknown {
			t.Errorf("ActionFor(%d) = %s, want UNKNOWN", opcode, got)
		}
	}
}

func TestTargetFor(t *testing.T) {
	spot := map[int]OperandTarget{
		1:  AC,
		2:  Navigation,
		3:  MediaPlayer,
		9:  SeatHeaterDriver,
		29: Phone,
		30: TextMessage,
		42: AmbientLighting,
		50: TrafficInfo,
	}
	for operand, want := range spot {
		if got := TargetFor(operand); got != want {
			t.Errorf("TargetFor(%d) = %s, want %s", operand, got, want)
		}
	}

	for operand := 1; operand <= 50; operand++ {
		if got := TargetFor(operand); got == TargetUnknown {
			t.Errorf("TargetFor(%d) returned UNKNOWN", operand)
		}
	}

	for _, operand := range []int{0, 51, 99} {
		if got := TargetFor(operand); got != TargetUnknown {
			t.Errorf("TargetFor(%d) = %s, want UNKNOWN", operand, got)
		}
	}
}

func TestParseResolvesTables(t *testing.T) {
	p, err := Parse("0302")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Action != Start || p.Target != Navigation {
		t.Errorf("Expected START NAVIGATION, got %s %s", p.Action, p.Target)
	}

	p, err = Parse("9900")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Action != ActionUnknown || p.Target != TargetUnknown {
		t.Errorf("Expected UNKNOWN UNKNOWN, got %s %s", p.Action, p.Target)
	}
}

func TestEmergencyOpcodes(t *testing.T) {
	tests := []struct {
		code      string
		emergency bool
		release   bool
	}{
		{"2300", true, false},
		{"2800", false, true},
		{"2900", false, true},
		{"3000", false, true},
		{"0302", false, false},
	}

	for _, tt := range tests {
		p, err := Parse(tt.code)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.code, err)
		}
		if p.IsEmergency() != tt.emergency {
			t.Errorf("%s: IsEmergency() = %v, want %v", tt.code, p.IsEmergency(), tt.emergency)
		}
		if p.IsRelease() != tt.release {
			t.Errorf("%s: IsRelease() = %v, want %v", tt.code, p.IsRelease(), tt.release)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"0001", "打开空调"},
		{"0427", "停止蓝牙"},
		{"9901", "未知操作空调"},
		{"0099", "打开未知对象"},
	}

	for _, tt := range tests {
		p, _ := Parse(tt.code)
		if got := Describe(p); got != tt.want {
			t.Errorf("Describe(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTablesListing(t *testing.T) {
	actions := Actions()
	if len(actions) != 31 {
		t.Fatalf("Expected 31 actions, got %d", len(actions))
	}
	if actions[23].Name != string(Emergency) || actions[23].Code != 23 {
		t.Errorf("Expected EMERGENCY at 23, got %+v", actions[23])
	}

	targets := Targets()
	if len(targets) != 50 {
		t.Fatalf("Expected 50 targets, got %d", len(targets))
	}
	if targets[0].Code != 1 || targets[0].Name != string(AC) {
		t.Errorf("Expected AC at 1, got %+v", targets[0])
	}
	if targets[49].Code != 50 || targets[49].Label != "交通信息" {
		t.Errorf("Expected TRAFFIC_INFO at 50, got %+v", targets[49])
	}
}

func TestDescriptionOr(t *testing.T) {
	p, _ := Parse("0002")
	if got := p.DescriptionOr("fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
	p, _ = Parse("0002[家]")
	if got := p.DescriptionOr("fallback"); got != "家" {
		t.Errorf("Expected 家, got %q", got)
	}
}
