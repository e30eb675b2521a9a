package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/instruction"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	log, _ := test.NewNullLogger()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func mustParse(t *testing.T, code string) *instruction.Parsed {
	t.Helper()
	p, err := instruction.Parse(code)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", code, err)
	}
	return p
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	log, _ := test.NewNullLogger()
	if _, err := Open("", log); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestObserveAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	at := time.UnixMilli(1700000000000)

	j.Observe(ctx, dispatch.Event{
		Source:   "voice",
		Code:     "0002[公司]",
		Parsed:   mustParse(t, "0002[公司]"),
		Outcome:  dispatch.OutcomeRouted,
		At:       at,
		Duration: 1500 * time.Microsecond,
	})
	j.Observe(ctx, dispatch.Event{
		Source:  "gesture",
		Code:    "2300",
		Parsed:  mustParse(t, "2300"),
		Outcome: dispatch.OutcomeEmergencyEntered,
		At:      at.Add(time.Second),
	})
	j.Observe(ctx, dispatch.Event{
		Source:  "voice",
		Code:    "abc",
		Outcome: dispatch.OutcomeRejected,
		Err:     errors.New("invalid instruction format: abc"),
		At:      at.Add(2 * time.Second),
	})

	if err := j.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	records, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	rejected := records[0]
	if rejected.Code != "abc" || rejected.Outcome != "rejected" {
		t.Errorf("Expected newest record first, got %+v", rejected)
	}
	if rejected.Opcode != nil || rejected.Action != "" || rejected.Error == "" {
		t.Errorf("Expected rejected record without parse and with error, got %+v", rejected)
	}

	nav := records[2]
	if nav.Opcode == nil || *nav.Opcode != 0 || nav.Operand == nil || *nav.Operand != 2 {
		t.Errorf("Expected opcode 0 operand 2, got %v %v", nav.Opcode, nav.Operand)
	}
	if nav.Action != "TURN_ON" || nav.Target != "NAVIGATION" {
		t.Errorf("Expected TURN_ON NAVIGATION, got %s %s", nav.Action, nav.Target)
	}
	if nav.Description == nil || *nav.Description != "公司" {
		t.Errorf("Expected description 公司, got %v", nav.Description)
	}
	if !nav.At.Equal(at) {
		t.Errorf("Expected timestamp %v, got %v", at, nav.At)
	}
	if nav.DurationUs != 1500 {
		t.Errorf("Expected 1500us, got %d", nav.DurationUs)
	}

	if records[1].Description != nil {
		t.Errorf("Expected no description for 2300, got %q", *records[1].Description)
	}
}

func TestEmptyDescriptionIsKept(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	j.Observe(ctx, dispatch.Event{Source: "voice", Code: "0002[]", Parsed: mustParse(t, "0002[]"), Outcome: dispatch.OutcomeRouted, At: time.Now()})
	if err := j.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	records, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Description == nil || *records[0].Description != "" {
		t.Errorf("Expected empty but present description, got %v", records[0].Description)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		j.Observe(ctx, dispatch.Event{Source: "voice", Code: "0303", Parsed: mustParse(t, "0303"), Outcome: dispatch.OutcomeRouted, At: time.Now()})
	}
	if err := j.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 0},
		{-1, 0},
		{2, 2},
		{50, 5},
	}
	for _, tt := range tests {
		records, err := j.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d) failed: %v", tt.limit, err)
		}
		if len(records) != tt.want {
			t.Errorf("Recent(%d): expected %d records, got %d", tt.limit, tt.want, len(records))
		}
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path, log)
	if err != nil {
		t.Fatal(err)
	}
	j.Observe(ctx, dispatch.Event{Source: "voice", Code: "0301", Parsed: mustParse(t, "0301"), Outcome: dispatch.OutcomeSetting, At: time.Now()})
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j, err = Open(path, log)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	records, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Outcome != "setting" {
		t.Errorf("Expected the setting record to survive reopen, got %+v", records)
	}
}

func TestClosedJournal(t *testing.T) {
	log, _ := test.NewNullLogger()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}

	// Must not panic
	j.Observe(context.Background(), dispatch.Event{Source: "voice", Code: "0303"})

	if err := j.Sync(context.Background()); err == nil {
		t.Error("Expected Sync on closed journal to fail")
	}
}
