package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/cabin-dispatch/internal/dispatch"
)

const (
	// queueSize bounds the writes waiting for the writer goroutine
	queueSize = 4096
	maxRecent = 1000
)

// Record is one journaled instruction
type Record struct {
	ID          int64     `json:"id"`
	At          time.Time `json:"at"`
	Source      string    `json:"source"`
	Code        string    `json:"code"`
	Opcode      *int      `json:"opcode,omitempty"`
	Operand     *int      `json:"operand,omitempty"`
	Action      string    `json:"action,omitempty"`
	Target      string    `json:"target,omitempty"`
	Description *string   `json:"description,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	DurationUs  int64     `json:"durationUs"`
}

type req struct {
	record Record
	// done is closed once every earlier request is written
	done chan struct{}
}

// Journal stores processed instructions in SQLite. Writes happen on a
// single goroutine; Observe never blocks the dispatcher.
type Journal struct {
	db  *sql.DB
	log logrus.FieldLogger

	// mu guards ch against a send racing Close
	mu     sync.RWMutex
	closed bool
	ch     chan req
	wg     sync.WaitGroup

	dropped atomic.Int64
}

// Open opens or creates the journal database at path
func Open(path string, log logrus.FieldLogger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	j := &Journal{
		db:  db,
		log: log,
		ch:  make(chan req, queueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instructions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			source TEXT NOT NULL,
			code TEXT NOT NULL,
			opcode INTEGER,
			operand INTEGER,
			action TEXT,
			target TEXT,
			description TEXT,
			outcome TEXT NOT NULL,
			error TEXT,
			duration_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_instructions_ts ON instructions(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_instructions_outcome ON instructions(outcome, ts);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Observe queues the event for writing. Events are dropped when the writer
// falls behind.
func (j *Journal) Observe(ctx context.Context, ev dispatch.Event) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- req{record: recordFromEvent(ev)}:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			j.log.WithField("dropped", n).Warn("Journal queue full, dropping instructions")
		}
	}
}

func recordFromEvent(ev dispatch.Event) Record {
	r := Record{
		At:         ev.At,
		Source:     ev.Source,
		Code:       ev.Code,
		Outcome:    string(ev.Outcome),
		DurationUs: ev.Duration.Microseconds(),
	}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	if p := ev.Parsed; p != nil {
		opcode, operand := p.Opcode, p.Operand
		r.Opcode = &opcode
		r.Operand = &operand
		r.Action = string(p.Action)
		r.Target = string(p.Target)
		r.Description = p.Description
	}
	return r
}

// Sync waits until every event observed before the call is written
func (j *Journal) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := j.enqueue(ctx, req{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) enqueue(ctx context.Context, r req) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return fmt.Errorf("journal closed")
	}
	select {
	case j.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events lost to a full queue
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) loop() {
	insert, err := j.db.Prepare(`INSERT INTO instructions(ts,source,code,opcode,operand,action,target,description,outcome,error,duration_us) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.log.WithError(err).Error("Failed to prepare journal insert")
	} else {
		defer insert.Close()
	}

	for r := range j.ch {
		if r.done != nil {
			close(r.done)
			continue
		}
		if insert == nil {
			continue
		}
		rec := r.record
		if _, err := insert.Exec(
			rec.At.UnixMilli(),
			rec.Source,
			rec.Code,
			nullInt(rec.Opcode),
			nullInt(rec.Operand),
			nullString(rec.Action),
			nullString(rec.Target),
			nullStringPtr(rec.Description),
			rec.Outcome,
			nullString(rec.Error),
			rec.DurationUs,
		); err != nil {
			j.log.WithError(err).WithField("code", rec.Code).Warn("Failed to journal instruction")
		}
	}
}

// Recent returns the newest records first, at most limit of them
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id,ts,source,code,opcode,operand,action,target,description,outcome,error,duration_us
		FROM instructions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec         Record
			ts          int64
			opcode      sql.NullInt64
			operand     sql.NullInt64
			action      sql.NullString
			target      sql.NullString
			description sql.NullString
			errText     sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Source, &rec.Code, &opcode, &operand, &action, &target, &description, &rec.Outcome, &errText, &rec.DurationUs); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		rec.At = time.UnixMilli(ts)
		if opcode.Valid {
			v := int(opcode.Int64)
			rec.Opcode = &v
		}
		if operand.Valid {
			v := int(operand.Int64)
			rec.Operand = &v
		}
		rec.Action = action.String
		rec.Target = target.String
		if description.Valid {
			d := description.String
			rec.Description = &d
		}
		rec.Error = errText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close drains pending writes and closes the database
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	return j.db.Close()
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
