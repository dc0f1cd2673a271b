package collaborators

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CycleRecord is the durable view of one completed detection cycle,
// decoupled from the coordinator package's own Cycle type so this
// package never imports it.
type CycleRecord struct {
	CycleID           string
	Status            string
	StartTime         time.Time
	EndTime           time.Time
	IncidentsProcessed int
	RulesDeployed     int
	RulesTuned        int
	FeedbackCollected int
	Errors            []string
}

// CycleAuditSink persists completed cycle records for later inspection.
type CycleAuditSink interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
}

// SQLiteAuditSink is the optional durable cycle-history audit sink
// (spec.md §6), grounded on internal/database/postgres.go's
// connection-setup style, adapted for a local SQLite file rather than a
// networked Postgres instance.
type SQLiteAuditSink struct {
	db *sql.DB
}

// NewSQLiteAuditSink opens (creating if absent) a SQLite database at
// path and ensures its schema exists.
func NewSQLiteAuditSink(path string) (*SQLiteAuditSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cycle audit db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers anyway

	const ddl = `
CREATE TABLE IF NOT EXISTS cycle_history (
	cycle_id            TEXT PRIMARY KEY,
	status              TEXT NOT NULL,
	start_time          DATETIME NOT NULL,
	end_time            DATETIME,
	incidents_processed INTEGER,
	rules_deployed      INTEGER,
	rules_tuned         INTEGER,
	feedback_collected  INTEGER,
	errors              TEXT
)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("ensure cycle audit schema: %w", err)
	}

	return &SQLiteAuditSink{db: db}, nil
}

// RecordCycle inserts or replaces the audit row for rec.CycleID.
func (s *SQLiteAuditSink) RecordCycle(ctx context.Context, rec CycleRecord) error {
	errs, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("marshal cycle errors: %w", err)
	}

	const upsert = `
INSERT OR REPLACE INTO cycle_history
	(cycle_id, status, start_time, end_time, incidents_processed, rules_deployed, rules_tuned, feedback_collected, errors)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, upsert,
		rec.CycleID, rec.Status, rec.StartTime, rec.EndTime,
		rec.IncidentsProcessed, rec.RulesDeployed, rec.RulesTuned, rec.FeedbackCollected, errs)
	if err != nil {
		return fmt.Errorf("record cycle audit: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteAuditSink) Close() error {
	return s.db.Close()
}
