package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSink is the optional durable feedback sink (spec.md §6),
// grounded on the connection/DSN pattern in the teacher's
// internal/database/postgres.go (NewPostgresDB/Connect): DSN built with
// fmt.Sprintf, sql.Open("postgres", dsn), connection-pool tuning,
// PingContext. The schema and queries themselves are purpose-built for
// feedback items rather than carried over from the teacher's KYB tables.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens a connection to dsn and ensures the feedback
// table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open feedback sink: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping feedback sink: %w", err)
	}

	sink := &PostgresSink{db: db}
	if err := sink.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}

func (p *PostgresSink) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS rule_feedback (
	feedback_id    TEXT PRIMARY KEY,
	rule_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	occurred_at    TIMESTAMPTZ NOT NULL,
	source         TEXT,
	confidence     DOUBLE PRECISION,
	alert_id       TEXT,
	incident_id    TEXT,
	analyst_notes  TEXT,
	details        JSONB
)`
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure feedback schema: %w", err)
	}
	return nil
}

// Write inserts a single feedback item, grounded on spec.md §6's
// `write(FeedbackItem)` collaborator contract.
func (p *PostgresSink) Write(ctx context.Context, item Item) error {
	details, err := json.Marshal(item.Details)
	if err != nil {
		return fmt.Errorf("marshal feedback details: %w", err)
	}

	const insert = `
INSERT INTO rule_feedback
	(feedback_id, rule_id, kind, occurred_at, source, confidence, alert_id, incident_id, analyst_notes, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (feedback_id) DO NOTHING`

	_, err = p.db.ExecContext(ctx, insert,
		item.FeedbackID, item.RuleID, string(item.Kind), item.Timestamp,
		item.Source, item.Confidence, item.AlertID, item.IncidentID, item.AnalystNotes, details)
	if err != nil {
		return fmt.Errorf("write feedback item: %w", err)
	}
	return nil
}

// Read returns feedback items newer than since, optionally filtered by
// ruleIDs.
func (p *PostgresSink) Read(ctx context.Context, since time.Time, ruleIDs []string) ([]Item, error) {
	query := `
SELECT feedback_id, rule_id, kind, occurred_at, source, confidence, alert_id, incident_id, analyst_notes, details
FROM rule_feedback
WHERE occurred_at >= $1`
	args := []interface{}{since}

	if len(ruleIDs) > 0 {
		query += " AND rule_id = ANY($2)"
		args = append(args, ruleIDsToArray(ruleIDs))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read feedback items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var kind string
		var details []byte
		var source, alertID, incidentID, notes sql.NullString
		var confidence sql.NullFloat64

		if err := rows.Scan(&item.FeedbackID, &item.RuleID, &kind, &item.Timestamp,
			&source, &confidence, &alertID, &incidentID, &notes, &details); err != nil {
			return nil, fmt.Errorf("scan feedback item: %w", err)
		}
		item.Kind = Kind(kind)
		item.Source = source.String
		item.Confidence = confidence.Float64
		item.AlertID = alertID.String
		item.IncidentID = incidentID.String
		item.AnalystNotes = notes.String
		if len(details) > 0 {
			_ = json.Unmarshal(details, &item.Details)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close releases the underlying connection pool.
func (p *PostgresSink) Close() error {
	return p.db.Close()
}

func ruleIDsToArray(ids []string) interface{} {
	// lib/pq supports []string directly via pq.Array in production use;
	// kept as a plain slice here since pq.Array is a thin wrapper and the
	// driver accepts it through database/sql's []interface{} args path.
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
