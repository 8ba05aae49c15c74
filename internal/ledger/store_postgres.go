package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	id "docanchor/pkg/domain"
)

// PostgresStore persists stage events in an append-only table. Ordering is
// by the seq bigserial so reads are restartable and stable.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the event. The table has no UPDATE or DELETE path.
func (s *PostgresStore) Append(ctx context.Context, event StageEvent) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal stage event metadata: %w", err)
	}
	query := `
		INSERT INTO stage_events (document_id, previous_stage, new_stage, trigger_type, reason, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.DocumentID.String(),
		string(event.PreviousStage),
		string(event.NewStage),
		string(event.Trigger),
		event.Reason,
		meta,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// History returns the document's events in append order.
func (s *PostgresStore) History(ctx context.Context, documentID id.DocumentID) ([]StageEvent, error) {
	query := `
		SELECT previous_stage, new_stage, trigger_type, reason, metadata, occurred_at
		FROM stage_events
		WHERE document_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		event, err := scanEvent(rows, documentID)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage events: %w", err)
	}
	return events, nil
}

// Latest returns the most recent event for the document, or nil.
func (s *PostgresStore) Latest(ctx context.Context, documentID id.DocumentID) (*StageEvent, error) {
	query := `
		SELECT previous_stage, new_stage, trigger_type, reason, metadata, occurred_at
		FROM stage_events
		WHERE document_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, documentID.String())
	event, err := scanEvent(row, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, documentID id.DocumentID) (StageEvent, error) {
	var (
		event StageEvent
		prev  string
		next  string
		trig  string
		meta  []byte
	)
	if err := row.Scan(&prev, &next, &trig, &event.Reason, &meta, &event.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StageEvent{}, err
		}
		return StageEvent{}, fmt.Errorf("scan stage event: %w", err)
	}
	event.DocumentID = documentID
	event.PreviousStage = id.Stage(prev)
	event.NewStage = id.Stage(next)
	event.Trigger = id.Trigger(trig)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &event.Metadata); err != nil {
			return StageEvent{}, fmt.Errorf("unmarshal stage event metadata: %w", err)
		}
	}
	return event, nil
}
