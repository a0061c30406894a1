// Package pgstore is a Postgres-backed oncall.Repository, for deployments
// that want alerts to survive a process restart. It stores each alert as
// a JSONB snapshot — including its escalation policy, rather than a
// foreign key into a mutable policies table, since an alert must keep
// escalating against the policy it was raised under even if that policy
// is edited or deleted later.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Store is a Postgres-backed oncall.Repository.
type Store struct {
	pool *pgxpool.Pool
}

var _ oncall.Repository = (*Store)(nil)

// New creates a Store over an already-migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// currentResponders extracts the responder IDs assigned at an alert's
// current level, for the indexed current_responders column.
func currentResponders(alert oncall.Alert) []uuid.UUID {
	ids := make([]uuid.UUID, 0, 4)
	for _, asn := range alert.AssignmentsAtLevel(alert.CurrentLevelIndex) {
		ids = append(ids, asn.Target.Responder.ID)
	}
	return ids
}

// Put upserts the alert's full snapshot.
func (s *Store) Put(ctx context.Context, alert oncall.Alert) error {
	doc, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling alert: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (id, priority, status, created_at, current_responders, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			current_responders = EXCLUDED.current_responders,
			document = EXCLUDED.document
	`, alert.ID, string(alert.Priority), string(alert.Status), alert.CreatedAt, pq.Array(currentResponders(alert)), doc)
	if err != nil {
		return fmt.Errorf("pgstore: upserting alert %s: %w", alert.ID, err)
	}
	return nil
}

// Get loads a single alert by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (oncall.Alert, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM alerts WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return oncall.Alert{}, false, nil
		}
		return oncall.Alert{}, false, fmt.Errorf("pgstore: loading alert %s: %w", id, err)
	}

	var alert oncall.Alert
	if err := json.Unmarshal(doc, &alert); err != nil {
		return oncall.Alert{}, false, fmt.Errorf("pgstore: decoding alert %s: %w", id, err)
	}
	return alert, true, nil
}

// List returns every alert ordered by creation time ascending, optionally
// filtered by status.
func (s *Store) List(ctx context.Context, status *oncall.Status) ([]oncall.Alert, error) {
	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = s.pool.Query(ctx, `SELECT document FROM alerts WHERE status = $1 ORDER BY created_at ASC`, string(*status))
	} else {
		rows, err = s.pool.Query(ctx, `SELECT document FROM alerts ORDER BY created_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: listing alerts: %w", err)
	}
	defer rows.Close()

	var out []oncall.Alert
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("pgstore: scanning alert row: %w", err)
		}
		var alert oncall.Alert
		if err := json.Unmarshal(doc, &alert); err != nil {
			return nil, fmt.Errorf("pgstore: decoding alert row: %w", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterating alert rows: %w", err)
	}
	return out, nil
}
