// Package postgres persists delivery records and their transition log.
//
// Schema:
//
//	CREATE TABLE deliveries (
//	    delivery_id     TEXT PRIMARY KEY,
//	    event           TEXT NOT NULL,
//	    action          TEXT NOT NULL DEFAULT '',
//	    repository_id   TEXT NOT NULL DEFAULT '',
//	    repository_name TEXT NOT NULL DEFAULT '',
//	    sender_id       TEXT NOT NULL DEFAULT '',
//	    sender_login    TEXT NOT NULL DEFAULT '',
//	    status          TEXT NOT NULL,
//	    payload         JSONB,
//	    recorded_at     TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE delivery_transitions (
//	    id          UUID PRIMARY KEY,
//	    delivery_id TEXT NOT NULL,
//	    seq         INT NOT NULL,
//	    status      TEXT NOT NULL,
//	    detail      TEXT NOT NULL DEFAULT '',
//	    recorded_at TIMESTAMPTZ NOT NULL,
//	    UNIQUE (delivery_id, seq)
//	);
package postgres

import (
	"context"
	"time"

	"github.com/cbwinslow/crawl4ai/internal/domain"

	"database/sql"
)

// Store implements the delivery store against PostgreSQL.
// Every operation runs under the configured per-operation timeout.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a PostgreSQL store. opTimeout bounds each database call;
// zero disables the bound.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// UpsertDelivery writes the head state for a delivery id, inserting on
// first sight and updating the status and payload metadata afterwards.
func (s *Store) UpsertDelivery(ctx context.Context, d domain.Delivery) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryUpsertDelivery,
		d.DeliveryID,
		string(d.Event),
		d.Action,
		d.RepositoryID,
		d.RepositoryName,
		d.SenderID,
		d.SenderLogin,
		string(d.Status),
		d.Payload,
		d.RecordedAt,
	)
	return err
}

// AppendTransition appends one status change to the delivery's transition
// log. Seq is assigned by the insert; the value in tr is ignored.
func (s *Store) AppendTransition(ctx context.Context, tr domain.Transition) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryAppendTransition,
		tr.ID,
		tr.DeliveryID,
		string(tr.Status),
		tr.Detail,
		tr.RecordedAt,
	)
	return err
}

// ListDeliveries returns delivery head states, newest first.
func (s *Store) ListDeliveries(ctx context.Context, limit, offset int) ([]domain.Delivery, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListDeliveries, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		var event, status string
		err := rows.Scan(
			&d.DeliveryID,
			&event,
			&d.Action,
			&d.RepositoryID,
			&d.RepositoryName,
			&d.SenderID,
			&d.SenderLogin,
			&status,
			&d.Payload,
			&d.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		d.Event = domain.EventType(event)
		d.Status = domain.DeliveryStatus(status)
		result = append(result, d)
	}

	return result, rows.Err()
}

// ListTransitions returns the transition log for one delivery in sequence order.
func (s *Store) ListTransitions(ctx context.Context, deliveryID string, limit, offset int) ([]domain.Transition, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListTransitions, deliveryID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Transition
	for rows.Next() {
		var tr domain.Transition
		var status string
		err := rows.Scan(&tr.ID, &tr.DeliveryID, &tr.Seq, &status, &tr.Detail, &tr.RecordedAt)
		if err != nil {
			return nil, err
		}
		tr.Status = domain.DeliveryStatus(status)
		result = append(result, tr)
	}

	return result, rows.Err()
}

// PruneBefore deletes terminal deliveries recorded before cutoff together
// with their transitions; in-flight rows stay whatever their age.
// Returns the number of delivery rows removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryPruneTransitions, cutoff); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, queryPruneDeliveries, cutoff)
	if err != nil {
		return 0, err
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return pruned, tx.Commit()
}
