package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert records a fired movement alert.
func (s *AlertStore) Insert(ctx context.Context, alert domain.MoveAlert) error {
	const query = `
		INSERT INTO move_alerts
			(id, ticker, direction, percent, anchor_from, anchor_to, dedup_key, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		alert.ID,
		alert.Ticker,
		alert.Direction,
		alert.Percent,
		alert.AnchorFrom,
		alert.AnchorTo,
		alert.DedupKey,
		alert.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert move alert %s: %w", alert.Ticker, err)
	}
	return nil
}

// Recent returns the most recently fired alerts for a ticker, newest first.
func (s *AlertStore) Recent(ctx context.Context, ticker string, limit int) ([]domain.MoveAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, ticker, direction, percent, anchor_from, anchor_to, dedup_key, fired_at
		FROM move_alerts
		WHERE ticker = $1
		ORDER BY fired_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list move alerts %s: %w", ticker, err)
	}
	defer rows.Close()

	var alerts []domain.MoveAlert
	for rows.Next() {
		var a domain.MoveAlert
		if err := rows.Scan(
			&a.ID, &a.Ticker, &a.Direction, &a.Percent,
			&a.AnchorFrom, &a.AnchorTo, &a.DedupKey, &a.FiredAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan move alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate move alerts: %w", err)
	}
	return alerts, nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
