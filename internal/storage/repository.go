package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSnapshotSQL = `INSERT INTO metal_prices (code, price_usd, ts)
    VALUES ($1, $2, $3);`

	insertDailySQL = `INSERT INTO metal_prices_daily (code, price_usd, day)
    VALUES ($1, $2, $3)
    ON CONFLICT (code, day) DO NOTHING;`

	listSnapshotsSinceSQL = `SELECT id, code, price_usd, ts
    FROM metal_prices
    WHERE code = $1
      AND ts >= $2
    ORDER BY ts ASC;`

	listRecentDailySQL = `SELECT id, code, price_usd, day
    FROM metal_prices_daily
    WHERE code = $1
    ORDER BY day DESC
    LIMIT $2;`

	listSnapshotsBetweenSQL = `SELECT id, code, price_usd, ts
    FROM metal_prices
    WHERE code = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts ASC;`

	listRecentSnapshotsSQL = `SELECT id, code, price_usd, ts
    FROM metal_prices
    ORDER BY ts DESC
    LIMIT $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM metal_prices;`

	listAlertsSQL = `SELECT id, user_id, code, condition, threshold, email, created_at, last_triggered
    FROM alerts
    ORDER BY id;`

	insertAlertSQL = `INSERT INTO alerts (user_id, code, condition, threshold, email, created_at)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id;`

	markTriggeredSQL = `UPDATE alerts SET last_triggered = $2 WHERE id = $1;`
)

// SnapshotStore defines time-series persistence for metal prices.
type SnapshotStore interface {
	InsertBatch(ctx context.Context, batch IngestionBatch) error
	ListSince(ctx context.Context, code string, since int64) ([]PriceSnapshot, error)
	ListRecentDaily(ctx context.Context, code string, n int) ([]DailyRollup, error)
}

// AlertStore defines alert definition persistence.
type AlertStore interface {
	ListAlerts(ctx context.Context) ([]AlertDefinition, error)
	CreateAlert(ctx context.Context, alert AlertDefinition) (AlertDefinition, error)
	MarkTriggered(ctx context.Context, id int64, ts int64) error
}

// Store aggregates access to snapshots, rollups, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertBatch writes one ingestion cycle atomically: a raw snapshot and a
// rollup attempt per priced code, all-or-nothing. Rollup uniqueness relies on
// the (code, day) unique index, so concurrent writers for the same day leave
// exactly one durable value.
func (s *Store) InsertBatch(ctx context.Context, batch IngestionBatch) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(batch.Prices) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ingestion batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for code, price := range batch.Prices {
		if price <= 0 {
			return fmt.Errorf("refusing non-positive price %v for %s", price, code)
		}
		if _, err := tx.Exec(ctx, insertSnapshotSQL, code, price, batch.TS); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", code, err)
		}
		if _, err := tx.Exec(ctx, insertDailySQL, code, price, batch.Day); err != nil {
			return fmt.Errorf("insert daily rollup %s: %w", code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ingestion batch: %w", err)
	}
	return nil
}

// ListSince returns raw snapshots for a code from the given epoch-millis
// timestamp onward, ascending by timestamp.
func (s *Store) ListSince(ctx context.Context, code string, since int64) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSinceSQL, code, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots since: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0)
	for rows.Next() {
		var snap PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.Code, &snap.PriceUSD, &snap.TS); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// ListRecentDaily returns the n most recent rollup rows for a code,
// newest-first. Callers reverse to present oldest-first.
func (s *Store) ListRecentDaily(ctx context.Context, code string, n int) ([]DailyRollup, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDailySQL, code, n)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent daily: %w", queryErr)
	}
	defer rows.Close()

	rollups := make([]DailyRollup, 0, n)
	for rows.Next() {
		var rollup DailyRollup
		var day time.Time
		if err := rows.Scan(&rollup.ID, &rollup.Code, &rollup.PriceUSD, &day); err != nil {
			return nil, err
		}
		rollup.Day = DayOf(day)
		rollups = append(rollups, rollup)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rollups, nil
}

// ListBetween returns raw snapshots for a code within [from, to), ascending
// by timestamp.
func (s *Store) ListBetween(ctx context.Context, code string, from, to int64) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, code, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0)
	for rows.Next() {
		var snap PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.Code, &snap.PriceUSD, &snap.TS); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// ListRecent returns the most recent raw snapshots across all codes,
// newest-first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0, limit)
	for rows.Next() {
		var snap PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.Code, &snap.PriceUSD, &snap.TS); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// CountSnapshots counts stored raw snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// ListAlerts returns every alert definition.
func (s *Store) ListAlerts(ctx context.Context) ([]AlertDefinition, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertDefinition, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// CreateAlert persists a new alert definition and returns it with its id.
func (s *Store) CreateAlert(ctx context.Context, alert AlertDefinition) (AlertDefinition, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertDefinition{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.UserID,
		alert.Code,
		alert.Condition,
		alert.Threshold,
		alert.Email,
		alert.CreatedAt,
	)
	if scanErr := row.Scan(&alert.ID); scanErr != nil {
		return AlertDefinition{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// MarkTriggered durably records the attempt time of an alert notification.
func (s *Store) MarkTriggered(ctx context.Context, id int64, ts int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markTriggeredSQL, id, ts)
	if execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanAlert(rows pgx.Rows) (AlertDefinition, error) {
	var (
		alert         AlertDefinition
		lastTriggered *int64
	)
	if err := rows.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Code,
		&alert.Condition,
		&alert.Threshold,
		&alert.Email,
		&alert.CreatedAt,
		&lastTriggered,
	); err != nil {
		return AlertDefinition{}, err
	}
	alert.LastTriggered = lastTriggered
	return alert, nil
}
