package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRoundSQL = `INSERT INTO rounds (
        feed_id,
        reported_at,
        value,
        window_average,
        provider_count,
        certain_count,
        flags
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (feed_id, reported_at) DO UPDATE
    SET
        value          = EXCLUDED.value,
        window_average = EXCLUDED.window_average,
        provider_count = EXCLUDED.provider_count,
        certain_count  = EXCLUDED.certain_count,
        flags          = EXCLUDED.flags
    RETURNING id;`

	listRoundsBetweenSQL = `SELECT
        id,
        feed_id,
        reported_at,
        value,
        window_average,
        provider_count,
        certain_count,
        flags,
        created_at
    FROM rounds
    WHERE feed_id = $1
      AND reported_at >= $2
      AND reported_at < $3
    ORDER BY reported_at;`

	listRecentRoundsSQL = `SELECT
        id,
        feed_id,
        reported_at,
        value,
        window_average,
        provider_count,
        certain_count,
        flags,
        created_at
    FROM rounds
    WHERE feed_id = $1
    ORDER BY reported_at DESC
    LIMIT $2;`

	countRoundsSQL = `SELECT COUNT(*) FROM rounds WHERE feed_id = $1;`

	deleteRoundsBeforeSQL = `DELETE FROM rounds WHERE reported_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RoundStore defines operations for accepted-round persistence.
type RoundStore interface {
	InsertRound(ctx context.Context, round RoundRecord) (int64, error)
	ListRecentRounds(ctx context.Context, feedID string, limit int) ([]RoundRecord, error)
	ListRoundsBetween(ctx context.Context, feedID string, from, to time.Time) ([]RoundRecord, error)
	CountRounds(ctx context.Context, feedID string) (int64, error)
	DeleteRoundsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides Postgres-backed round persistence.
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

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertRound persists or updates an accepted round.
func (s *Store) InsertRound(ctx context.Context, round RoundRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertRoundSQL,
		round.FeedID,
		round.ReportedAt,
		round.Value.String(),
		round.WindowAverage.String(),
		round.ProviderCount,
		round.CertainCount,
		int16(round.Flags),
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert round: %w", scanErr)
	}
	return id, nil
}

// ListRecentRounds lists the most recent rounds of a feed, newest first.
func (s *Store) ListRecentRounds(ctx context.Context, feedID string, limit int) ([]RoundRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRoundsSQL, feedID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent rounds: %w", queryErr)
	}
	defer rows.Close()

	return collectRounds(rows, limit)
}

// ListRoundsBetween lists a feed's rounds within a time window, oldest first.
func (s *Store) ListRoundsBetween(ctx context.Context, feedID string, from, to time.Time) ([]RoundRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRoundsBetweenSQL, feedID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list rounds between: %w", queryErr)
	}
	defer rows.Close()

	return collectRounds(rows, 0)
}

// CountRounds counts a feed's stored rounds.
func (s *Store) CountRounds(ctx context.Context, feedID string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRoundsSQL, feedID).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rounds: %w", scanErr)
	}
	return count, nil
}

// DeleteRoundsBefore deletes historical rounds across all feeds.
func (s *Store) DeleteRoundsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRoundsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete rounds before: %w", execErr)
	}
	return nil
}

func collectRounds(rows pgx.Rows, capacityHint int) ([]RoundRecord, error) {
	rounds := make([]RoundRecord, 0, capacityHint)
	for rows.Next() {
		round, scanErr := scanRound(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rounds = append(rounds, round)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rounds, nil
}

func scanRound(rows pgx.Rows) (RoundRecord, error) {
	var (
		record   RoundRecord
		valueStr string
		avgStr   string
		flags    int16
	)

	if err := rows.Scan(
		&record.ID,
		&record.FeedID,
		&record.ReportedAt,
		&valueStr,
		&avgStr,
		&record.ProviderCount,
		&record.CertainCount,
		&flags,
		&record.CreatedAt,
	); err != nil {
		return RoundRecord{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return RoundRecord{}, fmt.Errorf("parse round value: %w", err)
	}
	average, err := decimal.NewFromString(avgStr)
	if err != nil {
		return RoundRecord{}, fmt.Errorf("parse window average: %w", err)
	}

	record.Value = value
	record.WindowAverage = average
	record.Flags = uint8(flags)
	return record, nil
}
