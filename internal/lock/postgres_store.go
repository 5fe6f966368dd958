package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store against the distributed_locks table.
// All timestamps are store-assigned: the client never sends
// acquired_at/expires_at, only the lease duration.
type PostgresStore struct {
	sql sqlExecutor
}

// NewPostgresStore builds a Store backed by a live *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{sql: db}
}

func newPostgresStoreWithExecutor(exec sqlExecutor) *PostgresStore {
	return &PostgresStore{sql: exec}
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}

func (s *PostgresStore) TryInsert(ctx context.Context, resourceID, ownerToken string, leaseTTL time.Duration) (bool, *Record, error) {
	if resourceID == "" || ownerToken == "" {
		return false, nil, ErrResourceIDRequired
	}

	row := s.sql.QueryRowContext(ctx, `
		INSERT INTO distributed_locks (resource_id, owner_token, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + ($3 * INTERVAL '1 millisecond'))
		ON CONFLICT (resource_id) DO NOTHING
		RETURNING resource_id, owner_token, acquired_at, expires_at, holder_hint
	`, resourceID, ownerToken, leaseTTL.Milliseconds())

	var rec Record
	var holderHint sql.NullString
	inserted, err := scanSingleRow(row, func(r *sql.Row) error {
		return r.Scan(&rec.ResourceID, &rec.OwnerToken, &rec.AcquiredAt, &rec.ExpiresAt, &holderHint)
	})
	if err != nil {
		if isUniqueViolation(err) {
			inserted = false
		} else {
			return false, nil, ErrTransientStore.WithCause(err)
		}
	}
	if inserted {
		rec.HolderHint = holderHint.String
		return true, &rec, nil
	}

	existing, readErr := s.Read(ctx, resourceID)
	if readErr != nil {
		return false, nil, readErr
	}
	return false, existing, nil
}

func (s *PostgresStore) DeleteIfOwner(ctx context.Context, resourceID, ownerToken string) (bool, error) {
	if resourceID == "" {
		return false, nil
	}
	res, err := s.sql.ExecContext(ctx, `
		DELETE FROM distributed_locks WHERE resource_id = $1 AND owner_token = $2
	`, resourceID, ownerToken)
	if err != nil {
		return false, ErrTransientStore.WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ErrTransientStore.WithCause(err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Read(ctx context.Context, resourceID string) (*Record, error) {
	row := s.sql.QueryRowContext(ctx, `
		SELECT resource_id, owner_token, acquired_at, expires_at, holder_hint
		FROM distributed_locks WHERE resource_id = $1
	`, resourceID)

	var rec Record
	var holderHint sql.NullString
	found, err := scanSingleRow(row, func(r *sql.Row) error {
		return r.Scan(&rec.ResourceID, &rec.OwnerToken, &rec.AcquiredAt, &rec.ExpiresAt, &holderHint)
	})
	if err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	if !found {
		return nil, nil
	}
	rec.HolderHint = holderHint.String
	return &rec, nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.sql.ExecContext(ctx, `DELETE FROM distributed_locks WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, ErrTransientStore.WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrTransientStore.WithCause(err)
	}
	return int(n), nil
}
