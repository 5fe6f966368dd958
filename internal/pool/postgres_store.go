package pool

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore implements Store against the pool_deployments table.
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

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var allocatedTo, buildFingerprint sql.NullString
	var deadline sql.NullTime

	err := scan(
		&rec.DeploymentID, &rec.PoolName, &rec.DeploymentName, &rec.State,
		&allocatedTo, &deadline, &rec.CreatedAt, &rec.LastUsedAt,
		&buildFingerprint, &rec.FailureCount,
	)
	if err != nil {
		return nil, err
	}
	rec.AllocatedTo = allocatedTo.String
	rec.BuildFingerprint = buildFingerprint.String
	if deadline.Valid {
		rec.AllocationDeadline = &deadline.Time
	}
	return &rec, nil
}

const recordColumns = `deployment_id, pool_name, deployment_name, state, allocated_to,
	allocation_deadline, created_at, last_used_at, build_fingerprint, failure_count`

func (s *PostgresStore) ListByState(ctx context.Context, poolName string, state State) ([]*Record, error) {
	if poolName == "" {
		return nil, ErrPoolNameRequired
	}
	rows, err := s.sql.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM pool_deployments WHERE pool_name = $1 AND state = $2
	`, poolName, string(state))
	if err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, ErrTransientStore.WithCause(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	return out, nil
}

func (s *PostgresStore) ClaimOneHibernated(ctx context.Context, poolName, allocatorToken string, deadline time.Time) (*Record, error) {
	if poolName == "" {
		return nil, ErrPoolNameRequired
	}

	row := s.sql.QueryRowContext(ctx, `
		UPDATE pool_deployments
		SET state = 'ALLOCATED', allocated_to = $2, allocation_deadline = $3, last_used_at = NOW(), failure_count = 0
		WHERE deployment_id = (
			SELECT deployment_id FROM pool_deployments
			WHERE pool_name = $1 AND state = 'HIBERNATED'
			ORDER BY last_used_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+recordColumns, poolName, allocatorToken, deadline)

	found, rec, err := func() (bool, *Record, error) {
		var result *Record
		found, err := scanSingleRow(row, func(r *sql.Row) error {
			rec, err := scanRecord(r.Scan)
			if err != nil {
				return err
			}
			result = rec
			return nil
		})
		return found, result, err
	}()
	if err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

func (s *PostgresStore) Release(ctx context.Context, deploymentID, allocatorToken string) (bool, error) {
	res, err := s.sql.ExecContext(ctx, `
		UPDATE pool_deployments
		SET state = 'HIBERNATED', allocated_to = NULL, allocation_deadline = NULL, last_used_at = NOW(), failure_count = 0
		WHERE deployment_id = $1 AND allocated_to = $2 AND state = 'ALLOCATED'
	`, deploymentID, allocatorToken)
	if err != nil {
		return false, ErrTransientStore.WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ErrTransientStore.WithCause(err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	var deadline any
	if rec.AllocationDeadline != nil {
		deadline = *rec.AllocationDeadline
	}
	_, err := s.sql.ExecContext(ctx, `
		INSERT INTO pool_deployments (deployment_id, pool_name, deployment_name, state,
			allocated_to, allocation_deadline, created_at, last_used_at, build_fingerprint, failure_count)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT (deployment_id) DO UPDATE SET
			pool_name = EXCLUDED.pool_name,
			deployment_name = EXCLUDED.deployment_name,
			state = EXCLUDED.state,
			allocated_to = EXCLUDED.allocated_to,
			allocation_deadline = EXCLUDED.allocation_deadline,
			last_used_at = EXCLUDED.last_used_at,
			build_fingerprint = EXCLUDED.build_fingerprint,
			failure_count = EXCLUDED.failure_count
	`, rec.DeploymentID, rec.PoolName, rec.DeploymentName, string(rec.State),
		rec.AllocatedTo, deadline, rec.CreatedAt, rec.LastUsedAt, rec.BuildFingerprint, rec.FailureCount)
	if err != nil {
		return ErrTransientStore.WithCause(err)
	}
	return nil
}

func (s *PostgresStore) SetState(ctx context.Context, deploymentID string, state State, incrementFailureCount bool) (int, error) {
	query := `UPDATE pool_deployments SET state = $2, last_used_at = NOW()`
	if incrementFailureCount {
		query += `, failure_count = failure_count + 1`
	}
	query += ` WHERE deployment_id = $1 RETURNING failure_count`

	row := s.sql.QueryRowContext(ctx, query, deploymentID, string(state))
	var failureCount int
	if err := row.Scan(&failureCount); err != nil {
		return 0, ErrTransientStore.WithCause(err)
	}
	return failureCount, nil
}

func (s *PostgresStore) Retire(ctx context.Context, deploymentID string) error {
	_, err := s.SetState(ctx, deploymentID, StateRetired, false)
	return err
}

func (s *PostgresStore) ReclaimOverdue(ctx context.Context, poolName string, now time.Time) ([]*Record, error) {
	if poolName == "" {
		return nil, ErrPoolNameRequired
	}

	rows, err := s.sql.QueryContext(ctx, `
		UPDATE pool_deployments
		SET state = 'HIBERNATED', allocated_to = NULL, allocation_deadline = NULL
		WHERE pool_name = $1 AND state = 'ALLOCATED' AND allocation_deadline <= $2
		RETURNING `+recordColumns, poolName, now)
	if err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, ErrTransientStore.WithCause(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrTransientStore.WithCause(err)
	}
	return out, nil
}
