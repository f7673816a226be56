// Package store implements Persistence (C1): every entity's CRUD and state
// transitions against PostgreSQL via jackc/pgx/v5, with explicit
// transactions and no ORM — the same style as the teacher's checkin.DB.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
)

// Store wraps a pgx connection pool with one method group per entity
// (alerts.go, runbooks.go, executions.go, safety.go, audit.go).
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pooled connection to connString.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// ErrConflict/ErrNotFound are the sentinel-ish kinds state-mutating methods
// return; handlers translate them with apierror.KindOf.
var (
	ErrConflict = apierror.New(apierror.Conflict, "unique constraint violated")
	ErrNotFound = apierror.New(apierror.NotFound, "not found")
)

// errInvalidTransition builds the InvalidTransition error for a
// compare-and-set UPDATE that matched zero rows.
func errInvalidTransition(entity, id string, from, to any) error {
	return apierror.New(apierror.InvalidTransition, fmt.Sprintf("%s %s: cannot move from %s to %s (concurrent update or already transitioned)", entity, id, from, to))
}

// isUniqueViolation recognizes Postgres' unique_violation SQLSTATE (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func wrapQueryErr(err error, notFoundMsg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apierror.New(apierror.NotFound, notFoundMsg)
	}
	if isUniqueViolation(err) {
		return apierror.Wrap(apierror.Conflict, "unique constraint violated", err)
	}
	return apierror.Wrap(apierror.Internal, "store query", err)
}

// BeginTx starts an explicit transaction for callers that need to combine
// multiple statements atomically.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}
