// Package postgres implements the agent stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-yield-agent/internal/storage/migrations"
)

// Pool is the shared connection pool handed to every store.
type Pool struct {
	*pgxpool.Pool
}

// Open connects to dsn, checks the server is reachable and brings the schema
// up to date.
func Open(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	inner, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := inner.Ping(ctx); err != nil {
		inner.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	p := &Pool{Pool: inner}
	if err := migrations.Apply(ctx, migrations.Postgres, p.exec); err != nil {
		inner.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pool) exec(ctx context.Context, stmt string) error {
	_, err := p.Exec(ctx, stmt)
	return err
}

// unique_violation
const codeUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
