package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// DefaultTable is the audit trail table used when none is configured.
const DefaultTable = "audit_trail_entry"

type Store struct {
	pool   *pgxpool.Pool
	table  tableName
	audit  *AuditRepo
	schema *SchemaRepo
}

// New connects to PostgreSQL. A maxConns of zero keeps the pool default.
func New(ctx context.Context, dsn string, maxConns int32, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	tn, err := parseTableName(table)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:   pool,
		table:  tn,
		audit:  newAuditRepo(pool, tn),
		schema: NewSchemaRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

// Migrate creates the audit trail table and its index if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool, s.table)
}

func (s *Store) Audit() domain.AuditRepository { return s.audit }
func (s *Store) Schema() capture.SchemaProvider { return s.schema }

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
