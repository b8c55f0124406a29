package postgres

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// SchemaRepo reads column metadata from the PostgreSQL catalog. Entity types
// are table identifiers, optionally schema-qualified. Results are cached for
// the lifetime of the repo.
type SchemaRepo struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	columns map[string][]string
	pk      map[string][]string
}

var _ capture.SchemaProvider = (*SchemaRepo)(nil)

func NewSchemaRepo(pool *pgxpool.Pool) *SchemaRepo {
	return &SchemaRepo{
		pool:    pool,
		columns: make(map[string][]string),
		pk:      make(map[string][]string),
	}
}

func (r *SchemaRepo) Columns(ctx context.Context, entityType string) ([]string, error) {
	if cols, ok := r.cached(r.columns, entityType); ok {
		return cols, nil
	}

	tn, err := parseTableName(entityType)
	if err != nil {
		return nil, fmt.Errorf("schemaRepo.Columns: %w", err)
	}

	cols, err := r.queryNames(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`,
		tn.schema, tn.name,
	)
	if err != nil {
		return nil, fmt.Errorf("schemaRepo.Columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("schemaRepo.Columns: table %s: %w", tn, domain.ErrNotFound)
	}

	r.store(r.columns, entityType, cols)
	return slices.Clone(cols), nil
}

func (r *SchemaRepo) PrimaryKey(ctx context.Context, entityType string) ([]string, error) {
	if pk, ok := r.cached(r.pk, entityType); ok {
		return pk, nil
	}

	tn, err := parseTableName(entityType)
	if err != nil {
		return nil, fmt.Errorf("schemaRepo.PrimaryKey: %w", err)
	}

	pk, err := r.queryNames(ctx,
		`SELECT a.attname
		 FROM pg_index i
		 JOIN pg_class c ON c.oid = i.indrelid
		 JOIN pg_namespace n ON n.oid = c.relnamespace
		 JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		 WHERE n.nspname = $1 AND c.relname = $2 AND i.indisprimary
		 ORDER BY array_position(i.indkey::int2[], a.attnum)`,
		tn.schema, tn.name,
	)
	if err != nil {
		return nil, fmt.Errorf("schemaRepo.PrimaryKey: %w", err)
	}

	// An empty key is cached too; the capture engine reports it as a
	// configuration error.
	r.store(r.pk, entityType, pk)
	return slices.Clone(pk), nil
}

func (r *SchemaRepo) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return names, nil
}

func (r *SchemaRepo) cached(m map[string][]string, key string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

func (r *SchemaRepo) store(m map[string][]string, key string, v []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[key] = v
}
