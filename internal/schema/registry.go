// Package schema provides column metadata for audited entity types.
package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

type table struct {
	columns []string
	pk      []string
}

// Registry is an in-memory SchemaProvider. Types it does not know are
// delegated to the fallback provider, when one is set.
type Registry struct {
	mu       sync.RWMutex
	tables   map[string]table
	fallback capture.SchemaProvider
}

var _ capture.SchemaProvider = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]table)}
}

// WithFallback sets the provider consulted for unregistered types.
func (r *Registry) WithFallback(p capture.SchemaProvider) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
	return r
}

// Register declares the ordered columns and primary key of entityType.
// Every primary key column must be one of the columns.
func (r *Registry) Register(entityType string, columns, pk []string) error {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return fmt.Errorf("schema.Registry.Register: %w", domain.NewConfigurationError("empty entity type"))
	}
	if len(columns) == 0 {
		return fmt.Errorf("schema.Registry.Register: %w", domain.NewConfigurationError(fmt.Sprintf("no columns for %q", entityType)))
	}
	for _, c := range pk {
		if !slices.Contains(columns, c) {
			return fmt.Errorf("schema.Registry.Register: %w", domain.NewConfigurationError(
				fmt.Sprintf("primary key column %q of %q is not a column", c, entityType)))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[entityType] = table{columns: slices.Clone(columns), pk: slices.Clone(pk)}
	return nil
}

func (r *Registry) Columns(ctx context.Context, entityType string) ([]string, error) {
	t, fallback, ok := r.lookup(entityType)
	if ok {
		return slices.Clone(t.columns), nil
	}
	if fallback != nil {
		return fallback.Columns(ctx, entityType)
	}
	return nil, fmt.Errorf("schema %q: %w", entityType, domain.ErrNotFound)
}

func (r *Registry) PrimaryKey(ctx context.Context, entityType string) ([]string, error) {
	t, fallback, ok := r.lookup(entityType)
	if ok {
		return slices.Clone(t.pk), nil
	}
	if fallback != nil {
		return fallback.PrimaryKey(ctx, entityType)
	}
	return nil, fmt.Errorf("schema %q: %w", entityType, domain.ErrNotFound)
}

// Has reports whether entityType was registered directly.
func (r *Registry) Has(entityType string) bool {
	_, _, ok := r.lookup(entityType)
	return ok
}

func (r *Registry) lookup(entityType string) (table, capture.SchemaProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[entityType]
	return t, r.fallback, ok
}
