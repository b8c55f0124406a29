// Package tracker records audit trail entries for Go struct models saved by
// the embedding program itself.
//
// Models declare their columns with `db` tags and their primary key with
// `audit:"pk"`; the entity type is TableName() or the pluralized snake_case
// struct name.
//
//	tr := tracker.New(repo, tracker.WithClock(clock))
//	if _, err := tr.Register(ctx, Invoice{}, tracker.WithExcluded("updated_at")); err != nil { ... }
//	before := *inv
//	inv.Total = 150
//	entry, err := tr.Updated(ctx, &tracker.Background{}, &before, inv)
package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/schema"
	"github.com/gosuda/audittrail/internal/store/postgres"
)

type (
	Entry            = domain.Entry
	EntryFilter      = domain.EntryFilter
	Repository       = domain.AuditRepository
	ExecutionContext = capture.ExecutionContext
	Background       = capture.Background
	RequestContext   = capture.RequestContext
	Option           = capture.Option
	PolicyOption     = capture.PolicyOption
	Store            = postgres.Store
)

//nolint:gochecknoglobals // re-exported option constructors
var (
	WithClock          = capture.WithClock
	WithRemarkParam    = capture.WithRemarkParam
	WithRemarkFunc     = capture.WithRemarkFunc
	WithActorResolver  = capture.WithActorResolver
	WithHook           = capture.WithHook
	WithBenchmark      = capture.WithBenchmark
	WithLogger         = capture.WithLogger
	WithListener       = capture.WithListener
	WithExcluded       = capture.WithExcluded
	WithScenarios      = capture.WithScenarios
	WithKinds          = capture.WithKinds
	WithValuesOnInsert = capture.WithValuesOnInsert
	WithValuesOnDelete = capture.WithValuesOnDelete
	WithEmptyUpdates   = capture.WithEmptyUpdates
	WithHidden         = capture.WithHidden
)

// Scenarioed is implemented by models that are saved under a named scenario.
type Scenarioed interface {
	AuditScenario() string
}

// Tracker audits registered struct models.
type Tracker struct {
	engine *capture.Engine
	schema *schema.Registry

	mu       sync.RWMutex
	policies map[string]*capture.Policy
}

// New returns a Tracker writing to repo.
func New(repo Repository, opts ...Option) *Tracker {
	reg := schema.NewRegistry()
	return &Tracker{
		engine:   capture.New(repo, reg, opts...),
		schema:   reg,
		policies: make(map[string]*capture.Policy),
	}
}

// OpenPostgres connects to PostgreSQL and creates the audit table when it
// does not exist. The caller closes the returned store.
func OpenPostgres(ctx context.Context, dsn, table string) (*Store, error) {
	store, err := postgres.New(ctx, dsn, 0, table)
	if err != nil {
		return nil, fmt.Errorf("tracker.OpenPostgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("tracker.OpenPostgres: %w", err)
	}
	return store, nil
}

// Register records the columns and primary key of model and builds its
// policy. It returns the entity type the model is tracked under.
func (t *Tracker) Register(ctx context.Context, model any, opts ...PolicyOption) (string, error) {
	entityType, err := t.schema.RegisterStruct(model)
	if err != nil {
		return "", fmt.Errorf("tracker.Tracker.Register: %w", err)
	}
	policy, err := capture.NewPolicy(ctx, t.schema, entityType, opts...)
	if err != nil {
		return "", fmt.Errorf("tracker.Tracker.Register: %w", err)
	}

	t.mu.Lock()
	t.policies[entityType] = policy
	t.mu.Unlock()
	return entityType, nil
}

// Inserted records the creation of model.
func (t *Tracker) Inserted(ctx context.Context, ec ExecutionContext, model any) (*Entry, error) {
	entity, policy, err := t.resolve(model)
	if err != nil {
		return nil, fmt.Errorf("tracker.Tracker.Inserted: %w", err)
	}
	return t.engine.OnInserted(ctx, ec, entity, policy)
}

// Updated records the difference between before and after, two states of
// the same model.
func (t *Tracker) Updated(ctx context.Context, ec ExecutionContext, before, after any) (*Entry, error) {
	entity, policy, err := t.resolve(after)
	if err != nil {
		return nil, fmt.Errorf("tracker.Tracker.Updated: %w", err)
	}
	changed := schema.Changed(schema.Snapshot(before), schema.Snapshot(after))
	return t.engine.OnUpdated(ctx, ec, entity, changed, policy)
}

// Deleted records the removal of model.
func (t *Tracker) Deleted(ctx context.Context, ec ExecutionContext, model any) (*Entry, error) {
	entity, policy, err := t.resolve(model)
	if err != nil {
		return nil, fmt.Errorf("tracker.Tracker.Deleted: %w", err)
	}
	return t.engine.OnDeleted(ctx, ec, entity, policy)
}

func (t *Tracker) resolve(model any) (*schema.Struct, *capture.Policy, error) {
	var scenario string
	if s, ok := model.(Scenarioed); ok {
		scenario = s.AuditScenario()
	}
	entity, err := schema.Wrap(model, scenario)
	if err != nil {
		return nil, nil, err
	}

	t.mu.RLock()
	policy, ok := t.policies[entity.EntityType()]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("entity type %q: %w", entity.EntityType(), domain.ErrNotFound)
	}
	return entity, policy, nil
}
