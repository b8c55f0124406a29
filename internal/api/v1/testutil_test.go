package v1_test

import (
	"context"
	"iter"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/ingest"
	"github.com/gosuda/audittrail/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject actor and execution context for DoCtx
// ---------------------------------------------------------------------------

func actorCtx(actorID int64, role string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyActorID, actorID)
	ctx = context.WithValue(ctx, middleware.ContextKeyUserRole, role)
	return ctx
}

func executionCtx(rc *capture.RequestContext) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyExecution, rc)
}

// ---------------------------------------------------------------------------
// Mock TrailReader
// ---------------------------------------------------------------------------

type mockTrailReader struct {
	queryByEntityFunc func(ctx context.Context, entityType, entityKey string) ([]*domain.Entry, error)
	queryAllFunc      func(ctx context.Context, filter domain.EntryFilter) ([]*domain.Entry, error)
	countFunc         func(ctx context.Context, filter domain.EntryFilter) (int64, error)
	getByIDFunc       func(ctx context.Context, id int64) (*domain.Entry, error)
}

func seq(entries []*domain.Entry, err error) iter.Seq2[*domain.Entry, error] {
	return func(yield func(*domain.Entry, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *mockTrailReader) QueryByEntity(ctx context.Context, entityType, entityKey string) iter.Seq2[*domain.Entry, error] {
	return seq(m.queryByEntityFunc(ctx, entityType, entityKey))
}

func (m *mockTrailReader) QueryAll(ctx context.Context, filter domain.EntryFilter) iter.Seq2[*domain.Entry, error] {
	return seq(m.queryAllFunc(ctx, filter))
}

func (m *mockTrailReader) Count(ctx context.Context, filter domain.EntryFilter) (int64, error) {
	return m.countFunc(ctx, filter)
}

func (m *mockTrailReader) GetByID(ctx context.Context, id int64) (*domain.Entry, error) {
	return m.getByIDFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock EventRecorder
// ---------------------------------------------------------------------------

type mockRecorder struct {
	dispatchFunc func(ctx context.Context, ec capture.ExecutionContext, ev *ingest.Event) (*domain.Entry, error)
}

func (m *mockRecorder) Dispatch(ctx context.Context, ec capture.ExecutionContext, ev *ingest.Event) (*domain.Entry, error) {
	return m.dispatchFunc(ctx, ec, ev)
}

// ---------------------------------------------------------------------------
// Mock PolicyLookup
// ---------------------------------------------------------------------------

type mockPolicies struct {
	getFunc func(entityType string) (*capture.Policy, error)
}

func (m *mockPolicies) Get(entityType string) (*capture.Policy, error) {
	return m.getFunc(entityType)
}

// ---------------------------------------------------------------------------
// Static schema
// ---------------------------------------------------------------------------

type staticSchema struct {
	columns []string
	pk      []string
}

func (s staticSchema) Columns(context.Context, string) ([]string, error)    { return s.columns, nil }
func (s staticSchema) PrimaryKey(context.Context, string) ([]string, error) { return s.pk, nil }

var invoiceSchema = staticSchema{columns: []string{"id", "total", "status", "secret"}, pk: []string{"id"}} //nolint:gochecknoglobals // test fixture

// ---------------------------------------------------------------------------
// Write-only AuditRepository for engine-backed tests
// ---------------------------------------------------------------------------

type writeOnlyRepo struct {
	writeFunc func(ctx context.Context, e *domain.Entry) error
}

func (m *writeOnlyRepo) Write(ctx context.Context, e *domain.Entry) error { return m.writeFunc(ctx, e) }

func (m *writeOnlyRepo) QueryByEntity(context.Context, string, string) iter.Seq2[*domain.Entry, error] {
	panic("not implemented")
}

func (m *writeOnlyRepo) QueryAll(context.Context, domain.EntryFilter) iter.Seq2[*domain.Entry, error] {
	panic("not implemented")
}

func (m *writeOnlyRepo) Count(context.Context, domain.EntryFilter) (int64, error) {
	panic("not implemented")
}

func (m *writeOnlyRepo) GetByID(context.Context, int64) (*domain.Entry, error) {
	panic("not implemented")
}
