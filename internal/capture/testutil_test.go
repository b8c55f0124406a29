package capture_test

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock AuditRepository
// ---------------------------------------------------------------------------

type mockRepo struct {
	mu        sync.Mutex
	written   []*domain.Entry
	writeFunc func(ctx context.Context, e *domain.Entry) error
}

func (m *mockRepo) Write(ctx context.Context, e *domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, e); err != nil {
			return err
		}
	}
	e.ID = int64(len(m.written) + 1)
	m.written = append(m.written, e)
	return nil
}

func (m *mockRepo) QueryByEntity(context.Context, string, string) iter.Seq2[*domain.Entry, error] {
	panic("not used")
}

func (m *mockRepo) QueryAll(context.Context, domain.EntryFilter) iter.Seq2[*domain.Entry, error] {
	panic("not used")
}

func (m *mockRepo) Count(context.Context, domain.EntryFilter) (int64, error) { panic("not used") }

func (m *mockRepo) GetByID(context.Context, int64) (*domain.Entry, error) { panic("not used") }

func (m *mockRepo) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

// ---------------------------------------------------------------------------
// Static schema
// ---------------------------------------------------------------------------

type staticSchema struct {
	columns map[string][]string
	pk      map[string][]string
	err     error
}

func (s staticSchema) Columns(_ context.Context, entityType string) ([]string, error) {
	return s.columns[entityType], s.err
}

func (s staticSchema) PrimaryKey(_ context.Context, entityType string) ([]string, error) {
	return s.pk[entityType], s.err
}

var invoiceSchema = staticSchema{ //nolint:gochecknoglobals // test fixture
	columns: map[string][]string{
		"invoice": {"id", "total", "status", "note"},
		"line":    {"order_id", "line", "qty"},
	},
	pk: map[string][]string{
		"invoice": {"id"},
		"line":    {"order_id", "line"},
		"nokey":   {},
	},
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC) //nolint:gochecknoglobals // test fixture

func fixedClock() time.Time { return fixedNow }

func invoice(fields map[string]any) capture.Record {
	return capture.Record{Type: "invoice", Fields: fields}
}

func newPolicy(t *testing.T, opts ...capture.PolicyOption) *capture.Policy {
	t.Helper()

	p, err := capture.NewPolicy(context.Background(), invoiceSchema, "invoice", opts...)
	require.NoError(t, err)
	return p
}

func newEngine(repo *mockRepo, opts ...capture.Option) *capture.Engine {
	opts = append([]capture.Option{capture.WithClock(fixedClock)}, opts...)
	return capture.New(repo, invoiceSchema, opts...)
}

func ptr[T any](v T) *T { return &v }
