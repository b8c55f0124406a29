package tracker_test

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/pkg/tracker"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type Invoice struct {
	ID        int64  `db:"id" audit:"pk"`
	Total     int    `db:"total"`
	Status    string `db:"status"`
	UpdatedAt int64  `db:"updated_at"`
	scenario  string
}

func (i *Invoice) AuditScenario() string { return i.scenario }

type Unregistered struct {
	ID int64 `db:"id" audit:"pk"`
}

type memoryRepo struct {
	mu      sync.Mutex
	written []*tracker.Entry
}

func (m *memoryRepo) Write(_ context.Context, e *tracker.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.written) + 1)
	m.written = append(m.written, e)
	return nil
}

func (m *memoryRepo) QueryByEntity(context.Context, string, string) iter.Seq2[*tracker.Entry, error] {
	panic("not implemented")
}

func (m *memoryRepo) QueryAll(context.Context, tracker.EntryFilter) iter.Seq2[*tracker.Entry, error] {
	panic("not implemented")
}

func (m *memoryRepo) Count(context.Context, tracker.EntryFilter) (int64, error) {
	panic("not implemented")
}

func (m *memoryRepo) GetByID(context.Context, int64) (*tracker.Entry, error) {
	panic("not implemented")
}

func newTracker(t *testing.T, opts ...tracker.PolicyOption) (*tracker.Tracker, *memoryRepo) {
	t.Helper()

	repo := &memoryRepo{}
	tr := tracker.New(repo, tracker.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	entityType, err := tr.Register(context.Background(), Invoice{}, opts...)
	require.NoError(t, err)
	require.Equal(t, "invoices", entityType)
	return tr, repo
}

// ---------------------------------------------------------------------------
// 1. Lifecycle
// ---------------------------------------------------------------------------

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr, repo := newTracker(t, tracker.WithExcluded("updated_at"))
	console := &tracker.Background{}

	inv := &Invoice{ID: 7, Total: 100, Status: "draft", UpdatedAt: 1}
	entry, err := tr.Inserted(ctx, console, inv)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.EntryKindInsert, entry.Kind)
	assert.Equal(t, "invoices", entry.EntityType)
	assert.Equal(t, `{"id":7}`, entry.EntityKey)

	before := *inv
	inv.Total = 150
	inv.UpdatedAt = 2
	entry, err = tr.Updated(ctx, console, &before, inv)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, entry.Changes, 1, "excluded updated_at is not recorded")
	assert.Equal(t, "total", entry.Changes[0].Field)
	assert.Equal(t, 100, entry.Changes[0].From)
	assert.Equal(t, 150, entry.Changes[0].To)

	entry, err = tr.Deleted(ctx, console, inv)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.EntryKindDelete, entry.Kind)

	assert.Len(t, repo.written, 3)
}

func TestTracker_UnchangedUpdateDiscarded(t *testing.T) {
	t.Parallel()

	tr, repo := newTracker(t)
	inv := &Invoice{ID: 1, Total: 5}
	before := *inv

	entry, err := tr.Updated(context.Background(), &tracker.Background{}, &before, inv)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, repo.written)
}

func TestTracker_ScenarioFilter(t *testing.T) {
	t.Parallel()

	tr, repo := newTracker(t, tracker.WithScenarios("default"))

	entry, err := tr.Inserted(context.Background(), &tracker.Background{}, &Invoice{ID: 1, scenario: "batch"})
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, repo.written)
}

// ---------------------------------------------------------------------------
// 2. Errors
// ---------------------------------------------------------------------------

func TestTracker_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unregistered model", func(t *testing.T) {
		t.Parallel()

		tr, _ := newTracker(t)
		_, err := tr.Inserted(context.Background(), &tracker.Background{}, &Unregistered{ID: 1})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "tracker.Tracker.Inserted")
	})

	t.Run("model without primary key", func(t *testing.T) {
		t.Parallel()

		type Note struct {
			Body string `db:"body"`
		}
		tr := tracker.New(&memoryRepo{})
		_, err := tr.Register(context.Background(), Note{})
		require.NoError(t, err)

		_, err = tr.Inserted(context.Background(), &tracker.Background{}, &Note{Body: "x"})
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("non struct model", func(t *testing.T) {
		t.Parallel()

		_, err := tracker.New(&memoryRepo{}).Register(context.Background(), 42)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tracker.Tracker.Register")
	})
}
