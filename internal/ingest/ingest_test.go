package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/ingest"
	"github.com/gosuda/audittrail/internal/schema"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type call struct {
	kind    domain.EntryKind
	ec      capture.ExecutionContext
	entity  capture.Entity
	changed map[string]any
}

type mockRecorder struct {
	mu     sync.Mutex
	calls  []call
	result *domain.Entry
	err    error
}

func (m *mockRecorder) record(c call) (*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.result, m.err
}

func (m *mockRecorder) OnInserted(_ context.Context, ec capture.ExecutionContext, entity capture.Entity, _ *capture.Policy) (*domain.Entry, error) {
	return m.record(call{kind: domain.EntryKindInsert, ec: ec, entity: entity})
}

func (m *mockRecorder) OnUpdated(_ context.Context, ec capture.ExecutionContext, entity capture.Entity, changed map[string]any, _ *capture.Policy) (*domain.Entry, error) {
	return m.record(call{kind: domain.EntryKindUpdate, ec: ec, entity: entity, changed: changed})
}

func (m *mockRecorder) OnDeleted(_ context.Context, ec capture.ExecutionContext, entity capture.Entity, _ *capture.Policy) (*domain.Entry, error) {
	return m.record(call{kind: domain.EntryKindDelete, ec: ec, entity: entity})
}

func (m *mockRecorder) recorded() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

type mockSubscriber struct {
	subscribeFunc func(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

func (m *mockSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	return m.subscribeFunc(ctx, channel)
}

func policies(t *testing.T) *capture.PolicySet {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register("invoice", []string{"id", "total", "status"}, []string{"id"}))

	p, err := capture.NewPolicy(context.Background(), reg, "invoice", capture.WithExcluded("id"))
	require.NoError(t, err)
	return capture.NewPolicySet(p)
}

// ---------------------------------------------------------------------------
// 1. Decode
// ---------------------------------------------------------------------------

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("full event", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		raw := `{"event_id":"` + id.String() + `","entity_type":"invoice","kind":"update",` +
			`"values":{"id":7,"total":150},"changed":{"total":100},"scenario":"import","remark":"fix"}`

		ev, err := ingest.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, id, ev.ID)
		assert.Equal(t, domain.EntryKindUpdate, ev.Kind)
		assert.Equal(t, json.Number("7"), ev.Values["id"])
		assert.Equal(t, json.Number("100"), ev.Changed["total"])

		rec := ev.Record()
		assert.Equal(t, "invoice", rec.EntityType())
		assert.Equal(t, "import", rec.Scenario())
	})

	t.Run("missing id assigned", func(t *testing.T) {
		t.Parallel()

		ev, err := ingest.Decode([]byte(`{"entity_type":"invoice","kind":"insert","values":{}}`))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, ev.ID)
		assert.Equal(t, capture.DefaultScenario, ev.Record().Scenario())
	})

	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{name: "not json", raw: `{`},
		{name: "blank type", raw: `{"kind":"insert","values":{}}`, wantMsg: "Entity Type cannot be blank."},
		{name: "bad kind", raw: `{"entity_type":"invoice","kind":"upsert","values":{}}`, wantMsg: `Kind "upsert" is invalid.`},
		{name: "no values", raw: `{"entity_type":"invoice","kind":"delete"}`, wantMsg: "Values cannot be blank."},
		{
			name:    "changed on insert",
			raw:     `{"entity_type":"invoice","kind":"insert","values":{},"changed":{"total":1}}`,
			wantMsg: "Changed is only allowed for updates.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ingest.Decode([]byte(tt.raw))
			require.Error(t, err)
			if tt.wantMsg != "" {
				require.ErrorIs(t, err, domain.ErrInvalidEntry)
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	t.Run("path type overrides body", func(t *testing.T) {
		t.Parallel()

		ev, err := ingest.DecodeBody("invoice", []byte(`{"entity_type":"order","kind":"insert","values":{"id":9007199254740993}}`))
		require.NoError(t, err)
		assert.Equal(t, "invoice", ev.EntityType)
		assert.Equal(t, json.Number("9007199254740993"), ev.Values["id"])
		assert.NotEqual(t, uuid.Nil, ev.ID)
	})

	t.Run("validation still applies", func(t *testing.T) {
		t.Parallel()

		_, err := ingest.DecodeBody("invoice", []byte(`{"kind":"delete"}`))
		require.ErrorIs(t, err, domain.ErrInvalidEntry)
		assert.Contains(t, err.Error(), "ingest.DecodeBody")
	})
}

// ---------------------------------------------------------------------------
// 2. Dispatcher
// ---------------------------------------------------------------------------

func TestDispatcher_RoutesByKind(t *testing.T) {
	t.Parallel()

	for _, kind := range domain.EntryKinds {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			rec := &mockRecorder{result: &domain.Entry{ID: 1}}
			d := ingest.NewDispatcher(rec, policies(t))

			ev := &ingest.Event{EntityType: "invoice", Kind: kind, Values: map[string]any{"id": 7}}
			if kind == domain.EntryKindUpdate {
				ev.Changed = map[string]any{"total": 100}
			}

			entry, err := d.Dispatch(context.Background(), &capture.Background{}, ev)
			require.NoError(t, err)
			require.NotNil(t, entry)

			calls := rec.recorded()
			require.Len(t, calls, 1)
			assert.Equal(t, kind, calls[0].kind)
			assert.Equal(t, 7, calls[0].entity.Value("id"))
			if kind == domain.EntryKindUpdate {
				assert.Equal(t, map[string]any{"total": 100}, calls[0].changed)
			}
		})
	}
}

func TestDispatcher_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown entity type", func(t *testing.T) {
		t.Parallel()

		rec := &mockRecorder{}
		d := ingest.NewDispatcher(rec, policies(t))

		_, err := d.Dispatch(context.Background(), &capture.Background{},
			&ingest.Event{EntityType: "order", Kind: domain.EntryKindInsert, Values: map[string]any{}})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, rec.recorded())
	})

	t.Run("invalid event", func(t *testing.T) {
		t.Parallel()

		d := ingest.NewDispatcher(&mockRecorder{}, policies(t))

		_, err := d.Dispatch(context.Background(), &capture.Background{}, &ingest.Event{EntityType: "invoice"})
		require.ErrorIs(t, err, domain.ErrInvalidEntry)
	})

	t.Run("recorder error propagated", func(t *testing.T) {
		t.Parallel()

		rec := &mockRecorder{err: &domain.PersistenceError{Err: errors.New("disk full")}}
		d := ingest.NewDispatcher(rec, policies(t))

		_, err := d.Dispatch(context.Background(), &capture.Background{},
			&ingest.Event{EntityType: "invoice", Kind: domain.EntryKindDelete, Values: map[string]any{"id": 1}})
		require.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestDispatcher_Remark(t *testing.T) {
	t.Parallel()

	t.Run("event remark overrides context", func(t *testing.T) {
		t.Parallel()

		rec := &mockRecorder{}
		d := ingest.NewDispatcher(rec, policies(t))
		rc := &capture.RequestContext{Query: map[string][]string{"__change_remark": {"from query"}}}

		_, err := d.Dispatch(context.Background(), rc,
			&ingest.Event{EntityType: "invoice", Kind: domain.EntryKindInsert, Values: map[string]any{}, Remark: "from event"})
		require.NoError(t, err)

		ec := rec.recorded()[0].ec
		got, ok := ec.RemarkParameter("__change_remark")
		assert.True(t, ok)
		assert.Equal(t, "from event", got)
		assert.True(t, ec.Interactive(), "wrapped context keeps its nature")
	})

	t.Run("no event remark keeps context", func(t *testing.T) {
		t.Parallel()

		rec := &mockRecorder{}
		d := ingest.NewDispatcher(rec, policies(t))
		rc := &capture.RequestContext{}

		_, err := d.Dispatch(context.Background(), rc,
			&ingest.Event{EntityType: "invoice", Kind: domain.EntryKindInsert, Values: map[string]any{}})
		require.NoError(t, err)
		assert.Same(t, rc, rec.recorded()[0].ec)
	})
}

// ---------------------------------------------------------------------------
// 3. Consumer
// ---------------------------------------------------------------------------

func TestConsumer_Run(t *testing.T) {
	t.Parallel()

	t.Run("dispatches in background context and skips bad messages", func(t *testing.T) {
		t.Parallel()

		messages := make(chan []byte, 3)
		messages <- []byte(`not json`)
		messages <- []byte(`{"entity_type":"order","kind":"insert","values":{}}`)
		messages <- []byte(`{"entity_type":"invoice","kind":"insert","values":{"id":1}}`)
		close(messages)

		var gotChannel string
		cleaned := false
		sub := &mockSubscriber{subscribeFunc: func(_ context.Context, channel string) (<-chan []byte, func(), error) {
			gotChannel = channel
			return messages, func() { cleaned = true }, nil
		}}

		rec := &mockRecorder{}
		c := ingest.NewConsumer(sub, ingest.NewDispatcher(rec, policies(t)), "audittrail:events", language.German, zerolog.Nop())

		require.NoError(t, c.Run(context.Background()))
		assert.Equal(t, "audittrail:events", gotChannel)
		assert.True(t, cleaned)

		calls := rec.recorded()
		require.Len(t, calls, 1)
		assert.False(t, calls[0].ec.Interactive())
		assert.Equal(t, language.German, calls[0].ec.Locale().Tag())
	})

	t.Run("stops on cancel", func(t *testing.T) {
		t.Parallel()

		sub := &mockSubscriber{subscribeFunc: func(context.Context, string) (<-chan []byte, func(), error) {
			return make(chan []byte), func() {}, nil
		}}
		c := ingest.NewConsumer(sub, ingest.NewDispatcher(&mockRecorder{}, policies(t)), "ch", language.English, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	})

	t.Run("subscribe error", func(t *testing.T) {
		t.Parallel()

		sub := &mockSubscriber{subscribeFunc: func(context.Context, string) (<-chan []byte, func(), error) {
			return nil, nil, errors.New("redis down")
		}}
		c := ingest.NewConsumer(sub, ingest.NewDispatcher(&mockRecorder{}, policies(t)), "ch", language.English, zerolog.Nop())

		err := c.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis down")
	})
}
