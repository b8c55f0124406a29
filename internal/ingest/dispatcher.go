package ingest

import (
	"context"
	"fmt"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
)

// Recorder is the capture surface events are dispatched to.
type Recorder interface {
	OnInserted(ctx context.Context, ec capture.ExecutionContext, entity capture.Entity, policy *capture.Policy) (*domain.Entry, error)
	OnUpdated(ctx context.Context, ec capture.ExecutionContext, entity capture.Entity, changed map[string]any, policy *capture.Policy) (*domain.Entry, error)
	OnDeleted(ctx context.Context, ec capture.ExecutionContext, entity capture.Entity, policy *capture.Policy) (*domain.Entry, error)
}

// PolicyLookup resolves the policy of an entity type.
type PolicyLookup interface {
	Get(entityType string) (*capture.Policy, error)
}

type Dispatcher struct {
	recorder Recorder
	policies PolicyLookup
}

func NewDispatcher(recorder Recorder, policies PolicyLookup) *Dispatcher {
	return &Dispatcher{recorder: recorder, policies: policies}
}

// Dispatch records ev under ec. A nil entry with a nil error means the event
// was filtered, discarded or vetoed.
func (d *Dispatcher) Dispatch(ctx context.Context, ec capture.ExecutionContext, ev *Event) (*domain.Entry, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("ingest.Dispatcher.Dispatch: %w", err)
	}

	policy, err := d.policies.Get(ev.EntityType)
	if err != nil {
		return nil, fmt.Errorf("ingest.Dispatcher.Dispatch: %w", err)
	}

	if ev.Remark != "" {
		ec = withRemark(ec, ev.Remark)
	}

	var entry *domain.Entry
	switch ev.Kind {
	case domain.EntryKindInsert:
		entry, err = d.recorder.OnInserted(ctx, ec, ev.Record(), policy)
	case domain.EntryKindUpdate:
		entry, err = d.recorder.OnUpdated(ctx, ec, ev.Record(), ev.Changed, policy)
	case domain.EntryKindDelete:
		entry, err = d.recorder.OnDeleted(ctx, ec, ev.Record(), policy)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest.Dispatcher.Dispatch: %w", err)
	}
	return entry, nil
}

// remarkContext supplies an event-borne remark for any parameter name,
// taking precedence over whatever the wrapped context carries.
type remarkContext struct {
	capture.ExecutionContext
	remark string
}

func withRemark(ec capture.ExecutionContext, remark string) capture.ExecutionContext {
	return &remarkContext{ExecutionContext: ec, remark: remark}
}

func (r *remarkContext) RemarkParameter(string) (string, bool) { return r.remark, true }
