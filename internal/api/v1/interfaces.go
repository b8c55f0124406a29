package v1

import (
	"context"
	"iter"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/ingest"
)

// TrailReader abstracts the query side of the audit repository for handler
// testing. *postgres.AuditRepo satisfies this interface.
type TrailReader interface {
	QueryByEntity(ctx context.Context, entityType, entityKey string) iter.Seq2[*domain.Entry, error]
	QueryAll(ctx context.Context, filter domain.EntryFilter) iter.Seq2[*domain.Entry, error]
	Count(ctx context.Context, filter domain.EntryFilter) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Entry, error)
}

// EventRecorder records lifecycle events. *ingest.Dispatcher satisfies this
// interface.
type EventRecorder interface {
	Dispatch(ctx context.Context, ec capture.ExecutionContext, ev *ingest.Event) (*domain.Entry, error)
}

// PolicyLookup resolves entity type policies. *capture.PolicySet satisfies
// this interface.
type PolicyLookup interface {
	Get(entityType string) (*capture.Policy, error)
}
