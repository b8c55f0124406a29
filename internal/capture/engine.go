// Package capture turns entity lifecycle events into audit trail entries.
//
// Capture is synchronous: each OnInserted, OnUpdated or OnDeleted call either
// persists exactly one entry, decides not to log, or returns the error that
// prevented the entry from being written. Callers are expected to fail the
// business operation being audited when an error is returned.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gosuda/audittrail/internal/domain"
)

// DefaultRemarkParam is the request parameter carrying a change remark.
const DefaultRemarkParam = "__change_remark"

// Hook inspects or rewrites an assembled entry before it is written.
// Returning nil cancels the write without error.
type Hook func(ctx context.Context, e *domain.Entry) *domain.Entry

// RemarkFunc supplies the change remark in place of a request parameter.
type RemarkFunc func(ctx context.Context, ec ExecutionContext) *string

// Listener is told about every entry after it was written. Listener errors
// are logged and never reach the caller.
type Listener interface {
	EntryRecorded(ctx context.Context, e *domain.Entry) error
}

type ListenerFunc func(ctx context.Context, e *domain.Entry) error

func (f ListenerFunc) EntryRecorded(ctx context.Context, e *domain.Entry) error { return f(ctx, e) }

// Engine is the change capture engine. It is safe for concurrent use.
type Engine struct {
	repo      domain.AuditRepository
	schema    SchemaProvider
	clock     func() time.Time
	remark    string
	remarkFn  RemarkFunc
	actors    *ActorResolver
	hook      Hook
	benchmark bool
	logger    zerolog.Logger
	metrics   *Metrics
	listeners []Listener
	tracer    trace.Tracer
}

type Option func(*Engine)

// WithClock overrides the time source of happenedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithRemarkParam names the request parameter read for the change remark.
func WithRemarkParam(name string) Option {
	return func(e *Engine) { e.remark = name }
}

// WithRemarkFunc replaces the request parameter lookup.
func WithRemarkFunc(fn RemarkFunc) Option {
	return func(e *Engine) { e.remarkFn = fn }
}

func WithActorResolver(r *ActorResolver) Option {
	return func(e *Engine) { e.actors = r }
}

// WithHook installs the interception hook, see Hook.
func WithHook(h Hook) Option {
	return func(e *Engine) { e.hook = h }
}

// WithBenchmark toggles the collect/convert timings stored with each entry.
func WithBenchmark(enabled bool) Option {
	return func(e *Engine) { e.benchmark = enabled }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithListener adds a post-write listener. Listeners run in registration order.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an Engine writing to repo. Benchmarking is on by default.
func New(repo domain.AuditRepository, schema SchemaProvider, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		schema:    schema,
		clock:     time.Now,
		remark:    DefaultRemarkParam,
		actors:    NewActorResolver(),
		benchmark: true,
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer("github.com/gosuda/audittrail/internal/capture"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnInserted records the creation of entity. It returns the persisted entry,
// or nil when policy decided not to log it.
func (e *Engine) OnInserted(ctx context.Context, ec ExecutionContext, entity Entity, policy *Policy) (*domain.Entry, error) {
	return e.capture(ctx, ec, domain.EntryKindInsert, entity, nil, policy)
}

// OnUpdated records an update of entity. changed maps every modified field to
// its previous value, as reported by the persistence layer.
func (e *Engine) OnUpdated(ctx context.Context, ec ExecutionContext, entity Entity, changed map[string]any, policy *Policy) (*domain.Entry, error) {
	return e.capture(ctx, ec, domain.EntryKindUpdate, entity, changed, policy)
}

// OnDeleted records the removal of entity, using its last known values.
func (e *Engine) OnDeleted(ctx context.Context, ec ExecutionContext, entity Entity, policy *Policy) (*domain.Entry, error) {
	return e.capture(ctx, ec, domain.EntryKindDelete, entity, nil, policy)
}

func (e *Engine) capture(ctx context.Context, ec ExecutionContext, kind domain.EntryKind, entity Entity, changed map[string]any, policy *Policy) (*domain.Entry, error) {
	if policy == nil {
		return nil, domain.NewConfigurationError("no audit policy for " + entity.EntityType())
	}
	log := e.logger.With().Str("entity_type", entity.EntityType()).Str("kind", string(kind)).Logger()

	if !policy.Enabled(kind) {
		e.skipped(log, kind, ReasonDisabled)
		return nil, nil
	}
	if !policy.Admits(entity.Scenario()) {
		e.skipped(log, kind, ReasonScenario)
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "capture."+string(kind), trace.WithAttributes(
		attribute.String("audittrail.entity_type", entity.EntityType()),
		attribute.String("audittrail.kind", string(kind)),
	))
	defer span.End()

	started := time.Now()
	entry, err := e.assemble(ctx, log, ec, kind, entity, changed, policy, started)
	if err != nil || entry == nil {
		recordSpanError(span, err)
		return nil, err
	}

	if err := e.write(ctx, log, entry); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncEntries(kind)
		e.metrics.ObserveDuration(kind, time.Since(started).Seconds())
	}
	span.SetAttributes(attribute.Int64("audittrail.entry_id", entry.ID))

	e.notify(ctx, log, entry)
	return entry, nil
}

// assemble builds the entry up to, and including, the hook. A nil entry with
// a nil error means the event is not logged.
func (e *Engine) assemble(ctx context.Context, log zerolog.Logger, ec ExecutionContext, kind domain.EntryKind, entity Entity, changed map[string]any, policy *Policy, started time.Time) (*domain.Entry, error) {
	key, err := EncodeKey(ctx, e.schema, entity)
	if err != nil {
		return nil, fmt.Errorf("capture.Engine.On%s: %w", kindTitle(kind), err)
	}

	entry := &domain.Entry{
		EntityType: entity.EntityType(),
		EntityKey:  key,
		Kind:       kind,
		HappenedAt: e.clock().Truncate(time.Second),
		Remark:     e.resolveRemark(ctx, ec),
	}
	if u := ec.RequestURL(); u != "" {
		u = domain.TruncateURL(u)
		entry.RequestURL = &u
	}
	actor := e.actors.Resolve(ctx, ec)
	entry.ActorID, entry.ActorIP = actor.ID, actor.IP

	switch kind {
	case domain.EntryKindInsert:
		if policy.LogValuesOnInsert {
			for _, f := range policy.Tracked {
				if to := coerce(entity.Value(f)); to != nil {
					entry.SetChange(f, nil, to)
				}
			}
		}
	case domain.EntryKindUpdate:
		for _, f := range policy.Tracked {
			prev, ok := changed[f]
			if !ok {
				continue
			}
			from, to := coerce(prev), coerce(entity.Value(f))
			if valuesEqual(from, to) {
				continue
			}
			entry.SetChange(f, from, to)
		}
		if len(entry.Changes) == 0 && !policy.LogEmptyUpdate {
			e.skipped(log, kind, ReasonEmptyUpdate)
			return nil, nil
		}
	case domain.EntryKindDelete:
		if policy.LogValuesOnDelete {
			for _, f := range policy.Tracked {
				if from := coerce(entity.Value(f)); from != nil {
					entry.SetChange(f, from, nil)
				}
			}
		}
	}

	milestone := time.Now()
	if e.benchmark {
		entry.Timing = &domain.Timing{CollectMicros: milestone.Sub(started).Microseconds()}
	}

	if err := convertChanges(ec.Locale(), entry, policy); err != nil {
		return nil, fmt.Errorf("capture.Engine.On%s: %w", kindTitle(kind), err)
	}

	if e.hook != nil {
		if entry = e.hook(ctx, entry); entry == nil {
			e.skipped(log, kind, ReasonVetoed)
			return nil, nil
		}
	}

	if e.benchmark {
		if entry.Timing == nil {
			entry.Timing = &domain.Timing{}
		}
		entry.Timing.ConvertMicros = time.Since(milestone).Microseconds()
	}
	return entry, nil
}

// convertChanges rewrites converted values as "<raw> :: <label>" under the
// policy language, restoring the caller's language on every path.
func convertChanges(locale *Locale, entry *domain.Entry, policy *Policy) error {
	if !policy.hasConverters() {
		return nil
	}

	restore := locale.Swap(policy.DefaultLanguage)
	defer restore()
	tag := locale.Tag()

	for i := range entry.Changes {
		c := &entry.Changes[i]
		conv, ok := policy.converter(c.Field)
		if !ok {
			continue
		}
		if c.From != nil {
			label, err := conv.Convert(tag, c.From)
			if err != nil {
				return fmt.Errorf("convert %q: %w", c.Field, err)
			}
			c.From = plain(c.From) + " :: " + label
		}
		if c.To != nil {
			label, err := conv.Convert(tag, c.To)
			if err != nil {
				return fmt.Errorf("convert %q: %w", c.Field, err)
			}
			c.To = plain(c.To) + " :: " + label
		}
	}
	return nil
}

func (e *Engine) resolveRemark(ctx context.Context, ec ExecutionContext) *string {
	if e.remarkFn != nil {
		return e.remarkFn(ctx, ec)
	}
	if v, ok := ec.RemarkParameter(e.remark); ok && v != "" {
		return &v
	}
	return nil
}

// write hands entry to the repository. Every failure becomes a
// *domain.PersistenceError; nothing is retried.
func (e *Engine) write(ctx context.Context, log zerolog.Logger, entry *domain.Entry) error {
	err := e.repo.Write(ctx, entry)
	if err == nil {
		return nil
	}

	perr := &domain.PersistenceError{Err: err}
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		perr.Messages = verrs.Messages()
	}

	if e.metrics != nil {
		e.metrics.IncPersistFailures(entry.Kind)
	}
	log.Error().Err(err).
		Str("entity_key", entry.EntityKey).
		Msg("audit trail entry not persisted")

	return fmt.Errorf("capture.Engine.On%s: %w", kindTitle(entry.Kind), perr)
}

func (e *Engine) notify(ctx context.Context, log zerolog.Logger, entry *domain.Entry) {
	for _, l := range e.listeners {
		if err := l.EntryRecorded(ctx, entry); err != nil {
			log.Warn().Err(err).Int64("entry_id", entry.ID).Msg("audit trail listener failed")
		}
	}
}

func (e *Engine) skipped(log zerolog.Logger, kind domain.EntryKind, reason string) {
	if e.metrics != nil {
		e.metrics.IncSkipped(kind, reason)
	}
	log.Debug().Str("reason", reason).Msg("lifecycle event not logged")
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func kindTitle(kind domain.EntryKind) string {
	switch kind {
	case domain.EntryKindInsert:
		return "Inserted"
	case domain.EntryKindUpdate:
		return "Updated"
	case domain.EntryKindDelete:
		return "Deleted"
	default:
		return string(kind)
	}
}
