package capture

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/domain"
)

// Policy is the resolved audit configuration of one entity type.
// Build it with NewPolicy; a Policy is read-only afterwards.
type Policy struct {
	EntityType string
	// Tracked holds the audited columns in schema order.
	Tracked []string
	// Scenarios, when non-empty, restricts logging to entities in one of them.
	Scenarios []string

	LogInsert         bool
	LogUpdate         bool
	LogDelete         bool
	LogValuesOnInsert bool
	LogValuesOnDelete bool
	LogEmptyUpdate    bool

	// DefaultLanguage is the language converters run under.
	DefaultLanguage language.Tag

	excluded   []string
	hidden     []string
	output     map[string]OutputRule
	converters map[string]Converter
}

type PolicyOption func(*Policy)

// WithExcluded removes fields from the tracked set.
func WithExcluded(fields ...string) PolicyOption {
	return func(p *Policy) { p.excluded = append(p.excluded, fields...) }
}

// WithScenarios logs only entities whose scenario is one of names.
func WithScenarios(names ...string) PolicyOption {
	return func(p *Policy) { p.Scenarios = append(p.Scenarios, names...) }
}

// WithKinds enables logging for exactly the given kinds.
func WithKinds(kinds ...domain.EntryKind) PolicyOption {
	return func(p *Policy) {
		p.LogInsert = slices.Contains(kinds, domain.EntryKindInsert)
		p.LogUpdate = slices.Contains(kinds, domain.EntryKindUpdate)
		p.LogDelete = slices.Contains(kinds, domain.EntryKindDelete)
	}
}

func WithValuesOnInsert(enabled bool) PolicyOption {
	return func(p *Policy) { p.LogValuesOnInsert = enabled }
}

func WithValuesOnDelete(enabled bool) PolicyOption {
	return func(p *Policy) { p.LogValuesOnDelete = enabled }
}

// WithEmptyUpdates keeps update entries that carry no changes.
func WithEmptyUpdates(enabled bool) PolicyOption {
	return func(p *Policy) { p.LogEmptyUpdate = enabled }
}

// WithOutput installs the rendering rule of field.
func WithOutput(field string, rule OutputRule) PolicyOption {
	return func(p *Policy) {
		if p.output == nil {
			p.output = make(map[string]OutputRule)
		}
		p.output[field] = rule
	}
}

// WithHidden keeps fields out of rendered trails. They are still recorded.
func WithHidden(fields ...string) PolicyOption {
	return func(p *Policy) { p.hidden = append(p.hidden, fields...) }
}

// WithConverter applies c to the values of field before an entry is written.
func WithConverter(field string, c Converter) PolicyOption {
	return func(p *Policy) {
		if p.converters == nil {
			p.converters = make(map[string]Converter)
		}
		p.converters[field] = c
	}
}

func WithDefaultLanguage(tag language.Tag) PolicyOption {
	return func(p *Policy) { p.DefaultLanguage = tag }
}

// ResolveTracked returns the columns of entityType minus excluded, keeping
// schema order.
func ResolveTracked(ctx context.Context, schema SchemaProvider, entityType string, excluded []string) ([]string, error) {
	cols, err := schema.Columns(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("capture.ResolveTracked: %w", err)
	}

	tracked := make([]string, 0, len(cols))
	for _, c := range cols {
		if slices.Contains(excluded, c) {
			continue
		}
		tracked = append(tracked, c)
	}
	return tracked, nil
}

// NewPolicy resolves the tracked fields of entityType and validates every
// output rule and converter. Malformed rules yield a *domain.ConfigurationError.
func NewPolicy(ctx context.Context, schema SchemaProvider, entityType string, opts ...PolicyOption) (*Policy, error) {
	p := &Policy{
		EntityType:        entityType,
		LogInsert:         true,
		LogUpdate:         true,
		LogDelete:         true,
		LogValuesOnInsert: true,
		LogValuesOnDelete: true,
		DefaultLanguage:   language.English,
	}
	for _, opt := range opts {
		opt(p)
	}

	if entityType == "" {
		return nil, domain.NewConfigurationError("entity type is required")
	}
	for field, rule := range p.output {
		if err := rule.validate(field); err != nil {
			return nil, err
		}
	}
	for field, c := range p.converters {
		if c == nil {
			return nil, domain.NewConfigurationError(fmt.Sprintf("converter for %q is nil", field))
		}
	}

	tracked, err := ResolveTracked(ctx, schema, entityType, p.excluded)
	if err != nil {
		return nil, fmt.Errorf("capture.NewPolicy: %w", err)
	}
	p.Tracked = tracked

	return p, nil
}

// Excluded returns the fields removed from tracking.
func (p *Policy) Excluded() []string { return slices.Clone(p.excluded) }

// Hidden reports whether field is left out of rendered trails.
func (p *Policy) Hidden(field string) bool {
	return p != nil && slices.Contains(p.hidden, field)
}

// Enabled reports whether kind is logged at all.
func (p *Policy) Enabled(kind domain.EntryKind) bool {
	switch kind {
	case domain.EntryKindInsert:
		return p.LogInsert
	case domain.EntryKindUpdate:
		return p.LogUpdate
	case domain.EntryKindDelete:
		return p.LogDelete
	default:
		return false
	}
}

// Admits reports whether scenario passes the scenario filter.
func (p *Policy) Admits(scenario string) bool {
	return len(p.Scenarios) == 0 || slices.Contains(p.Scenarios, scenario)
}

// FormatValue renders v for humans using the rule of field, or the null-safe
// text format when none is registered. A nil policy formats everything as text.
func (p *Policy) FormatValue(field string, v any) (string, error) {
	if p == nil {
		return formatters["text"](printerFor(language.English), v), nil
	}
	pr := printerFor(p.DefaultLanguage)
	rule, ok := p.output[field]
	if !ok {
		return formatters["text"](pr, v), nil
	}
	out, err := rule.apply(pr, field, v)
	if err != nil {
		return "", fmt.Errorf("capture.Policy.FormatValue: %w", err)
	}
	return out, nil
}

func (p *Policy) converter(field string) (Converter, bool) {
	c, ok := p.converters[field]
	return c, ok
}

func (p *Policy) hasConverters() bool { return len(p.converters) > 0 }

// PolicySet indexes policies by entity type.
type PolicySet struct {
	byType map[string]*Policy
}

func NewPolicySet(policies ...*Policy) *PolicySet {
	s := &PolicySet{byType: make(map[string]*Policy, len(policies))}
	for _, p := range policies {
		s.byType[p.EntityType] = p
	}
	return s
}

// Get returns the policy of entityType or domain.ErrNotFound.
func (s *PolicySet) Get(entityType string) (*Policy, error) {
	p, ok := s.byType[entityType]
	if !ok {
		return nil, fmt.Errorf("policy %q: %w", entityType, domain.ErrNotFound)
	}
	return p, nil
}

// Types returns the registered entity types, sorted.
func (s *PolicySet) Types() []string {
	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
