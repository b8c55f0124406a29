package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/schema"
)

// EntityConfig is the YAML form of one entity type's audit policy.
// Unset log switches default to true, except log_empty_update.
type EntityConfig struct {
	Ignored           []string                                `koanf:"ignored"`
	Scenarios         []string                                `koanf:"scenarios"`
	LogInsert         *bool                                   `koanf:"log_insert"`
	LogUpdate         *bool                                   `koanf:"log_update"`
	LogDelete         *bool                                   `koanf:"log_delete"`
	LogValuesOnInsert *bool                                   `koanf:"log_values_on_insert"`
	LogValuesOnDelete *bool                                   `koanf:"log_values_on_delete"`
	LogEmptyUpdate    bool                                    `koanf:"log_empty_update"`
	Output            map[string]string                       `koanf:"output"`
	Hidden            []string                                `koanf:"hidden"`
	Convert           map[string]map[string]map[string]string `koanf:"convert"`
	DefaultLanguage   string                                  `koanf:"default_language"`
	Columns           []string                                `koanf:"columns"`
	PrimaryKey        []string                                `koanf:"primary_key"`
	Notify            []string                                `koanf:"notify"`
}

// PolicyFile is the YAML document holding every audited entity type.
type PolicyFile struct {
	Entities map[string]EntityConfig `koanf:"entities"`
}

// Policies is the result of loading a policy file.
type Policies struct {
	Set    *capture.PolicySet
	Schema *schema.Registry
	// Notify lists, per entity type, the kinds that trigger a notification.
	Notify map[string][]domain.EntryKind
}

// ReadPolicyFile parses the YAML policy file at path.
func ReadPolicyFile(path string) (*PolicyFile, error) {
	// Entity types may be schema qualified, so "." cannot delimit key paths.
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config.ReadPolicyFile: %w", err)
	}

	var pf PolicyFile
	if err := k.UnmarshalWithConf("", &pf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config.ReadPolicyFile: %w", err)
	}
	return &pf, nil
}

// LoadPolicies reads the policy file at path and builds a policy per entity
// type. Types declaring columns and primary_key are registered statically;
// the rest resolve their schema through fallback, which may be nil.
func LoadPolicies(ctx context.Context, path string, defaultLang language.Tag, fallback capture.SchemaProvider) (*Policies, error) {
	pf, err := ReadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	p, err := pf.Build(ctx, defaultLang, fallback)
	if err != nil {
		return nil, fmt.Errorf("config.LoadPolicies: %w", err)
	}
	return p, nil
}

// Build turns the parsed file into policies.
func (pf *PolicyFile) Build(ctx context.Context, defaultLang language.Tag, fallback capture.SchemaProvider) (*Policies, error) {
	reg := schema.NewRegistry()
	if fallback != nil {
		reg = reg.WithFallback(fallback)
	}

	types := make([]string, 0, len(pf.Entities))
	for t := range pf.Entities {
		types = append(types, t)
	}
	slices.Sort(types)

	out := &Policies{Schema: reg, Notify: make(map[string][]domain.EntryKind)}
	policies := make([]*capture.Policy, 0, len(types))

	for _, t := range types {
		ec := pf.Entities[t]

		if len(ec.Columns) > 0 || len(ec.PrimaryKey) > 0 {
			if err := reg.Register(t, ec.Columns, ec.PrimaryKey); err != nil {
				return nil, fmt.Errorf("entity %q: %w", t, err)
			}
		}

		opts, err := ec.options(defaultLang)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", t, err)
		}

		policy, err := capture.NewPolicy(ctx, reg, t, opts...)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", t, err)
		}
		policies = append(policies, policy)

		kinds, err := parseKinds(ec.Notify)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", t, err)
		}
		if len(kinds) > 0 {
			out.Notify[t] = kinds
		}
	}

	out.Set = capture.NewPolicySet(policies...)
	return out, nil
}

func (ec EntityConfig) options(defaultLang language.Tag) ([]capture.PolicyOption, error) {
	lang := defaultLang
	if ec.DefaultLanguage != "" {
		tag, err := language.Parse(ec.DefaultLanguage)
		if err != nil {
			return nil, domain.NewConfigurationError(fmt.Sprintf("default_language %q: %v", ec.DefaultLanguage, err))
		}
		lang = tag
	}

	opts := []capture.PolicyOption{
		capture.WithExcluded(ec.Ignored...),
		capture.WithScenarios(ec.Scenarios...),
		capture.WithKinds(ec.kinds()...),
		capture.WithValuesOnInsert(orTrue(ec.LogValuesOnInsert)),
		capture.WithValuesOnDelete(orTrue(ec.LogValuesOnDelete)),
		capture.WithEmptyUpdates(ec.LogEmptyUpdate),
		capture.WithHidden(ec.Hidden...),
		capture.WithDefaultLanguage(lang),
	}

	for field, spec := range ec.Output {
		opts = append(opts, capture.WithOutput(field, capture.FormatSpec(spec)))
	}

	for field, table := range ec.Convert {
		labels, err := capture.NewLabels(table)
		if err != nil {
			return nil, fmt.Errorf("convert %q: %w", field, err)
		}
		opts = append(opts, capture.WithConverter(field, labels))
	}

	return opts, nil
}

func (ec EntityConfig) kinds() []domain.EntryKind {
	var kinds []domain.EntryKind
	if orTrue(ec.LogInsert) {
		kinds = append(kinds, domain.EntryKindInsert)
	}
	if orTrue(ec.LogUpdate) {
		kinds = append(kinds, domain.EntryKindUpdate)
	}
	if orTrue(ec.LogDelete) {
		kinds = append(kinds, domain.EntryKindDelete)
	}
	return kinds
}

func orTrue(b *bool) bool {
	return b == nil || *b
}

func parseKinds(names []string) ([]domain.EntryKind, error) {
	kinds := make([]domain.EntryKind, 0, len(names))
	for _, n := range names {
		k := domain.EntryKind(n)
		if !k.Valid() {
			return nil, domain.NewConfigurationError(fmt.Sprintf("notify kind %q is invalid", n))
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
