package capture

import (
	"context"
	"reflect"
)

// DefaultScenario is the scenario of an entity that does not declare one.
const DefaultScenario = "default"

// Entity is the live state of one audited record.
type Entity interface {
	EntityType() string
	// Value returns the current value of field, or nil when unset.
	Value(field string) any
	Scenario() string
}

// SchemaProvider exposes the column metadata of entity types. Implementations
// are expected to cache; the engine consults it on every event.
type SchemaProvider interface {
	Columns(ctx context.Context, entityType string) ([]string, error)
	PrimaryKey(ctx context.Context, entityType string) ([]string, error)
}

// Record is a map-backed Entity, used for entities arriving over the wire.
type Record struct {
	Type   string
	Fields map[string]any
	Tag    string
}

func (r Record) EntityType() string { return r.Type }

func (r Record) Value(field string) any { return r.Fields[field] }

func (r Record) Scenario() string {
	if r.Tag == "" {
		return DefaultScenario
	}
	return r.Tag
}

// deref follows pointers down to the underlying value. Nil pointers yield nil.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// coerce is the value seen by the differ: the empty string counts as unset.
func coerce(v any) any {
	v = deref(v)
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
