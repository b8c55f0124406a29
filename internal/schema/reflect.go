package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/gosuda/audittrail/internal/capture"
)

// TableNamer provides a custom entity type name for a model.
type TableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem() //nolint:gochecknoglobals // reflect type cache

// TypeName derives the entity type of a model: TableName() when implemented,
// otherwise the pluralized snake_case struct name (Invoice → invoices).
func TypeName(model any) (string, error) {
	if model == nil {
		return "", errors.New("schema: nil model")
	}

	val := reflect.ValueOf(model)
	typ := val.Type()

	if typ.Kind() == reflect.Pointer {
		if val.IsNil() {
			return "", fmt.Errorf("schema: nil pointer model %T", model)
		}
		if namer, ok := val.Interface().(TableNamer); ok {
			return namedOrError(namer, model)
		}
		typ = typ.Elem()
		val = val.Elem()
	}

	if namer, ok := val.Interface().(TableNamer); ok {
		return namedOrError(namer, model)
	}
	if typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("schema: unsupported model %T", model)
	}
	if reflect.PointerTo(typ).Implements(tableNamerType) {
		if namer, ok := reflect.New(typ).Interface().(TableNamer); ok {
			return namedOrError(namer, model)
		}
	}
	if typ.Name() == "" {
		return "", fmt.Errorf("schema: cannot derive entity type for anonymous struct %v", typ)
	}
	return inflection.Plural(toSnakeCase(typ.Name())), nil
}

func namedOrError(namer TableNamer, model any) (string, error) {
	name := strings.TrimSpace(namer.TableName())
	if name == "" {
		return "", fmt.Errorf("schema: TableName returned empty string. %T", model)
	}
	return name, nil
}

// RegisterStruct registers the columns of a struct model. Columns come from
// `db` tags in field order (untagged exported fields use their snake_case
// name, "-" skips); fields tagged `audit:"pk"` form the primary key.
// It returns the entity type the model was registered under.
func (r *Registry) RegisterStruct(model any) (string, error) {
	name, err := TypeName(model)
	if err != nil {
		return "", err
	}
	typ := reflect.TypeOf(model)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	fields := structColumns(typ)
	columns := make([]string, 0, len(fields))
	var pk []string
	for _, f := range fields {
		columns = append(columns, f.column)
		if f.pk {
			pk = append(pk, f.column)
		}
	}
	if err := r.Register(name, columns, pk); err != nil {
		return "", err
	}
	return name, nil
}

type structField struct {
	column string
	index  []int
	pk     bool
}

func structColumns(typ reflect.Type) []structField {
	var out []structField
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
			for _, inner := range structColumns(f.Type) {
				inner.index = append([]int{i}, inner.index...)
				out = append(out, inner)
			}
			continue
		}
		col := f.Tag.Get("db")
		if col == "-" {
			continue
		}
		if col == "" {
			col = toSnakeCase(f.Name)
		}
		out = append(out, structField{
			column: col,
			index:  []int{i},
			pk:     f.Tag.Get("audit") == "pk",
		})
	}
	return out
}

// Struct adapts a struct model to capture.Entity.
type Struct struct {
	typ      string
	val      reflect.Value
	byColumn map[string][]int
	scenario string
}

var _ capture.Entity = (*Struct)(nil)

// Wrap returns model as an Entity in the given scenario ("" = default).
func Wrap(model any, scenario string) (*Struct, error) {
	name, err := TypeName(model)
	if err != nil {
		return nil, err
	}
	val := reflect.ValueOf(model)
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}

	s := &Struct{typ: name, val: val, byColumn: make(map[string][]int), scenario: scenario}
	for _, f := range structColumns(val.Type()) {
		s.byColumn[f.column] = f.index
	}
	return s, nil
}

func (s *Struct) EntityType() string { return s.typ }

func (s *Struct) Value(field string) any {
	idx, ok := s.byColumn[field]
	if !ok {
		return nil
	}
	fv, err := s.val.FieldByIndexErr(idx)
	if err != nil {
		return nil
	}
	return fv.Interface()
}

func (s *Struct) Scenario() string {
	if s.scenario == "" {
		return capture.DefaultScenario
	}
	return s.scenario
}

// Snapshot returns the column values of model, for building the changed
// map of an update from a copy taken before the change.
func Snapshot(model any) map[string]any {
	val := reflect.ValueOf(model)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	out := make(map[string]any)
	for _, f := range structColumns(val.Type()) {
		fv, err := val.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		out[f.column] = fv.Interface()
	}
	return out
}

// Changed compares two snapshots and returns the previous value of every
// column that differs.
func Changed(before, after map[string]any) map[string]any {
	out := make(map[string]any)
	for col, prev := range before {
		if !reflect.DeepEqual(prev, after[col]) {
			out[col] = prev
		}
	}
	return out
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
