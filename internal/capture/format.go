package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gosuda/audittrail/internal/domain"
)

// NotSet is how an absent value is rendered.
const NotSet = "(not set)"

// OutputRule is how one field is rendered for humans: either a named format
// spec or a transform function. The zero rule is invalid.
type OutputRule struct {
	spec string
	fn   func(any) string
}

// FormatSpec selects a built-in formatter by name, see FormatSpecs.
func FormatSpec(name string) OutputRule { return OutputRule{spec: name} }

// Transform renders a value with fn. fn receives nil for absent values.
func Transform(fn func(any) string) OutputRule { return OutputRule{fn: fn} }

func (r OutputRule) String() string {
	if r.fn != nil {
		return "transform"
	}
	return r.spec
}

func (r OutputRule) validate(field string) error {
	switch {
	case r.fn != nil:
		return nil
	case r.spec == "":
		return domain.NewConfigurationError(fmt.Sprintf("output rule for %q is neither a format spec nor a transform", field))
	default:
		if _, ok := formatters[r.spec]; !ok {
			return domain.NewConfigurationError(fmt.Sprintf("output rule for %q: unknown format %q", field, r.spec))
		}
		return nil
	}
}

func (r OutputRule) apply(p *message.Printer, field string, v any) (string, error) {
	if err := r.validate(field); err != nil {
		return "", err
	}
	if r.fn != nil {
		return r.fn(v), nil
	}
	return formatters[r.spec](p, v), nil
}

type formatter func(p *message.Printer, v any) string

var formatters = map[string]formatter{ //nolint:gochecknoglobals // formatter table
	"raw":      nullSafe(func(_ *message.Printer, v any) string { return plain(v) }),
	"text":     nullSafe(func(_ *message.Printer, v any) string { return plain(v) }),
	"ntext":    nullSafe(formatNText),
	"boolean":  nullSafe(formatBoolean),
	"integer":  nullSafe(formatInteger),
	"decimal":  nullSafe(formatDecimal),
	"percent":  nullSafe(formatPercent),
	"date":     nullSafe(timeFormatter("Jan 2, 2006")),
	"datetime": nullSafe(timeFormatter("Jan 2, 2006, 3:04:05 PM")),
	"time":     nullSafe(timeFormatter("3:04:05 PM")),
	"email":    nullSafe(func(_ *message.Printer, v any) string { return strings.TrimSpace(plain(v)) }),
	"json":     formatJSON,
	"url":      nullSafe(func(_ *message.Printer, v any) string { return strings.TrimSpace(plain(v)) }),
}

// FormatSpecs lists the names accepted by FormatSpec.
func FormatSpecs() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nullSafe(f formatter) formatter {
	return func(p *message.Printer, v any) string {
		if v = deref(v); v == nil {
			return NotSet
		}
		return f(p, v)
	}
}

// plain is the text form of a scalar.
func plain(v any) string {
	switch t := deref(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func formatNText(_ *message.Printer, v any) string {
	s := strings.ReplaceAll(plain(v), "\r\n", "\n")
	return strings.TrimRight(s, "\n")
}

func formatBoolean(_ *message.Printer, v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case string:
		if b, err := strconv.ParseBool(t); err == nil && b {
			return "Yes"
		}
		return "No"
	}
	if f, ok := asFloat(v); ok && f != 0 {
		return "Yes"
	}
	return "No"
}

func formatInteger(p *message.Printer, v any) string {
	if i, ok := asInt(v); ok {
		return p.Sprintf("%d", i)
	}
	if f, ok := asFloat(v); ok && f >= math.MinInt64 && f < math.MaxInt64 {
		return p.Sprintf("%d", int64(f))
	}
	return plain(v)
}

func formatDecimal(p *message.Printer, v any) string {
	if f, ok := asFloat(v); ok {
		return p.Sprintf("%.2f", f)
	}
	return plain(v)
}

func formatPercent(p *message.Printer, v any) string {
	if f, ok := asFloat(v); ok {
		return p.Sprintf("%.0f%%", f*100)
	}
	return plain(v)
}

func timeFormatter(layout string) formatter {
	return func(_ *message.Printer, v any) string {
		t, ok := asTime(v)
		if !ok {
			return plain(v)
		}
		return t.UTC().Format(layout)
	}
}

// asTime accepts time.Time, unix seconds and RFC 3339 / date strings.
func asTime(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	if s, ok := v.(string); ok {
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly, time.TimeOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	if i, ok := asInt(v); ok {
		return time.Unix(i, 0), true
	}
	return time.Time{}, false
}

func formatJSON(_ *message.Printer, v any) string {
	b, err := json.Marshal(deref(v))
	if err != nil {
		return plain(v)
	}
	return string(b)
}

func printerFor(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}
