package capture

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// Converter turns a stored value into a human-readable label in a language.
type Converter interface {
	Convert(tag language.Tag, v any) (string, error)
}

type ConverterFunc func(tag language.Tag, v any) (string, error)

func (f ConverterFunc) Convert(tag language.Tag, v any) (string, error) { return f(tag, v) }

// Labels is a declarative Converter: a value → label table per language.
// Lookups fall back through language matching; a value without a label
// converts to its plain text.
type Labels struct {
	tags    []language.Tag
	matcher language.Matcher
	byTag   map[language.Tag]map[string]string
}

// NewLabels builds Labels from BCP 47 language keys, e.g.
//
//	{"en": {"1": "Paid"}, "de": {"1": "Bezahlt"}}
//
// English, when present, is the fallback; otherwise the first key in sorted order.
func NewLabels(table map[string]map[string]string) (*Labels, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("capture.NewLabels: empty label table")
	}

	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "en" || keys[j] == "en" {
			return keys[i] == "en"
		}
		return keys[i] < keys[j]
	})

	l := &Labels{byTag: make(map[language.Tag]map[string]string, len(table))}
	for _, key := range keys {
		tag, err := language.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("capture.NewLabels: language %q: %w", key, err)
		}
		l.tags = append(l.tags, tag)
		l.byTag[tag] = table[key]
	}
	l.matcher = language.NewMatcher(l.tags)
	return l, nil
}

func (l *Labels) Convert(tag language.Tag, v any) (string, error) {
	_, idx, _ := l.matcher.Match(tag)
	labels := l.byTag[l.tags[idx]]
	raw := plain(v)
	if label, ok := labels[raw]; ok {
		return label, nil
	}
	return raw, nil
}
