package postgres

import (
	"fmt"
	"strings"
)

// splitQualified splits a possibly schema-qualified identifier such as
// `crm."Customer"` into its parts, honouring double quotes.
func splitQualified(ident string) []string {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil
	}
	var parts []string
	var buf strings.Builder
	inQuotes := false
	runes := []rune(ident)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				buf.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case '.':
			if inQuotes {
				buf.WriteRune(r)
				continue
			}
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(buf.String()))
	return parts
}

func quoteIdent(part string) string {
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

func quoteQualified(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = quoteIdent(p)
	}
	return strings.Join(quoted, ".")
}

// tableName is a validated, schema-qualified table reference.
type tableName struct {
	schema string
	name   string
}

func parseTableName(ident string) (tableName, error) {
	parts := splitQualified(ident)
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return tableName{}, fmt.Errorf("invalid table identifier %q", ident)
		}
		return tableName{schema: "public", name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return tableName{}, fmt.Errorf("invalid table identifier %q", ident)
		}
		return tableName{schema: parts[0], name: parts[1]}, nil
	default:
		return tableName{}, fmt.Errorf("invalid table identifier %q", ident)
	}
}

// Quoted renders the reference for use in SQL text.
func (t tableName) Quoted() string {
	return quoteQualified([]string{t.schema, t.name})
}

func (t tableName) String() string {
	return t.schema + "." + t.name
}
