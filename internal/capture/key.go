package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gosuda/audittrail/internal/domain"
)

// EncodeKey serializes the primary key of entity as a compact JSON object
// whose members follow the declared key column order, e.g. {"id":7} or
// {"order_id":3,"line":1}. Equal key values always encode to equal bytes.
func EncodeKey(ctx context.Context, schema SchemaProvider, entity Entity) (string, error) {
	pk, err := schema.PrimaryKey(ctx, entity.EntityType())
	if err != nil {
		return "", fmt.Errorf("capture.EncodeKey: %w", err)
	}
	if err := validateKeyColumns(entity.EntityType(), pk); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var out strings.Builder
	out.WriteByte('{')
	for i, col := range pk {
		if i > 0 {
			out.WriteByte(',')
		}
		buf.Reset()
		if err := enc.Encode(col); err != nil {
			return "", fmt.Errorf("capture.EncodeKey: column %q: %w", col, err)
		}
		out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
		out.WriteByte(':')

		buf.Reset()
		if err := enc.Encode(deref(entity.Value(col))); err != nil {
			return "", fmt.Errorf("capture.EncodeKey: value of %q: %w", col, err)
		}
		out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	}
	out.WriteByte('}')

	return out.String(), nil
}

func validateKeyColumns(entityType string, pk []string) error {
	if len(pk) == 0 {
		return domain.NewConfigurationError(fmt.Sprintf("invalid primary key definition: please provide a primary key for %q", entityType))
	}
	seen := make(map[string]struct{}, len(pk))
	for _, col := range pk {
		if strings.TrimSpace(col) == "" {
			return domain.NewConfigurationError(fmt.Sprintf("invalid primary key definition for %q: blank column name", entityType))
		}
		if _, dup := seen[col]; dup {
			return domain.NewConfigurationError(fmt.Sprintf("invalid primary key definition for %q: column %q listed twice", entityType, col))
		}
		seen[col] = struct{}{}
	}
	return nil
}
