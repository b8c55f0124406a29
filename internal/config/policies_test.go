package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/domain"
	"github.com/gosuda/audittrail/internal/schema"
)

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ---------------------------------------------------------------------------
// 1. ReadPolicyFile
// ---------------------------------------------------------------------------

func TestReadPolicyFile(t *testing.T) {
	t.Parallel()

	t.Run("schema qualified types keep their dots", func(t *testing.T) {
		t.Parallel()

		path := writePolicyFile(t, `
entities:
  crm.customer:
    ignored: [updated_at]
    log_delete: false
`)
		pf, err := ReadPolicyFile(path)
		require.NoError(t, err)
		require.Contains(t, pf.Entities, "crm.customer")

		ec := pf.Entities["crm.customer"]
		assert.Equal(t, []string{"updated_at"}, ec.Ignored)
		require.NotNil(t, ec.LogDelete)
		assert.False(t, *ec.LogDelete)
		assert.Nil(t, ec.LogInsert)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := ReadPolicyFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config.ReadPolicyFile")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := ReadPolicyFile(writePolicyFile(t, "entities: [unclosed"))
		require.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// 2. LoadPolicies
// ---------------------------------------------------------------------------

func TestLoadPolicies_Defaults(t *testing.T) {
	t.Parallel()

	path := writePolicyFile(t, `
entities:
  invoice:
    columns: [id, total, status]
    primary_key: [id]
`)
	p, err := LoadPolicies(context.Background(), path, language.German, nil)
	require.NoError(t, err)

	policy, err := p.Set.Get("invoice")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "total", "status"}, policy.Tracked)
	assert.True(t, policy.LogInsert)
	assert.True(t, policy.LogUpdate)
	assert.True(t, policy.LogDelete)
	assert.True(t, policy.LogValuesOnInsert)
	assert.True(t, policy.LogValuesOnDelete)
	assert.False(t, policy.LogEmptyUpdate)
	assert.Equal(t, language.German, policy.DefaultLanguage)
	assert.Empty(t, p.Notify)

	assert.True(t, p.Schema.Has("invoice"))
	pk, err := p.Schema.PrimaryKey(context.Background(), "invoice")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)
}

func TestLoadPolicies_FullEntity(t *testing.T) {
	t.Parallel()

	path := writePolicyFile(t, `
entities:
  invoice:
    columns: [id, total, status, secret, updated_at]
    primary_key: [id]
    ignored: [updated_at]
    scenarios: [default, import]
    log_insert: false
    log_values_on_delete: false
    log_empty_update: true
    hidden: [secret]
    default_language: de
    output:
      total: decimal
    convert:
      status:
        en:
          "1": Paid
        de:
          "1": Bezahlt
    notify: [delete, update]
  order:
    columns: [id]
    primary_key: [id]
`)
	p, err := LoadPolicies(context.Background(), path, language.English, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice", "order"}, p.Set.Types())

	policy, err := p.Set.Get("invoice")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "total", "status", "secret"}, policy.Tracked)
	assert.Equal(t, []string{"updated_at"}, policy.Excluded())
	assert.Equal(t, []string{"default", "import"}, policy.Scenarios)
	assert.False(t, policy.LogInsert)
	assert.True(t, policy.LogUpdate)
	assert.True(t, policy.LogValuesOnInsert)
	assert.False(t, policy.LogValuesOnDelete)
	assert.True(t, policy.LogEmptyUpdate)
	assert.True(t, policy.Hidden("secret"))
	assert.False(t, policy.Hidden("total"))
	assert.Equal(t, language.German, policy.DefaultLanguage)

	got, err := policy.FormatValue("total", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	assert.Equal(t, []domain.EntryKind{domain.EntryKindDelete, domain.EntryKindUpdate}, p.Notify["invoice"])
	assert.NotContains(t, p.Notify, "order")
}

func TestLoadPolicies_Fallback(t *testing.T) {
	t.Parallel()

	fallback := schema.NewRegistry()
	require.NoError(t, fallback.Register("ledger", []string{"id", "amount"}, []string{"id"}))
	path := writePolicyFile(t, `
entities:
  ledger:
    ignored: [id]
`)
	p, err := LoadPolicies(context.Background(), path, language.English, fallback)
	require.NoError(t, err)

	policy, err := p.Set.Get("ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"amount"}, policy.Tracked)
	assert.False(t, p.Schema.Has("ledger"))
}

func TestLoadPolicies_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantConfig bool
		wantMsg    string
	}{
		{
			name: "unknown output format",
			body: `
entities:
  invoice:
    columns: [id, total]
    primary_key: [id]
    output:
      total: currency
`,
			wantConfig: true,
			wantMsg:    `unknown format "currency"`,
		},
		{
			name: "invalid notify kind",
			body: `
entities:
  invoice:
    columns: [id]
    primary_key: [id]
    notify: [upsert]
`,
			wantConfig: true,
			wantMsg:    `notify kind "upsert" is invalid`,
		},
		{
			name: "invalid default language",
			body: `
entities:
  invoice:
    columns: [id]
    primary_key: [id]
    default_language: "??"
`,
			wantConfig: true,
			wantMsg:    "default_language",
		},
		{
			name: "invalid label language",
			body: `
entities:
  invoice:
    columns: [id, status]
    primary_key: [id]
    convert:
      status:
        "??":
          "1": Paid
`,
			wantMsg: `convert "status"`,
		},
		{
			name: "unknown schema without fallback",
			body: `
entities:
  ledger:
    ignored: [id]
`,
			wantMsg: `entity "ledger"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadPolicies(context.Background(), writePolicyFile(t, tc.body), language.English, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
			if tc.wantConfig {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
			}
		})
	}
}
