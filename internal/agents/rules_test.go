package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesAreValid(t *testing.T) {
	rs := DefaultRules()
	require.NoError(t, rs.Validate())

	var names []string
	for _, c := range rs.Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"gdpr", "contract_risks", "required_clauses"}, names)
	assert.True(t, rs.Categories[2].Required())
	assert.False(t, rs.Categories[0].Required())
}

func TestCategoryApplies(t *testing.T) {
	cat := Category{AppliesWhen: []string{"agreement", "contract"}}
	assert.True(t, cat.Applies("This AGREEMENT is binding"))
	assert.False(t, cat.Applies("A weekly status report"))
	assert.True(t, Category{}.Applies("anything"))
}

func TestLoadRules(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("empty path uses defaults", func(t *testing.T) {
		rs, err := LoadRules("")
		require.NoError(t, err)
		assert.Equal(t, DefaultRules(), rs)
	})

	t.Run("custom file", func(t *testing.T) {
		path := write(t, `
categories:
  - name: export_control
    kind: risk
    query: export restrictions and sanctioned countries
    rules:
      - name: embargoed destination
        keywords: [embargo, sanctioned]
        severity: high
    recommendations:
      - Route to the trade compliance team
`)
		rs, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rs.Categories, 1)
		cat := rs.Categories[0]
		assert.Equal(t, "export_control", cat.Name)
		assert.Equal(t, []string{"embargo", "sanctioned"}, cat.Rules[0].Keywords)
		assert.True(t, cat.Rules[0].matches("shipments to sanctioned parties"))
	})

	tests := []struct {
		name string
		body string
	}{
		{"no categories", "categories: []\n"},
		{"bad kind", "categories:\n  - name: a\n    kind: other\n    rules: [{name: r, severity: low}]\n"},
		{"bad severity", "categories:\n  - name: a\n    kind: risk\n    rules: [{name: r, severity: extreme}]\n"},
		{"no rules", "categories:\n  - name: a\n    kind: risk\n"},
		{"duplicate", "categories:\n  - {name: a, kind: risk, rules: [{name: r, severity: low}]}\n  - {name: a, kind: risk, rules: [{name: r, severity: low}]}\n"},
		{"not yaml", "categories: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(write(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
