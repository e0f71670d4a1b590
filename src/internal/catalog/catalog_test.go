package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNamesDistinct(t *testing.T) {
	c := Default()
	seen := make(map[string]bool)
	for _, e := range c.All() {
		key := strings.ToLower(e.Name)
		assert.False(t, seen[key], "duplicate category %q", e.Name)
		seen[key] = true
		assert.NotEmpty(t, e.CandidateFixes, "category %q has no fixes", e.Name)
	}
	assert.Equal(t, 6, c.Len())
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]VulnerabilityCategory{
		{Name: "Reentrancy", CandidateFixes: []string{"a"}},
		{Name: "reentrancy", CandidateFixes: []string{"b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]VulnerabilityCategory{
		"empty":    nil,
		"no name":  {{Name: "  ", CandidateFixes: []string{"a"}}},
		"no fixes": {{Name: "Overflow"}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(entries)
			assert.Error(t, err)
		})
	}
}

func TestByNameAndResolve(t *testing.T) {
	c := Default()

	e, ok := c.ByName(Reentrancy)
	require.True(t, ok)
	assert.Equal(t, "Reentrancy", e.Name)
	assert.Contains(t, e.CandidateFixes, "Update state variables before external calls")

	_, ok = c.ByName("reentrancy")
	assert.False(t, ok, "ByName is case-sensitive")

	e, ok = c.Resolve("  unauthorized ACCESS ")
	require.True(t, ok)
	assert.Equal(t, UnauthorizedAccess, e.Name)

	_, ok = c.Resolve("Reentrancy Attack")
	assert.False(t, ok, "no partial matching")
	_, ok = c.Resolve("Reentr")
	assert.False(t, ok)
}

func TestAllReturnsCopies(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Name = "mutated"
	all[0].CandidateFixes[0] = "mutated"

	e, ok := c.ByName(Overflow)
	require.True(t, ok)
	assert.Equal(t, "Use SafeMath library for arithmetic operations", e.CandidateFixes[0])
	assert.Equal(t, Overflow, c.Names()[0])
}

func TestJSONPreservesOrderAndShape(t *testing.T) {
	c := Default()
	out, err := c.JSON()
	require.NoError(t, err)

	var decoded map[string]struct {
		Patterns []string `json:"patterns"`
		Fixes    []string `json:"fixes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded, 6)
	assert.Equal(t, []string{"transfer", "send", "call.value"}, decoded[Reentrancy].Patterns)

	prev := -1
	for _, name := range c.Names() {
		idx := strings.Index(out, `"`+name+`"`)
		require.Greater(t, idx, prev, "category %s out of order", name)
		prev = idx
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `categories:
  - name: Reentrancy
    patterns: [call]
    fixes:
      - Use a mutex
  - name: Oracle Manipulation
    patterns: [getReserves]
    fixes:
      - Use a TWAP oracle
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reentrancy", "Oracle Manipulation"}, c.Names())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
