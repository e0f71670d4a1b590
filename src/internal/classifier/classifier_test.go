package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
	"github.com/admi-n/trustguard/src/internal/catalog"
	"github.com/admi-n/trustguard/src/strategy/prompts"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []client.Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, p client.Prompt) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.response, f.err
}

const bank = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint) balances;
    function withdraw() public {
        (bool ok, ) = msg.sender.call{value: balances[msg.sender]}("");
        require(ok);
        balances[msg.sender] = 0;
    }
}`

func newClassifier(t *testing.T, gen Generator, opts ...Option) *Classifier {
	t.Helper()
	opts = append(opts, WithLogger(zaptest.NewLogger(t)))
	c, err := New(gen, catalog.Default(), opts...)
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	gen := &fakeGenerator{response: `{"category":"Reentrancy","fixes":["a","b"]}`}
	c := newClassifier(t, gen)

	got, err := c.Classify(context.Background(), bank)
	require.NoError(t, err)
	assert.Equal(t, internal.ClassificationResult{Category: "Reentrancy", Fixes: []string{"a", "b"}}, got)

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Equal(t, prompts.ClassifySystemPrompt, p.System)
	assert.Contains(t, p.User, bank)
	assert.Contains(t, p.User, `"Reentrancy"`)
	assert.Contains(t, p.User, "Use ReentrancyGuard")
	assert.Contains(t, p.User, `Must be one of: "Overflow", "Reentrancy"`)
	require.NotNil(t, p.Schema)
	assert.Equal(t, []string{"category", "fixes"}, p.Schema.Names())
	assert.Equal(t, catalog.Default().Names(), p.Schema.Fields[0].Enum)
}

func TestClassifyResolvesCanonicalName(t *testing.T) {
	tests := map[string]string{
		"reentrancy":            catalog.Reentrancy,
		"  unauthorized access": catalog.UnauthorizedAccess,
		"SELF-DESTRUCT":         catalog.SelfDestruct,
	}
	for raw, want := range tests {
		gen := &fakeGenerator{response: `{"category":"` + raw + `","fixes":["x"]}`}
		got, err := newClassifier(t, gen).Classify(context.Background(), bank)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.Category)
	}
}

func TestClassifySchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"missing fixes", `{"category":"Reentrancy"}`},
		{"unknown category", `{"category":"Timestamp Dependence","fixes":["x"]}`},
		{"partial category", `{"category":"Reentr","fixes":["x"]}`},
		{"fenced unknown field", "```json\n{\"category\":\"Reentrancy\",\"fixes\":[\"x\"],\"score\":9}\n```"},
		{"prose", "The contract is vulnerable to reentrancy."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{response: tt.response}
			_, err := newClassifier(t, gen).Classify(context.Background(), bank)
			assert.ErrorIs(t, err, internal.ErrSchemaViolation)
			assert.Len(t, gen.prompts, 1)
		})
	}
}

func TestClassifyUpstreamError(t *testing.T) {
	cause := errors.New("503 service unavailable")
	gen := &fakeGenerator{err: cause}

	_, err := newClassifier(t, gen).Classify(context.Background(), bank)
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestClassifyEmptyReplyIsSchemaViolation(t *testing.T) {
	gen := &fakeGenerator{err: internal.Schemaf("empty response from Gemini")}

	_, err := newClassifier(t, gen).Classify(context.Background(), bank)
	assert.ErrorIs(t, err, internal.ErrSchemaViolation)
	assert.NotErrorIs(t, err, internal.ErrUpstreamUnavailable)
}

func TestClassifyWithCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classify.tmpl"),
		[]byte("CUSTOM\n{{.FormatInstructions}}\n{{.SmartContract}}"), 0o644))

	gen := &fakeGenerator{response: `{"category":"Overflow","fixes":["Use SafeMath"]}`}
	c := newClassifier(t, gen, WithPromptBuilder(prompts.NewBuilder(prompts.NewLoader(dir))))

	_, err := c.Classify(context.Background(), bank)
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0].User, "CUSTOM")
	assert.NotContains(t, gen.prompts[0].User, "VULNERABILITY_PATTERNS")
}

func TestClassifyBrokenTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classify.tmpl"), []byte("{{.Nope}}"), 0o644))

	gen := &fakeGenerator{response: `{}`}
	c := newClassifier(t, gen, WithPromptBuilder(prompts.NewBuilder(prompts.NewLoader(dir))))

	_, err := c.Classify(context.Background(), bank)
	require.Error(t, err)
	assert.NotErrorIs(t, err, internal.ErrSchemaViolation)
	assert.Empty(t, gen.prompts)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, catalog.Default())
	assert.Error(t, err)
	_, err = New(&fakeGenerator{}, nil)
	assert.Error(t, err)
}
