package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	out, err := BuildPrompt("Hello {{.Name}}", map[string]string{"Name": "auditor"})
	require.NoError(t, err)
	assert.Equal(t, "Hello auditor", out)

	_, err = BuildPrompt("Hello {{.Missing}}", map[string]string{"Name": "x"})
	assert.Error(t, err)

	_, err = BuildPrompt("Hello {{.Name", nil)
	assert.Error(t, err)
}

func TestBuildPromptDoesNotExpandValues(t *testing.T) {
	out, err := BuildPrompt("{{.SmartContract}}", map[string]string{"SmartContract": "contract C { /* {{.Evil}} */ }"})
	require.NoError(t, err)
	assert.Equal(t, "contract C { /* {{.Evil}} */ }", out)
}

func TestBuildClassifyPromptUsesEmbeddedTemplate(t *testing.T) {
	b := NewBuilder(nil)

	out, err := b.BuildClassifyPrompt(ClassifyVars{
		SmartContract:         "contract Bank {}",
		VulnerabilityPatterns: `{"Reentrancy":{}}`,
		FormatInstructions:    "Return ONLY a JSON object",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<smart contract>\ncontract Bank {}\n</smart contract>")
	assert.Contains(t, out, `VULNERABILITY_PATTERNS = {"Reentrancy":{}}`)
	assert.Contains(t, out, "Return ONLY a JSON object")
}

func TestBuildRemediatePromptNumbersFixes(t *testing.T) {
	b := NewBuilder(NewLoader(""))

	out, err := b.BuildRemediatePrompt(RemediateVars{
		SmartContract: "contract Bank {}",
		Category:      "Reentrancy",
		Fixes:         []string{"Use ReentrancyGuard", "Follow checks-effects-interactions"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "vulnerable to: Reentrancy")
	assert.Contains(t, out, "1. Use ReentrancyGuard\n2. Follow checks-effects-interactions\n")
}

func TestLoaderPrefersCustomDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classify.tmpl"), []byte("custom {{.SmartContract}}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.tmpl"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	l := NewLoader(dir)

	content, err := l.LoadTemplate(TemplateClassify)
	require.NoError(t, err)
	assert.Equal(t, "custom {{.SmartContract}}", content)

	// remediate.tmpl 不在自定义目录中，回退到内置模板
	content, err = l.LoadTemplate(TemplateRemediate)
	require.NoError(t, err)
	assert.Contains(t, content, "{{.Fixes}}")

	names, err := l.ListTemplates()
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "extra", "remediate"}, names)
}

func TestLoaderRejectsBadNames(t *testing.T) {
	l := NewLoader(t.TempDir())
	for _, name := range []string{"", "../secret", "a/b", `a\b`, "unknown"} {
		_, err := l.LoadTemplate(name)
		assert.Error(t, err, name)
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent"))

	_, err := l.LoadTemplate(TemplateClassify)
	require.NoError(t, err)

	names, err := l.ListTemplates()
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "remediate"}, names)
}
