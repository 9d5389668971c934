package chain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `
provider: fast
chains:
  - name: summary
    steps:
      - id: facts
        template: "facts about go"
      - id: short
        template: "shorten {{facts}}"
        mode: completion
        max_tokens: 32
  - name: review
    provider: smart
    steps:
      - id: verdict
        template: "review this"
`

func TestLoadAndRunAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Chains, 2)
	assert.Equal(t, "fast", f.Provider)
	require.NotNil(t, f.Chains[0].Steps[1].MaxTokens)
	assert.Equal(t, 32, *f.Chains[0].Steps[1].MaxTokens)
	assert.Equal(t, ModeCompletion, f.Chains[0].Steps[1].Mode)

	fast := &echoProvider{name: "fast", prefix: "f:"}
	smart := &echoProvider{name: "smart", prefix: "s:"}
	chains, err := f.Build(lookup{"fast": fast, "smart": smart})
	require.NoError(t, err)
	require.Len(t, chains, 2)

	results, err := RunAll(context.Background(), chains)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"summary": {"facts": "f:facts about go", "short": "SHORTEN F:FACTS ABOUT GO"},
		"review":  {"verdict": "s:review this"},
	}, results)
}

func TestRunAllReturnsFirstError(t *testing.T) {
	ok := &echoProvider{name: "ok"}
	broken := &echoProvider{name: "broken", err: llmErrors.Auth("missing key")}
	l := lookup{"ok": ok, "broken": broken}

	chains := []*Chain{
		NewMulti("a", l, "ok").Step(Step{ID: "x", Template: "x"}),
		NewMulti("b", l, "broken").Step(Step{ID: "y", Template: "y"}),
	}
	_, err := RunAll(context.Background(), chains)
	assert.ErrorIs(t, err, llmErrors.ErrAuth)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("chains: [unclosed"))
	assert.ErrorIs(t, err, llmErrors.ErrDecode)

	_, err = Parse([]byte("provider: x\n"))
	assert.ErrorIs(t, err, llmErrors.ErrInvalidInput)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, llmErrors.ErrInvalidInput)
}

func TestBuildRejectsInvalidChains(t *testing.T) {
	f, err := Parse([]byte(`
chains:
  - name: dup
    steps: [{id: a, template: x}]
  - name: dup
    steps: [{id: a, template: x}]
`))
	require.NoError(t, err)
	_, err = f.Build(lookup{})
	assert.ErrorIs(t, err, llmErrors.ErrInvalidInput)

	f, err = Parse([]byte(`
chains:
  - steps: [{id: a, template: "{{b}}"}, {id: b, template: x}]
`))
	require.NoError(t, err)
	_, err = f.Build(lookup{})
	assert.ErrorIs(t, err, llmErrors.ErrInvalidInput)
}

func TestBuildNamesUnnamedChains(t *testing.T) {
	f, err := Parse([]byte(`
chains:
  - steps: [{id: a, template: x}]
`))
	require.NoError(t, err)
	chains, err := f.Build(lookup{})
	require.NoError(t, err)
	assert.Equal(t, "chain-1", chains[0].Name())
}
