package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
)

func TestPromptRegistry_GetActivePrefersPinnedVersion(t *testing.T) {
	r := NewPromptRegistry()
	r.Register(domain.PromptTemplate{Name: "extract", Version: "v1", System: "old"})
	r.Register(domain.PromptTemplate{Name: "extract", Version: "v2", System: "new"})

	tpl, err := r.GetActive("extract", "v1")
	require.NoError(t, err)
	assert.Equal(t, "old", tpl.System)

	tpl, err = r.GetActive("extract", "")
	require.NoError(t, err)
	assert.Equal(t, "new", tpl.System)
}

func TestPromptRegistry_GetUnknownReturnsPromptNotFoundError(t *testing.T) {
	r := NewPromptRegistry()
	_, err := r.Get("missing", "v1")
	require.Error(t, err)
	var notFound *PromptNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPromptRegistry_LoadDirectoryRegistersEveryYAMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `
name: summarize
versions:
  - version: v1
    system: "You summarize graphs."
    human: "Summarize: {{query}}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summarize.yaml"), []byte(content), 0644))

	r := NewPromptRegistry()
	require.NoError(t, r.LoadDirectory(dir))

	tpl, err := r.GetLatest("summarize")
	require.NoError(t, err)
	assert.Equal(t, "v1", tpl.Version)
	assert.Contains(t, tpl.System, "summarize graphs")
}
