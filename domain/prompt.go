package domain

import (
	"fmt"
	"strings"
)

// PromptTemplate is a versioned LLM prompt resolved by the Extraction stage
// and by query-time retrieval prompts through the PromptRegistry.
type PromptTemplate struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	Human   string `yaml:"human"`
}

// Key is the registry lookup key: "name:version".
func (t PromptTemplate) Key() string {
	return fmt.Sprintf("%s:%s", t.Name, t.Version)
}

// FormatHuman substitutes "{field}" placeholders in the human template with
// the supplied values.
func (t PromptTemplate) FormatHuman(fields map[string]string) string {
	out := t.Human
	for k, v := range fields {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// GraphMigration is one canonical, ordered graph-store migration statement
// tracked by the GraphSchemaVersionTracker (distinct from the relational
// migrations golang-migrate owns).
type GraphMigration struct {
	Version   int
	Name      string
	Statement string
	Checksum  string
}

// CompletionRecord marks a content hash as already committed, letting the
// GraphWrite stage skip re-committing unchanged content across restarts.
type CompletionRecord struct {
	ContentHash string
	CommittedAt int64 // unix seconds
}
