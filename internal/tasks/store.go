package tasks

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/codenerd/orchestrator-core/internal/atomicfile"
)

// document is the on-disk shape of the task store: a map plus four ordered
// tier arrays, persisted atomically via temp-file+rename (spec §4.2).
type document struct {
	Tasks map[string]*Task    `json:"tasks"`
	Tiers map[Tier][]string   `json:"tiers"`
}

func newDocument() *document {
	return &document{
		Tasks: map[string]*Task{},
		Tiers: map[Tier][]string{
			TierNow: {}, TierNext: {}, TierLater: {}, TierSomeday: {},
		},
	}
}

// loadDocument reads the store file; a missing file yields a fresh empty
// document (first run), while malformed JSON fails fast per spec §4.2.
func loadDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tasks: reading store: %w", err)
	}
	if len(data) == 0 {
		return newDocument(), nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newError(ErrKindCorruptStore, "%s: %v", path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = map[string]*Task{}
	}
	if doc.Tiers == nil {
		doc.Tiers = map[Tier][]string{}
	}
	for _, tier := range []Tier{TierNow, TierNext, TierLater, TierSomeday} {
		if doc.Tiers[tier] == nil {
			doc.Tiers[tier] = []string{}
		}
	}
	return &doc, nil
}

func saveDocument(path string, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("tasks: marshalling store: %w", err)
	}
	return atomicfile.WriteFile(path, data, 0o644)
}
