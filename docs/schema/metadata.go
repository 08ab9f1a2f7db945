// Package schema exposes embedded lineage model metadata (version, status)
// for runtime use.
package schema

import (
	_ "embed"
	"encoding/json"
	"sync"
)

// Metadata captures the high-level metadata block from the canonical
// lineage-model JSON.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

type modelDoc struct {
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
}

// Canonical lineage-model JSON content embedded for accessing schema metadata.
//
//go:embed lineage-model.json
var lineageModelSchema []byte

var (
	docOnce sync.Once
	docVal  modelDoc
	docErr  error
)

func loadModelDoc() (modelDoc, error) {
	docOnce.Do(func() {
		docErr = json.Unmarshal(lineageModelSchema, &docVal)
	})
	return docVal, docErr
}

// LineageModelVersion returns the canonical schema version declared in
// docs/schema/lineage-model.json.
func LineageModelVersion() (string, error) {
	doc, err := loadModelDoc()
	return doc.Version, err
}

// LineageModelMetadata returns the schema metadata (status, source) declared
// in the canonical lineage-model JSON.
func LineageModelMetadata() (Metadata, error) {
	doc, err := loadModelDoc()
	return doc.Metadata, err
}
