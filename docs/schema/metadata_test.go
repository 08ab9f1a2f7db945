package schema

import (
	"encoding/json"
	"testing"
)

func TestLineageModelVersion(t *testing.T) {
	got, err := LineageModelVersion()
	if err != nil {
		t.Fatalf("LineageModelVersion: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty lineage model version")
	}

	var doc modelDoc
	if err := json.Unmarshal(lineageModelSchema, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if got != doc.Version {
		t.Fatalf("version mismatch: got %q want %q", got, doc.Version)
	}
}

func TestLineageModelMetadata(t *testing.T) {
	got, err := LineageModelMetadata()
	if err != nil {
		t.Fatalf("LineageModelMetadata: %v", err)
	}
	if got.Status == "" || got.Source == "" {
		t.Fatalf("expected status and source, got %+v", got)
	}

	var doc modelDoc
	if err := json.Unmarshal(lineageModelSchema, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if got.Status != doc.Metadata.Status || got.Source != doc.Metadata.Source {
		t.Fatalf("metadata mismatch: got %+v want %+v", got, doc.Metadata)
	}
}
