// Package simi parses the two companion text formats written by the Simi
// BioCell cell-lineage tracker: sectioned key/value settings files (.sbc) and
// block-structured lineage files (.sbd). The lineage parser feeds an
// in-memory tree of cells with per-frame position samples ("spots") that can
// be queried and traversed but never mutated; reflecting file changes
// requires a fresh parse.
//
// Parsing is tolerant. Malformed spot lines, parent references that never
// resolve, and duplicate cell declarations are recovered with a documented
// policy and reported through Document.Diagnostics instead of aborting the
// document. Only file I/O fails hard.
package simi

import (
	"fmt"
	"os"
)

// Project pairs the two halves of a Simi BioCell session: the acquisition
// settings and the tracked lineage. The settings do not feed the lineage
// pipeline; they are carried for callers that need calibration or session
// metadata next to the tree.
type Project struct {
	Settings *Settings
	Document *Document
}

// ParseProject parses raw settings and lineage file content into a Project.
func ParseProject(settings, lineage []byte) *Project {
	return &Project{
		Settings: ParseSettings(settings),
		Document: ParseDocument(lineage),
	}
}

// LoadProject reads and parses a settings/lineage file pair from disk.
// Unreadable files are the only fatal condition in this package.
func LoadProject(settingsPath, lineagePath string) (*Project, error) {
	settings, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	lineage, err := os.ReadFile(lineagePath)
	if err != nil {
		return nil, fmt.Errorf("read lineage file: %w", err)
	}
	return ParseProject(settings, lineage), nil
}
