// Package domain defines the persistent lineage entities and the rule and
// persistence contracts shared by the service and storage layers. The types
// here are the stored form of parsed Simi BioCell data; parsing itself lives
// in pkg/simi and this package stays independent of it.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies an imported project record.
	EntityProject EntityType = "project"
	// EntityCell identifies a lineage cell within a project.
	EntityCell EntityType = "cell"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is one imported Simi BioCell session: the settings and lineage
// content of an .sbc/.sbd file pair in stored form plus bookkeeping
// metadata. SettingsKey and LineageKey reference the archived raw files in
// blob storage when the importer kept them.
type Project struct {
	Base
	Name        string            `json:"name"`
	SettingsKey string            `json:"settings_key,omitempty"`
	LineageKey  string            `json:"lineage_key,omitempty"`
	Settings    []SettingsSection `json:"settings,omitempty"`
	Cells       []Cell            `json:"cells,omitempty"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	LastFrame   int               `json:"last_frame"`
}

// FindCell returns the named cell of the project.
func (p Project) FindCell(name string) (Cell, bool) {
	for _, cell := range p.Cells {
		if cell.Name == name {
			return cell, true
		}
	}
	return Cell{}, false
}

// Roots returns the project's cells without a resolved parent, in stored
// order.
func (p Project) Roots() []Cell {
	linked := make(map[string]struct{})
	for _, cell := range p.Cells {
		for _, child := range cell.Children {
			linked[child] = struct{}{}
		}
	}
	var roots []Cell
	for _, cell := range p.Cells {
		if _, ok := linked[cell.Name]; !ok {
			roots = append(roots, cell)
		}
	}
	return roots
}

// SettingsSection is one section of a settings file with its options in
// first-appearance order.
type SettingsSection struct {
	Name    string           `json:"name"`
	Options []SettingsOption `json:"options,omitempty"`
}

// SettingsOption is one key/value pair of a settings section. Values stay
// raw strings exactly as parsed.
type SettingsOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Cell is the stored form of one lineage node. ParentName and Children are
// name references into the owning project's cell list, never indices or
// pointers.
type Cell struct {
	Name       string   `json:"name"`
	ParentName string   `json:"parent_name,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	Color      string   `json:"color,omitempty"`
	Spots      []Spot   `json:"spots,omitempty"`
	Children   []string `json:"children,omitempty"`
	Line       int      `json:"line,omitempty"`
}

// Valid reports whether the cell carries at least one spot.
func (c Cell) Valid() bool {
	return len(c.Spots) > 0
}

// Spot is one stored position sample of a cell.
type Spot struct {
	Frame int     `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Diagnostic is the stored form of a condition the parser recovered from.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
	Cell     string `json:"cell,omitempty"`
	Message  string `json:"message"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
