package core

import (
	"context"
	"fmt"

	"lineagecore/pkg/domain"
)

// LineageIntegrityRule enforces that cell trees stay resolvable: unique cell
// names and child links that exist, point back, and never loop. A parent
// name that resolves to no cell is not a violation; the importer stores
// those cells as roots with a diagnostic, and direct writes get the same
// latitude.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, project := range view.ListProjects() {
		counts := make(map[string]int, len(project.Cells))
		for _, cell := range project.Cells {
			if cell.Valid() {
				counts[cell.Name]++
			}
		}
		for name, count := range counts {
			if count > 1 {
				res.Violations = append(res.Violations, lineageViolation(name, fmt.Sprintf("project %s defines cell %s %d times", project.ID, name, count)))
			}
		}
	}

	for _, change := range changes {
		if change.Entity != domain.EntityProject || change.After == nil {
			continue
		}
		project, ok := change.After.(domain.Project)
		if !ok {
			continue
		}
		evaluateProjectTree(&res, project)
	}

	return res, nil
}

func lineageViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityCell,
		EntityID: entityID,
	}
}

// evaluateProjectTree checks the child links of an incoming project write.
// Every listed child must exist, claim the listing cell as its parent, and
// appear under at most one parent; the resulting link graph must be acyclic.
func evaluateProjectTree(res *domain.Result, project domain.Project) {
	index := make(map[string]domain.Cell, len(project.Cells))
	for _, cell := range project.Cells {
		if cell.Valid() {
			index[cell.Name] = cell
		}
	}
	claimed := make(map[string]string)

	checkChild := func(parentName, childName string) {
		if childName == "" {
			return
		}
		child, ok := index[childName]
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lineage_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project %s cell %s lists missing child %s", project.ID, parentName, childName),
				Entity:   domain.EntityProject,
				EntityID: project.ID,
			})
			return
		}
		if prev, exists := claimed[childName]; exists {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lineage_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project %s cell %s is claimed as a child by both %s and %s", project.ID, childName, prev, parentName),
				Entity:   domain.EntityProject,
				EntityID: project.ID,
			})
			return
		}
		claimed[childName] = parentName
		if child.ParentName != parentName {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lineage_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project %s cell %s lists child %s whose parent is %q", project.ID, parentName, childName, child.ParentName),
				Entity:   domain.EntityProject,
				EntityID: project.ID,
			})
		}
	}

	for _, cell := range project.Cells {
		if !cell.Valid() {
			continue
		}
		for _, childName := range cell.Children {
			checkChild(cell.Name, childName)
		}
	}

	// claimed maps child to parent, so following it repeatedly walks up the
	// tree; arriving back at the start means the links loop.
	for name := range index {
		steps := 0
		for cur := claimed[name]; cur != ""; cur = claimed[cur] {
			if cur == name {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lineage_integrity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("project %s cell %s is its own ancestor", project.ID, name),
					Entity:   domain.EntityProject,
					EntityID: project.ID,
				})
				break
			}
			steps++
			if steps > len(index) {
				break
			}
		}
	}
}
