package core

import (
	"context"
	"fmt"

	"lineagecore/pkg/domain"
)

// FrameContinuityRule flags suspicious spot timelines on incoming project
// writes. Violations are warnings: the data is stored, but downstream
// exports may misbehave.
func FrameContinuityRule() domain.Rule {
	return frameContinuityRule{}
}

type frameContinuityRule struct{}

func (frameContinuityRule) Name() string { return "frame_continuity" }

func (frameContinuityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProject || change.After == nil {
			continue
		}
		project, ok := change.After.(domain.Project)
		if !ok {
			continue
		}
		evaluateProjectFrames(&res, project)
	}
	return res, nil
}

func frameViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "frame_continuity",
		Severity: domain.SeverityWarn,
		Message:  message,
		Entity:   domain.EntityCell,
		EntityID: entityID,
	}
}

func evaluateProjectFrames(res *domain.Result, project domain.Project) {
	births := make(map[string]int, len(project.Cells))
	for _, cell := range project.Cells {
		if cell.Valid() && len(cell.Spots) > 0 {
			births[cell.Name] = cell.Spots[0].Frame
		}
	}

	for _, cell := range project.Cells {
		if !cell.Valid() {
			continue
		}
		prev := -1
		for _, spot := range cell.Spots {
			if spot.Frame < 0 {
				res.Violations = append(res.Violations, frameViolation(cell.Name, fmt.Sprintf("cell %s has a spot at negative frame %d", cell.Name, spot.Frame)))
			}
			if prev >= 0 && spot.Frame < prev {
				res.Violations = append(res.Violations, frameViolation(cell.Name, fmt.Sprintf("cell %s spot frames regress from %d to %d", cell.Name, prev, spot.Frame)))
			}
			prev = spot.Frame
		}
		if cell.ParentName == "" || len(cell.Spots) == 0 {
			continue
		}
		parentBirth, ok := births[cell.ParentName]
		if ok && cell.Spots[0].Frame < parentBirth {
			res.Violations = append(res.Violations, frameViolation(cell.Name, fmt.Sprintf("cell %s starts at frame %d before parent %s at frame %d", cell.Name, cell.Spots[0].Frame, cell.ParentName, parentBirth)))
		}
	}
}
