package core

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"lineagecore/internal/blob"
	"lineagecore/pkg/domain"
	"lineagecore/pkg/simi"
)

// Blob keys for archived import sources, relative to a project.
const (
	settingsObjectName = "settings.sbc"
	lineageObjectName  = "lineage.sbd"
)

// ImportProject parses raw .sbc settings and .sbd lineage bytes, archives
// both files when a blob store is attached, and commits the resulting
// project. Malformed lineage records degrade into diagnostics on the stored
// project rather than failing the import.
func (s *Service) ImportProject(ctx context.Context, name string, settings, lineage []byte) (domain.Project, domain.Result, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, domain.Result{}, fmt.Errorf("project name required")
	}
	parsed := simi.ParseProject(settings, lineage)
	project := ProjectFromParse(name, parsed)

	var archived []string
	if s.blobs != nil {
		project.ID = newProjectID()
		project.SettingsKey = archiveKey(project.ID, settingsObjectName)
		project.LineageKey = archiveKey(project.ID, lineageObjectName)
		sources := []struct {
			key     string
			payload []byte
		}{
			{key: project.SettingsKey, payload: settings},
			{key: project.LineageKey, payload: lineage},
		}
		for _, src := range sources {
			if _, err := s.blobs.Put(ctx, src.key, bytes.NewReader(src.payload), blob.PutOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
				s.discardArchived(ctx, archived)
				return domain.Project{}, domain.Result{}, fmt.Errorf("archive %s: %w", src.key, err)
			}
			archived = append(archived, src.key)
		}
	}

	var created domain.Project
	res, err := s.run(ctx, "import_project", func(tx domain.Transaction) (string, error) {
		var txErr error
		created, txErr = tx.CreateProject(project)
		return created.ID, txErr
	})
	if err != nil {
		s.discardArchived(ctx, archived)
		return domain.Project{}, res, err
	}
	s.logger.Info("project imported",
		"project_id", created.ID,
		"name", created.Name,
		"cells", len(created.Cells),
		"diagnostics", len(created.Diagnostics),
		"last_frame", created.LastFrame)
	return created, res, nil
}

// discardArchived removes blobs written for an import that did not commit.
func (s *Service) discardArchived(ctx context.Context, keys []string) {
	if s.blobs == nil {
		return
	}
	for _, key := range keys {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphaned archive cleanup failed", "key", key, "error", err)
		}
	}
}

func archiveKey(projectID, object string) string {
	return fmt.Sprintf("projects/%s/%s", projectID, object)
}

func newProjectID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ProjectFromParse maps a parsed Simi project onto the storage model. The
// returned project has no ID; persistence assigns one on commit.
func ProjectFromParse(name string, parsed *simi.Project) domain.Project {
	project := domain.Project{
		Name:      name,
		LastFrame: parsed.Document.LastFrame(),
	}
	for _, section := range parsed.Settings.Sections() {
		stored := domain.SettingsSection{Name: section}
		for _, key := range parsed.Settings.Keys(section) {
			value, _ := parsed.Settings.Lookup(section, key)
			stored.Options = append(stored.Options, domain.SettingsOption{Key: key, Value: value})
		}
		project.Settings = append(project.Settings, stored)
	}
	for _, cell := range parsed.Document.Cells() {
		stored := domain.Cell{
			Name:       cell.Name,
			ParentName: cell.ParentName,
			Comment:    cell.Comment,
			Color:      cell.Color,
			Children:   cell.Children(),
			Line:       cell.Line(),
		}
		for _, spot := range cell.Spots {
			stored.Spots = append(stored.Spots, domain.Spot{Frame: spot.Frame, X: spot.X, Y: spot.Y, Z: spot.Z})
		}
		project.Cells = append(project.Cells, stored)
	}
	for _, diag := range parsed.Document.Diagnostics() {
		project.Diagnostics = append(project.Diagnostics, domain.Diagnostic{
			Code:     string(diag.Code),
			Severity: string(diag.Severity),
			Line:     diag.Line,
			Cell:     diag.Cell,
			Message:  diag.Message,
		})
	}
	return project
}
