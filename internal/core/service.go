package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lineagecore/internal/blob"
	"lineagecore/pkg/domain"
)

// Service exposes transactional operations over stored lineage projects.
// Every mutation runs through the store's rules engine; reads are served
// from committed snapshots.
type Service struct {
	store   domain.PersistentStore
	engine  *domain.RulesEngine
	blobs   blob.Store
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditLogger
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.now = selectNowFunc(store, s.clock)
	if s.clock == nil {
		s.clock = ClockFunc(nil)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine gets the default rule set.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(NewMemoryStore(engine), opts...)
}

// WithBlobStore attaches a blob store used to archive imported source files.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) {
		s.blobs = store
	}
}

// ErrNotFound reports a lookup against a missing entity.
type ErrNotFound struct {
	Entity domain.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// CreateProject stores a new project after rule evaluation.
func (s *Service) CreateProject(ctx context.Context, project domain.Project) (domain.Project, domain.Result, error) {
	var created domain.Project
	res, err := s.run(ctx, "create_project", func(tx domain.Transaction) (string, error) {
		var txErr error
		created, txErr = tx.CreateProject(project)
		return created.ID, txErr
	})
	if err != nil {
		return domain.Project{}, res, err
	}
	return created, res, nil
}

// UpdateProject applies mutate to the stored project under a transaction.
func (s *Service) UpdateProject(ctx context.Context, id string, mutate func(*domain.Project) error) (domain.Project, domain.Result, error) {
	var updated domain.Project
	res, err := s.run(ctx, "update_project", func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindProject(id); !ok {
			return id, ErrNotFound{Entity: domain.EntityProject, ID: id}
		}
		var txErr error
		updated, txErr = tx.UpdateProject(id, func(p *domain.Project) error {
			if mutate == nil {
				return nil
			}
			return mutate(p)
		})
		return id, txErr
	})
	if err != nil {
		return domain.Project{}, res, err
	}
	return updated, res, nil
}

// DeleteProject removes a project and cleans up its archived source files.
// Blob cleanup is best effort; failures are logged and do not undo the
// committed delete.
func (s *Service) DeleteProject(ctx context.Context, id string) (domain.Result, error) {
	project, existed := s.store.GetProject(id)
	res, err := s.run(ctx, "delete_project", func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindProject(id); !ok {
			return id, ErrNotFound{Entity: domain.EntityProject, ID: id}
		}
		return id, tx.DeleteProject(id)
	})
	if err != nil {
		return res, err
	}
	if existed {
		s.removeArchivedSources(ctx, project)
	}
	return res, nil
}

func (s *Service) removeArchivedSources(ctx context.Context, project domain.Project) {
	if s.blobs == nil {
		return
	}
	for _, key := range []string{project.SettingsKey, project.LineageKey} {
		if key == "" {
			continue
		}
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("archived source cleanup failed", "project_id", project.ID, "key", key, "error", err)
		}
	}
}

// GetProject returns the committed project with the given ID.
func (s *Service) GetProject(id string) (domain.Project, bool) {
	return s.store.GetProject(id)
}

// ListProjects returns all committed projects in import order.
func (s *Service) ListProjects() []domain.Project {
	projects := s.store.ListProjects()
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects
}

// GetCell returns one cell of a committed project by name.
func (s *Service) GetCell(projectID, name string) (domain.Cell, bool) {
	project, ok := s.store.GetProject(projectID)
	if !ok {
		return domain.Cell{}, false
	}
	return project.FindCell(name)
}

// ListCells returns every cell of a committed project in file order.
func (s *Service) ListCells(projectID string) ([]domain.Cell, error) {
	project, ok := s.store.GetProject(projectID)
	if !ok {
		return nil, ErrNotFound{Entity: domain.EntityProject, ID: projectID}
	}
	return project.Cells, nil
}

// Store exposes the underlying persistent store.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// RulesEngine exposes the engine guarding this service's mutations. Nil when
// the backing store does not provide one.
func (s *Service) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// Blobs exposes the attached blob store, nil when archiving is disabled.
func (s *Service) Blobs() blob.Store {
	return s.blobs
}
