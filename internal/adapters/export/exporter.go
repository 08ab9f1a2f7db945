// Package export materializes stored lineage projects into downstream
// formats asynchronously: MaMuT/TrackMate XML, a flat CSV cell matrix, and a
// JSON document dump. Artifacts are persisted through the blob store.
package export

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"lineagecore/internal/blob"
	"lineagecore/pkg/domain"
)

// Format identifies an export output format.
type Format string

const (
	// FormatMaMuT renders TrackMate/MaMuT XML with interpolated spots.
	FormatMaMuT Format = "mamut"
	// FormatMatrix renders a flat CSV with one row per valid cell.
	FormatMatrix Format = "matrix"
	// FormatJSON dumps the stored project document.
	FormatJSON Format = "json"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored export output.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input represents an enqueue request for the worker.
type Input struct {
	ProjectID   string
	Formats     []Format
	RequestedBy string
	Reason      string
}

// ProjectSource resolves stored projects for export.
type ProjectSource interface {
	GetProject(id string) (domain.Project, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	ProjectID  string    `json:"project_id"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const auditAction = "lineage_export"

// Worker executes project exports asynchronously on a single goroutine with
// a bounded queue.
type Worker struct {
	source ProjectSource
	store  blob.Store
	audit  AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id string
}

type rendered struct {
	Format      Format
	Name        string
	ContentType string
	Payload     []byte
}

// NewWorker constructs an export worker. The blob store and audit logger are
// optional; without a store artifacts stay in the record metadata only.
func NewWorker(source ProjectSource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("project source not configured")
	}
	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return Record{}, fmt.Errorf("project id required")
	}
	project, ok := w.source.GetProject(projectID)
	if !ok {
		return Record{}, fmt.Errorf("project %s not found", projectID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatMatrix}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if _, supported := artifactNames[format]; !supported {
			return Record{}, fmt.Errorf("format %s not supported", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         newID(),
			Action:     auditAction,
			Actor:      input.RequestedBy,
			ProjectID:  project.ID,
			Status:     StatusQueued,
			Reason:     input.Reason,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- exportTask{id: id}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Record{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (Record, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return Record{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}

	project, ok := w.source.GetProject(record.ProjectID)
	if !ok {
		// the project can be deleted between enqueue and processing
		w.fail(task.id, fmt.Sprintf("project %s missing", record.ProjectID))
		return
	}

	w.updateStatus(task.id, StatusRunning, "")

	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		out, err := materialize(format, project)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifact := Artifact{
			Key:         artifactKey(task.id, out.Name),
			Format:      out.Format,
			ContentType: out.ContentType,
			SizeBytes:   int64(len(out.Payload)),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(out.Payload), blob.PutOptions{
				ContentType: out.ContentType,
				Metadata:    map[string]string{"project_id": record.ProjectID, "format": string(out.Format)},
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifact.SizeBytes = info.Size
			if info.ContentType != "" {
				artifact.ContentType = info.ContentType
			}
			if !info.LastModified.IsZero() {
				artifact.CreatedAt = info.LastModified
			}
			if url, err := w.store.PresignURL(w.ctx, artifact.Key, blob.SignedURLOptions{Method: "GET"}); err == nil {
				artifact.URL = url
			}
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(id, status, message, now)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(id, StatusSucceeded, "", now)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(id, StatusFailed, reason, now)
}

func (w *Worker) recordAudit(id string, status Status, note string, at time.Time) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor, projectID := "", ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		projectID = record.ProjectID
	}
	w.mu.RUnlock()
	w.audit.Record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     auditAction,
		Actor:      actor,
		ProjectID:  projectID,
		Status:     status,
		Note:       note,
		OccurredAt: at,
	})
}

// artifactNames maps each supported format to its object name and MIME type.
var artifactNames = map[Format]struct {
	name        string
	contentType string
}{
	FormatMaMuT:  {name: "mamut.xml", contentType: "application/xml"},
	FormatMatrix: {name: "matrix.csv", contentType: "text/csv"},
	FormatJSON:   {name: "document.json", contentType: "application/json"},
}

func artifactKey(recordID, name string) string {
	return fmt.Sprintf("exports/%s/%s", recordID, name)
}

func materialize(format Format, project domain.Project) (rendered, error) {
	meta, ok := artifactNames[format]
	if !ok {
		return rendered{}, fmt.Errorf("unsupported export format %s", format)
	}
	var payload []byte
	var err error
	switch format {
	case FormatJSON:
		payload, err = json.Marshal(project)
		if err != nil {
			err = fmt.Errorf("marshal json: %w", err)
		}
	case FormatMatrix:
		payload, err = BuildMatrix(project)
	case FormatMaMuT:
		calibration, ok := CalibrationFactor(project)
		if !ok {
			calibration = 1
		}
		payload, err = BuildMaMuT(project, calibration)
	}
	if err != nil {
		return rendered{}, err
	}
	return rendered{Format: format, Name: meta.name, ContentType: meta.contentType, Payload: payload}, nil
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
