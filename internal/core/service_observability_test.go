package core

import (
	"bytes"
	"context"
	"expvar"
	"strings"
	"testing"
	"time"

	"lineagecore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op {
			if success && record.err == nil {
				return true
			}
			if !success && record.err != nil {
				return true
			}
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservabilityCoversOperations(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}

	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)

	settings := []byte("[DISC]\nCALIBRATION=0.5\n")
	lineage := []byte("CELL=AB\n0 1 2 3\n")

	imported, _, err := svc.ImportProject(ctx, "observed", settings, lineage)
	if err != nil {
		t.Fatalf("import project: %v", err)
	}
	if !audit.has("import_project", AuditStatusSuccess, func(entry AuditEntry) bool { return entry.EntityID == imported.ID }) {
		t.Fatalf("expected audit entry for import_project success")
	}

	created, _, err := svc.CreateProject(ctx, domain.Project{Name: "manual"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if !audit.has("create_project", AuditStatusSuccess, func(entry AuditEntry) bool { return entry.EntityID == created.ID }) {
		t.Fatalf("expected audit entry for create_project success")
	}

	if _, _, err := svc.UpdateProject(ctx, created.ID, func(p *domain.Project) error {
		p.Name = "manual-updated"
		return nil
	}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	if !audit.has("update_project", AuditStatusSuccess, nil) {
		t.Fatalf("expected audit entry for update_project success")
	}

	if _, err := svc.DeleteProject(ctx, "missing-project"); err == nil {
		t.Fatalf("expected delete_project error for missing id")
	}
	if !audit.has("delete_project", AuditStatusError, nil) {
		t.Fatalf("expected audit error entry for delete_project")
	}
	if !metrics.has("delete_project", false) {
		t.Fatalf("expected metrics entry for failed delete_project")
	}
	if !tracer.has("delete_project", false) {
		t.Fatalf("expected trace span for failed delete_project")
	}

	if _, err := svc.DeleteProject(ctx, created.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := svc.DeleteProject(ctx, imported.ID); err != nil {
		t.Fatalf("delete imported project: %v", err)
	}

	successOps := []string{
		"import_project",
		"create_project",
		"update_project",
		"delete_project",
	}

	for _, op := range successOps {
		if !metrics.has(op, true) {
			t.Fatalf("expected metrics success entry for %s", op)
		}
		if !tracer.has(op, true) {
			t.Fatalf("expected finished span for %s", op)
		}
		if !audit.has(op, AuditStatusSuccess, nil) {
			t.Fatalf("expected audit success entry for %s", op)
		}
	}
}

const entryStatusSuccess = "success"
const entryStatusError = "error"

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), "test_op", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "test_op", false, 5*time.Millisecond)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS["test_op"] <= 0 {
		t.Fatalf("expected positive duration, snapshot=%+v", snapshot)
	}
	if snapshot.Results["test_op"][entryStatusSuccess] != 1 || snapshot.Results["test_op"][entryStatusError] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}

	if v := expvar.Get(recorder.Name()); v == nil {
		t.Fatalf("expected expvar export to be registered")
	} else if !strings.Contains(v.String(), "test_op") {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestJSONTraceTracerExports(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "trace_op")
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected single span entry, got %d", len(entries))
	}
	if entries[0].Operation != "trace_op" || entries[0].Status != entryStatusSuccess {
		t.Fatalf("unexpected span entry: %+v", entries[0])
	}
	if !strings.Contains(buf.String(), "\"operation\":\"trace_op\"") {
		t.Fatalf("expected JSON output to contain operation: %q", buf.String())
	}
}

func TestJSONAuditRecorderExports(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewJSONAuditRecorder(&buf)
	recorder.Record(context.Background(), AuditEntry{
		Operation: "import_project",
		Entity:    domain.EntityProject,
		Action:    domain.ActionCreate,
		EntityID:  "p-1",
		Status:    AuditStatusSuccess,
	})

	entries := recorder.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected single audit entry, got %d", len(entries))
	}
	if entries[0].Operation != "import_project" || entries[0].EntityID != "p-1" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
	if !strings.Contains(buf.String(), "\"operation\":\"import_project\"") {
		t.Fatalf("expected JSON output to contain operation: %q", buf.String())
	}
}
