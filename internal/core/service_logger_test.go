package core_test

import (
	"context"
	"testing"

	"lineagecore/internal/core"
	"lineagecore/pkg/domain"
)

type countingLogger struct {
	debugs int
	infos  int
	errors int
}

func (l *countingLogger) Debug(string, ...any) { l.debugs++ }
func (l *countingLogger) Info(string, ...any)  { l.infos++ }
func (l *countingLogger) Warn(string, ...any)  {}
func (l *countingLogger) Error(string, ...any) { l.errors++ }

// TestServiceLoggerDebugAndError covers debug (success) and error (failure) logging paths.
func TestServiceLoggerDebugAndError(t *testing.T) {
	logger := &countingLogger{}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithLogger(logger))
	ctx := context.Background()

	if _, _, err := svc.ImportProject(ctx, "logged", sampleSettings(), sampleLineage()); err != nil {
		t.Fatalf("import project: %v", err)
	}
	if logger.debugs == 0 {
		t.Fatalf("expected debug log on success")
	}
	if logger.infos == 0 {
		t.Fatalf("expected info log after import")
	}

	if _, _, err := svc.UpdateProject(ctx, "missing", func(*domain.Project) error { return nil }); err == nil {
		t.Fatalf("expected error updating missing project")
	}
	if logger.errors == 0 {
		t.Fatalf("expected error log on failure path")
	}
}
