package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/infra/persistence/sqlite"
	"lineagecore/pkg/domain"
)

// helper to unset and restore env vars
func withEnv(key, value string, fn func()) {
	orig, had := os.LookupEnv(key)
	if value == "" {
		_ = os.Unsetenv(key)
	} else {
		_ = os.Setenv(key, value)
	}
	defer func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	}()
	fn()
}

func TestOpenPersistentStore_DefaultSQLite(t *testing.T) {
	withEnv("LINEAGECORE_STORAGE_DRIVER", "", func() {
		withEnv("LINEAGECORE_SQLITE_PATH", filepath.Join(t.TempDir(), "lineagecore.db"), func() {
			engine := NewDefaultRulesEngine()
			store, err := OpenPersistentStore(engine)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			sqliteStore, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			// exercise the snapshot path with an empty transaction
			_, _ = sqliteStore.RunInTransaction(context.Background(), func(tx domain.Transaction) error { return nil })
		})
	})
}

func TestOpenPersistentStore_Memory(t *testing.T) {
	withEnv("LINEAGECORE_STORAGE_DRIVER", "memory", func() {
		engine := NewDefaultRulesEngine()
		store, err := OpenPersistentStore(engine)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected *memory.Store, got %T", store)
		}
	})
}

func TestOpenPersistentStore_CustomSQLitePath(t *testing.T) {
	withEnv("LINEAGECORE_STORAGE_DRIVER", "sqlite", func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.db")
		withEnv("LINEAGECORE_SQLITE_PATH", path, func() {
			engine := NewDefaultRulesEngine()
			store, err := OpenPersistentStore(engine)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			s, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			if s.Path() != path {
				t.Fatalf("expected path %s, got %s", path, s.Path())
			}
		})
	})
}

func TestOpenPersistentStore_PostgresRequiresDSN(t *testing.T) {
	withEnv("LINEAGECORE_STORAGE_DRIVER", "postgres", func() {
		withEnv("LINEAGECORE_POSTGRES_DSN", "", func() {
			engine := NewDefaultRulesEngine()
			_, err := OpenPersistentStore(engine)
			if err == nil {
				t.Fatal("expected error when DSN is unset")
			}
			if !strings.Contains(err.Error(), "LINEAGECORE_POSTGRES_DSN") {
				t.Fatalf("expected error to name the missing DSN variable, got %v", err)
			}
		})
	})
}

func TestOpenPersistentStore_UnknownDriver(t *testing.T) {
	withEnv("LINEAGECORE_STORAGE_DRIVER", "gibberish", func() {
		engine := NewDefaultRulesEngine()
		store, err := OpenPersistentStore(engine)
		if err == nil || store != nil {
			t.Fatalf("expected error for unknown driver, got store=%v err=%v", store, err)
		}
	})
}
