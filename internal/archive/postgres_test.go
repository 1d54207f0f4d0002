package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStoreIntegration runs the archive against a real Postgres container.
// It requires Docker to be running.
func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("facetrack_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	kv, err := Open(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer kv.Close()
	if _, ok := kv.(*PostgresStore); !ok {
		t.Fatalf("Expected a PostgresStore for %q, got %T", connStr, kv)
	}

	exerciseKV(t, kv)

	// Archive semantics on top of the real backend.
	if err := kv.Set(ctx, CollectionKey, []byte("[]")); err != nil {
		t.Fatal(err)
	}
	a := New(kv)
	payload := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x9f}
	id, err := a.Save(ctx, payload, "x", 5.0)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	videos := a.List(ctx)
	if len(videos) != 1 || videos[0].ID != id || videos[0].Duration != 5.0 {
		t.Fatalf("Unexpected listing %+v", videos)
	}
	got, err := videos[0].Decode()
	if err != nil || string(got) != string(payload) {
		t.Errorf("Payload mismatch: %x, %v", got, err)
	}

	// Schema init must be idempotent.
	again, err := NewPostgresStore(ctx, connStr)
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	again.Close()
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
