package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/internal/report"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pharmaverse",
			"POSTGRES_PASSWORD": "pharmaverse",
			"POSTGRES_DB":       "pharmaverse",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://pharmaverse:pharmaverse@%s:%s/pharmaverse?sslmode=disable", host, port.Port())
	st, err := NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_reports.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := st.DB.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return st
}

func TestPostgresRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t, ctx)

	created := time.Now().UTC().Truncate(time.Millisecond)
	rec := &report.Record{
		ReportID:  "RPT_int_1",
		SessionID: "sess-int",
		Topic:     "Metformin in IPF",
		Tags:      []string{"IPF"},
		Status:    report.StatusPlaceholder,
		Error:     "chrome not found",
		CreatedAt: created,
	}
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("save placeholder: %v", err)
	}

	rec.Status = report.StatusReady
	rec.Error = ""
	rec.Artifact = []byte("%PDF-1.4")
	rec.CreatedAt = created.Add(time.Hour)
	rec.UpdatedAt = created.Add(time.Hour)
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("save ready: %v", err)
	}

	got, err := st.Get(ctx, "RPT_int_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasArtifact() || !got.CreatedAt.Equal(created) {
		t.Fatalf("expected upsert keeping created_at, got %+v", got)
	}
	list, err := st.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listed report, got %d / %v", len(list), err)
	}
}
