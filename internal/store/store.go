package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mohammad-safakhou/pharmaverse/internal/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store is the Postgres report registry.
type Store struct {
	DB *sql.DB
}

var (
	metricsOnce    sync.Once
	savedCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	savedCounter, metricsInitErr = meter.Int64Counter("reports_saved_total")
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

const saveReportSQL = `
INSERT INTO reports (report_id, session_id, topic, molecule, indication, geography, tags, summary, status, content_type, download_path, error, artifact, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (report_id) DO UPDATE SET
  topic = EXCLUDED.topic,
  molecule = EXCLUDED.molecule,
  indication = EXCLUDED.indication,
  geography = EXCLUDED.geography,
  tags = EXCLUDED.tags,
  summary = EXCLUDED.summary,
  status = EXCLUDED.status,
  content_type = EXCLUDED.content_type,
  download_path = EXCLUDED.download_path,
  error = EXCLUDED.error,
  artifact = EXCLUDED.artifact,
  updated_at = EXCLUDED.updated_at;
`

// Save upserts rec. created_at of an existing row is kept.
func (s *Store) Save(ctx context.Context, rec *report.Record) error {
	if rec == nil || rec.ReportID == "" {
		return errors.New("report id required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.DB.ExecContext(ctx, saveReportSQL,
		rec.ReportID, rec.SessionID, rec.Topic, rec.Molecule, rec.Indication, rec.Geography,
		pq.Array(tags), rec.Summary, rec.Status, rec.ContentType, rec.DownloadPath, rec.Error,
		rec.Artifact, created, updated,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rec.ReportID, err)
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr != nil {
		log.Printf("store metrics init failed: %v", metricsInitErr)
	} else {
		savedCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", rec.Status)))
	}
	return nil
}

const getReportSQL = `
SELECT report_id, session_id, topic, molecule, indication, geography, tags, summary, status, content_type, download_path, error, artifact, created_at, updated_at
FROM reports WHERE report_id = $1
`

func (s *Store) Get(ctx context.Context, reportID string) (*report.Record, error) {
	var rec report.Record
	var tags pq.StringArray
	err := s.DB.QueryRowContext(ctx, getReportSQL, reportID).Scan(
		&rec.ReportID, &rec.SessionID, &rec.Topic, &rec.Molecule, &rec.Indication, &rec.Geography,
		&tags, &rec.Summary, &rec.Status, &rec.ContentType, &rec.DownloadPath, &rec.Error,
		&rec.Artifact, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	rec.Tags = []string(tags)
	return &rec, nil
}

const listReportsSQL = `
SELECT report_id, session_id, topic, molecule, indication, geography, tags, summary, status, content_type, download_path, error, created_at, updated_at
FROM reports ORDER BY created_at DESC, report_id DESC
`

// List returns every report newest first, without artifacts.
func (s *Store) List(ctx context.Context) ([]*report.Record, error) {
	rows, err := s.DB.QueryContext(ctx, listReportsSQL)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var out []*report.Record
	for rows.Next() {
		var rec report.Record
		var tags pq.StringArray
		if err := rows.Scan(
			&rec.ReportID, &rec.SessionID, &rec.Topic, &rec.Molecule, &rec.Indication, &rec.Geography,
			&tags, &rec.Summary, &rec.Status, &rec.ContentType, &rec.DownloadPath, &rec.Error,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.Tags = []string(tags)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

var _ report.Registry = (*Store)(nil)
