package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/pharmaverse/internal/report"
)

var reportColumns = []string{"report_id", "session_id", "topic", "molecule", "indication", "geography", "tags", "summary", "status", "content_type", "download_path", "error", "artifact", "created_at", "updated_at"}

func TestSaveReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	rec := &report.Record{
		ReportID:     "RPT_20250304_050607_abcd1234",
		SessionID:    "abcd1234-0000",
		Topic:        "Metformin in IPF: Innovation Opportunity Assessment",
		Molecule:     "Metformin",
		Indication:   "IPF",
		Geography:    "Global",
		Tags:         []string{"IPF", "Global"},
		Status:       report.StatusReady,
		ContentType:  report.ContentTypePDF,
		DownloadPath: "/downloads/reports/RPT_20250304_050607_abcd1234.pdf",
		Artifact:     []byte("%PDF-1.4"),
		CreatedAt:    created,
	}

	mock.ExpectExec(regexp.QuoteMeta(saveReportSQL)).
		WithArgs(rec.ReportID, rec.SessionID, rec.Topic, rec.Molecule, rec.Indication, rec.Geography,
			sqlmock.AnyArg(), rec.Summary, rec.Status, rec.ContentType, rec.DownloadPath, rec.Error,
			rec.Artifact, created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReportRequiresID(t *testing.T) {
	st := &Store{}
	if err := st.Save(context.Background(), &report.Record{}); err == nil {
		t.Fatalf("expected error for empty report id")
	}
}

func TestGetReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	rows := sqlmock.NewRows(reportColumns).
		AddRow("RPT_1", "sess-1", "topic", "Metformin", "IPF", "Global", "{IPF,Global}", "summary", "ready", report.ContentTypePDF, "/downloads/reports/RPT_1.pdf", "", []byte("%PDF"), created, created)
	mock.ExpectQuery(regexp.QuoteMeta(getReportSQL)).WithArgs("RPT_1").WillReturnRows(rows)

	rec, err := st.Get(context.Background(), "RPT_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.SessionID != "sess-1" || len(rec.Tags) != 2 || rec.Tags[1] != "Global" || string(rec.Artifact) != "%PDF" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.HasArtifact() {
		t.Fatalf("expected downloadable record")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReportNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(getReportSQL)).WithArgs("missing").WillReturnRows(sqlmock.NewRows(reportColumns))

	if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, report.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReports(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	newer := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)
	cols := []string{"report_id", "session_id", "topic", "molecule", "indication", "geography", "tags", "summary", "status", "content_type", "download_path", "error", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("RPT_2", "s2", "t2", "Metformin", "IPF", "Global", "{IPF}", "", "ready", report.ContentTypePDF, "/downloads/reports/RPT_2.pdf", "", newer, newer).
		AddRow("RPT_1", "s1", "t1", "Aspirin", "CRC", "EU", "{}", "", "placeholder", report.ContentTypePDF, "/downloads/reports/RPT_1.pdf", "chrome not found", older, older)
	mock.ExpectQuery(regexp.QuoteMeta(listReportsSQL)).WillReturnRows(rows)

	list, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ReportID != "RPT_2" || list[1].Status != report.StatusPlaceholder {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[1].HasArtifact() {
		t.Fatalf("list rows carry no artifacts")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
