package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("report not found")

const (
	StatusReady       = "ready"
	StatusPlaceholder = "placeholder"
)

// Record is one compiled report. Artifact holds the rendered bytes and is empty
// for placeholders.
type Record struct {
	ReportID     string    `json:"report_id"`
	SessionID    string    `json:"session_id"`
	Topic        string    `json:"topic"`
	Molecule     string    `json:"molecule"`
	Indication   string    `json:"indication"`
	Geography    string    `json:"geography"`
	Tags         []string  `json:"tags"`
	Summary      string    `json:"summary,omitempty"`
	Status       string    `json:"status"`
	ContentType  string    `json:"content_type,omitempty"`
	DownloadPath string    `json:"download_path"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"date"`
	UpdatedAt    time.Time `json:"updated_at"`
	Artifact     []byte    `json:"-"`
}

// HasArtifact reports whether the record can be downloaded.
func (r *Record) HasArtifact() bool { return r != nil && r.Status == StatusReady && len(r.Artifact) > 0 }

// Registry persists report records.
type Registry interface {
	// Save inserts or replaces the record with the same ReportID.
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, reportID string) (*Record, error)
	// List returns records newest first without artifacts.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryRegistry keeps records in process memory.
type MemoryRegistry struct {
	mu   sync.RWMutex
	data map[string]*Record
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{data: map[string]*Record{}}
}

func (m *MemoryRegistry) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ReportID == "" {
		return errors.New("report id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyRecord(rec, true)
	if prev, ok := m.data[rec.ReportID]; ok && !prev.CreatedAt.IsZero() {
		cp.CreatedAt = prev.CreatedAt
	}
	m.data[rec.ReportID] = cp
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, reportID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec, true), nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	out := make([]*Record, 0, len(m.data))
	for _, rec := range m.data {
		out = append(out, copyRecord(rec, false))
	}
	m.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders records by creation time, newest first, then by id.
func SortNewestFirst(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ReportID > recs[j].ReportID
	})
}

func copyRecord(rec *Record, withArtifact bool) *Record {
	cp := *rec
	cp.Tags = append([]string(nil), rec.Tags...)
	cp.Artifact = nil
	if withArtifact && len(rec.Artifact) > 0 {
		cp.Artifact = append([]byte(nil), rec.Artifact...)
	}
	return &cp
}
