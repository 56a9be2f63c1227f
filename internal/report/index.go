package report

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
)

type indexDoc struct {
	Topic      string   `json:"topic"`
	Molecule   string   `json:"molecule"`
	Indication string   `json:"indication"`
	Geography  string   `json:"geography"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
}

// Index is an in-memory full-text index over report metadata and summaries.
type Index struct {
	mu    sync.RWMutex
	bleve bleve.Index
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create report index: %w", err)
	}
	return &Index{bleve: idx}, nil
}

// Add indexes rec, replacing any earlier version.
func (i *Index) Add(rec *Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bleve.Index(rec.ReportID, indexDoc{
		Topic:      rec.Topic,
		Molecule:   rec.Molecule,
		Indication: rec.Indication,
		Geography:  rec.Geography,
		Tags:       rec.Tags,
		Summary:    rec.Summary,
	})
}

// Search returns up to k report ids matching q, best first.
func (i *Index) Search(q string, k int) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	i.mu.RLock()
	res, err := i.bleve.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Reindex loads every record from reg into the index.
func (i *Index) Reindex(ctx context.Context, reg Registry) (int, error) {
	recs, err := reg.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := i.Add(rec); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

func (i *Index) Close() error { return i.bleve.Close() }
