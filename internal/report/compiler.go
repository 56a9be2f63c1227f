package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/internal/agent/core"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var reportTracer = otel.Tracer("pharmaverse/report")

const summaryLength = 600

// Compiler renders sessions into report artifacts and keeps them in a registry.
type Compiler struct {
	registry Registry
	renderer Renderer
	index    *Index
	prefix   string
	logger   *log.Logger
	now      func() time.Time
}

type Option func(*Compiler)

func WithIndex(idx *Index) Option           { return func(c *Compiler) { c.index = idx } }
func WithLogger(l *log.Logger) Option       { return func(c *Compiler) { c.logger = l } }
func WithClock(now func() time.Time) Option { return func(c *Compiler) { c.now = now } }

// WithDownloadPrefix sets the URL prefix of download paths, e.g. "/downloads/reports/".
func WithDownloadPrefix(p string) Option { return func(c *Compiler) { c.prefix = p } }

func NewCompiler(registry Registry, renderer Renderer, opts ...Option) *Compiler {
	c := &Compiler{
		registry: registry,
		renderer: renderer,
		prefix:   "/downloads/reports/",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.Writer(), "[REPORT] ", log.LstdFlags)
	}
	if !strings.HasSuffix(c.prefix, "/") {
		c.prefix += "/"
	}
	return c
}

// NewReportID derives a report id from the compile time and the session id.
func NewReportID(sessionID string, at time.Time) string {
	short := strings.ReplaceAll(sessionID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "RPT_" + at.UTC().Format("20060102_150405") + "_" + short
}

// Compile renders s and registers the report. A render failure registers a
// placeholder and returns its ref together with the error.
func (c *Compiler) Compile(ctx context.Context, s *session.Session) (*session.ReportRef, error) {
	ctx, span := reportTracer.Start(ctx, "Compiler.Compile")
	defer span.End()

	now := c.now()
	id := NewReportID(s.ID, now)
	span.SetAttributes(attribute.String("report_id", id))
	rec := c.record(id, s, now)

	artifact, err := c.render(ctx, id, s, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rec.Status = StatusPlaceholder
		rec.Error = err.Error()
		if saveErr := c.save(ctx, rec); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return refOf(rec), err
	}
	rec.Artifact = artifact
	if err := c.save(ctx, rec); err != nil {
		return nil, err
	}
	return refOf(rec), nil
}

// Amend re-renders the report of ref with the current state of s, including its
// narrative. On failure the earlier artifact is kept.
func (c *Compiler) Amend(ctx context.Context, s *session.Session, ref *session.ReportRef) (*session.ReportRef, error) {
	ctx, span := reportTracer.Start(ctx, "Compiler.Amend")
	defer span.End()

	if ref == nil || ref.ReportID == "" {
		return nil, errors.New("amend: report id required")
	}
	rec, err := c.registry.Get(ctx, ref.ReportID)
	if err != nil {
		return nil, fmt.Errorf("amend %s: %w", ref.ReportID, err)
	}
	now := c.now()
	artifact, err := c.render(ctx, rec.ReportID, s, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	updated := c.record(rec.ReportID, s, rec.CreatedAt)
	updated.UpdatedAt = now.UTC()
	updated.Artifact = artifact
	if err := c.save(ctx, updated); err != nil {
		return nil, err
	}
	return refOf(updated), nil
}

func (c *Compiler) render(ctx context.Context, id string, s *session.Session, now time.Time) ([]byte, error) {
	if c.renderer == nil {
		return nil, errors.New("no report renderer configured")
	}
	html, err := BuildDocument(id, s, now).Render()
	if err != nil {
		return nil, err
	}
	return c.renderer.Render(ctx, html)
}

func (c *Compiler) record(id string, s *session.Session, created time.Time) *Record {
	return &Record{
		ReportID:     id,
		SessionID:    s.ID,
		Topic:        Topic(s.Subject),
		Molecule:     s.Subject.Molecule,
		Indication:   s.Subject.Indication,
		Geography:    s.Subject.Geography,
		Tags:         tags(s.Subject),
		Summary:      summaryOf(s),
		Status:       StatusReady,
		ContentType:  c.contentType(),
		DownloadPath: c.prefix + id + c.extension(),
		CreatedAt:    created.UTC(),
		UpdatedAt:    created.UTC(),
	}
}

func (c *Compiler) save(ctx context.Context, rec *Record) error {
	if err := c.registry.Save(ctx, rec); err != nil {
		return fmt.Errorf("save report %s: %w", rec.ReportID, err)
	}
	if c.index != nil {
		if err := c.index.Add(rec); err != nil {
			c.logger.Printf("index report %s: %v", rec.ReportID, err)
		}
	}
	return nil
}

func (c *Compiler) contentType() string {
	if c.renderer == nil {
		return ""
	}
	return c.renderer.ContentType()
}

func (c *Compiler) extension() string {
	if c.renderer == nil {
		return ""
	}
	return c.renderer.Extension()
}

// Get returns a registered report including its artifact.
func (c *Compiler) Get(ctx context.Context, reportID string) (*Record, error) {
	return c.registry.Get(ctx, reportID)
}

// List returns reports newest first. A non-empty query filters through the
// full-text index, keeping newest-first order.
func (c *Compiler) List(ctx context.Context, query string) ([]*Record, error) {
	all, err := c.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" || c.index == nil {
		return all, nil
	}
	ids, err := c.index.Search(query, len(all)+1)
	if err != nil {
		return nil, err
	}
	hit := make(map[string]bool, len(ids))
	for _, id := range ids {
		hit[id] = true
	}
	out := make([]*Record, 0, len(ids))
	for _, rec := range all {
		if hit[rec.ReportID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func refOf(rec *Record) *session.ReportRef {
	return &session.ReportRef{
		ReportID:     rec.ReportID,
		Status:       rec.Status,
		DownloadPath: rec.DownloadPath,
		Error:        rec.Error,
	}
}

func tags(subject session.Subject) []string {
	var out []string
	for _, v := range []string{subject.Indication, subject.Geography} {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func summaryOf(s *session.Session) string {
	var parts []string
	if n := strings.TrimSpace(s.Narrative); n != "" {
		parts = append(parts, n)
	}
	for _, r := range s.Results() {
		if !r.Failed() && r.Summary != "" {
			parts = append(parts, core.FirstSentences(r.Summary, 1))
		}
	}
	text := strings.Join(parts, " ")
	if r := []rune(text); len(r) > summaryLength {
		text = string(r[:summaryLength])
	}
	return text
}
