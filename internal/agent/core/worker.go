package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/internal/capability"
	"github.com/mohammad-safakhou/pharmaverse/internal/helpers"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Worker pairs one capability endpoint with parameter extraction and summarization.
type Worker struct {
	desc     Descriptor
	llm      TextCompleter
	provider capability.Provider
	logger   *log.Logger
}

func NewWorker(desc Descriptor, llm TextCompleter, provider capability.Provider, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Worker{desc: desc, llm: llm, provider: provider, logger: logger}
}

// NewWorkers builds one worker per descriptor, keeping descriptor order.
func NewWorkers(descs []Descriptor, llm TextCompleter, provider capability.Provider, logger *log.Logger) ([]*Worker, error) {
	seen := make(map[string]bool, len(descs))
	out := make([]*Worker, 0, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate worker id %q", d.ID)
		}
		seen[d.ID] = true
		out = append(out, NewWorker(d, llm, provider, logger))
	}
	return out, nil
}

func (w *Worker) Descriptor() Descriptor { return w.desc }

// Run extracts parameters from query, calls the provider and summarizes the payload.
// Missing mandatory parameters end the run early with an explanatory summary and no
// error. Provider and summarization failures are returned with the partial result.
func (w *Worker) Run(ctx context.Context, query string) (session.WorkerResult, error) {
	ctx, span := coreTracer.Start(ctx, "Worker.Run")
	defer span.End()
	span.SetAttributes(attribute.String("worker", w.desc.ID))

	res := session.WorkerResult{
		WorkerID:    w.desc.ID,
		DisplayName: w.desc.DisplayName,
		Raw:         map[string]any{},
		StartedAt:   time.Now().UTC(),
	}

	params := w.extract(ctx, query)
	res.Params = params
	if missing := w.missing(params); missing != "" {
		res.Summary = fmt.Sprintf("Could not determine the %s from the request.", strings.ReplaceAll(missing, "_", " "))
		res.FinishedAt = time.Now().UTC()
		return res, nil
	}

	raw, err := w.provider.Fetch(ctx, w.desc.Endpoint, queryParams(params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.FinishedAt = time.Now().UTC()
		return res, fmt.Errorf("%s provider: %w", w.desc.ID, err)
	}
	res.Raw = raw

	payload, err := json.Marshal(raw)
	if err != nil {
		res.FinishedAt = time.Now().UTC()
		return res, fmt.Errorf("%s payload: %w", w.desc.ID, err)
	}
	summary, err := w.llm.Complete(ctx, Prompt{
		System: w.desc.Summary,
		User:   fmt.Sprintf("Request: %s\n\nData:\n%s", query, payload),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.FinishedAt = time.Now().UTC()
		return res, fmt.Errorf("%s summary: %w", w.desc.ID, err)
	}
	res.Summary = helpers.SanitizeHTMLStrict(summary)
	res.FinishedAt = time.Now().UTC()
	return res, nil
}

// extract never fails: completion or decode errors yield empty parameters.
func (w *Worker) extract(ctx context.Context, query string) map[string]any {
	params := map[string]any{}
	text, err := w.llm.Complete(ctx, Prompt{System: w.desc.Extraction, User: query})
	if err != nil {
		w.logger.Printf("%s: parameter extraction failed: %v", w.desc.ID, err)
	} else if err := helpers.DecodeLenient(text, &params); err != nil {
		w.logger.Printf("%s: unparseable extraction output: %v", w.desc.ID, err)
		params = map[string]any{}
	}
	for k, v := range params {
		if s := paramString(v); s == "" {
			delete(params, k)
		}
	}
	for _, p := range w.desc.Params {
		if _, ok := params[p.Name]; !ok && p.Default != "" {
			params[p.Name] = p.Default
		}
	}
	return params
}

func (w *Worker) missing(params map[string]any) string {
	for _, p := range w.desc.Params {
		if p.Required && paramString(params[p.Name]) == "" {
			return p.Name
		}
	}
	return ""
}

func queryParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if s := paramString(v); s != "" {
			out[k] = s
		}
	}
	return out
}

// paramString flattens an extracted value for use as a query parameter.
func paramString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") || strings.EqualFold(s, "n/a") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
