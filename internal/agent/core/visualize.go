package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/internal/helpers"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

const chartInstruction = `You turn analyst summaries into chart specifications.
Return a single JSON object only:
{"agents": {"<agent name>": [{"id": "<short id>", "title": "<title>", "recommended_chart": "bar|line|pie|donut", "insight": "<one sentence>", "data": {"labels": ["..."], "values": [<numbers>], "unit": "<unit or empty>"}}]}}
Rules: use the agent names exactly as given. values must be plain numbers, never strings, ranges or text.
labels and values must have the same length. pie and donut charts need non-negative values.
If an agent's summary has no numeric data, give it an empty list.`

// Deriver turns worker summaries into chart specs grouped by worker display name.
type Deriver struct {
	llm    TextCompleter
	logger *log.Logger
}

func NewDeriver(llm TextCompleter, logger *log.Logger) *Deriver {
	if logger == nil {
		logger = log.New(log.Writer(), "[CHARTS] ", log.LstdFlags)
	}
	return &Deriver{llm: llm, logger: logger}
}

// Derive never fails; any trouble yields an empty mapping.
func (d *Deriver) Derive(ctx context.Context, results []session.WorkerResult) map[string][]session.ChartSpec {
	ctx, span := coreTracer.Start(ctx, "Deriver.Derive")
	defer span.End()

	out := map[string][]session.ChartSpec{}
	names := map[string]string{}
	var b strings.Builder
	for _, r := range results {
		if strings.TrimSpace(r.Summary) == "" || r.Failed() {
			continue
		}
		names[strings.ToLower(r.DisplayName)] = r.DisplayName
		names[strings.ToLower(r.WorkerID)] = r.DisplayName
		fmt.Fprintf(&b, "### %s\n%s\n\n", r.DisplayName, r.Summary)
	}
	if b.Len() == 0 {
		return out
	}

	text, err := d.llm.Complete(ctx, Prompt{System: chartInstruction, User: b.String()})
	if err != nil {
		span.RecordError(err)
		d.logger.Printf("chart completion failed: %v", err)
		return out
	}
	var doc map[string]any
	if err := helpers.DecodeLenient(text, &doc); err != nil {
		d.logger.Printf("chart output unparseable")
		return out
	}
	if err := validateChartDocument(doc); err != nil {
		d.logger.Printf("chart document has wrong shape: %v", err)
		return out
	}

	agents, _ := doc["agents"].(map[string]any)
	for key, list := range agents {
		name, ok := names[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		items, _ := list.([]any)
		for i, item := range items {
			obj, _ := item.(map[string]any)
			spec, ok := chartFromItem(obj)
			if !ok {
				continue
			}
			if spec.ID == "" {
				spec.ID = fmt.Sprintf("%s-%d", slug(name), i+1)
			}
			out[name] = append(out[name], spec)
		}
	}
	return out
}

// chartFromItem accepts only fully valid specs: known kind, string labels,
// numeric values of equal length, and non-negative values for pie/donut.
func chartFromItem(obj map[string]any) (session.ChartSpec, bool) {
	if obj == nil {
		return session.ChartSpec{}, false
	}
	kind := session.ChartKind(strings.ToLower(strings.TrimSpace(str(obj["recommended_chart"]))))
	if kind == "" {
		kind = session.ChartKind(strings.ToLower(strings.TrimSpace(str(obj["chart_kind"]))))
	}
	if !kind.Valid() {
		return session.ChartSpec{}, false
	}
	data, _ := obj["data"].(map[string]any)
	if data == nil {
		return session.ChartSpec{}, false
	}
	rawLabels, _ := data["labels"].([]any)
	rawValues, _ := data["values"].([]any)
	if len(rawLabels) == 0 || len(rawLabels) != len(rawValues) {
		return session.ChartSpec{}, false
	}
	labels := make([]string, len(rawLabels))
	for i, l := range rawLabels {
		s, ok := l.(string)
		if !ok {
			return session.ChartSpec{}, false
		}
		labels[i] = s
	}
	values := make([]float64, len(rawValues))
	for i, v := range rawValues {
		f, ok := v.(float64)
		if !ok {
			return session.ChartSpec{}, false
		}
		if (kind == session.ChartPie || kind == session.ChartDonut) && f < 0 {
			return session.ChartSpec{}, false
		}
		values[i] = f
	}
	return session.ChartSpec{
		ID:      strings.TrimSpace(str(obj["id"])),
		Title:   strings.TrimSpace(str(obj["title"])),
		Kind:    kind,
		Labels:  labels,
		Values:  values,
		Unit:    strings.TrimSpace(str(data["unit"])),
		Insight: strings.TrimSpace(str(obj["insight"])),
	}, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
