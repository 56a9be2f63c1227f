package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/internal/helpers"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

// sectionOrder lists the worker sections in report order with their titles.
var sectionOrder = []struct {
	workerID string
	title    string
}{
	{"market", "Market Analysis"},
	{"trade", "EXIM / Sourcing"},
	{"trials", "Clinical Pipeline"},
	{"patent", "Patent Landscape"},
	{"internal", "Internal Strategy Insights"},
	{"web", "Guidelines & Web Intelligence"},
}

type Section struct {
	Title  string
	Source string
	Body   template.HTML
	Note   string
}

type ChartRow struct {
	Label string
	Value string
	Width template.CSS
}

type ChartTable struct {
	Title   string
	Agent   string
	Kind    string
	Insight string
	Rows    []ChartRow
}

// Document is the data the report template renders.
type Document struct {
	ReportID    string
	Title       string
	Subject     session.Subject
	GeneratedAt time.Time
	Executive   template.HTML
	Sections    []Section
	Charts      []ChartTable
}

// BuildDocument projects a session onto the fixed report layout.
func BuildDocument(reportID string, s *session.Session, now time.Time) Document {
	doc := Document{
		ReportID:    reportID,
		Title:       Topic(s.Subject),
		Subject:     s.Subject,
		GeneratedAt: now.UTC(),
	}
	if exec := helpers.ProseToHTML(s.Narrative); exec != "" {
		doc.Executive = template.HTML(exec)
	}
	for _, sec := range sectionOrder {
		item := Section{Title: sec.title}
		res, ok := s.WorkerResults[sec.workerID]
		switch {
		case !ok:
			item.Note = "Not requested for this analysis."
		case res.Failed():
			item.Source = res.DisplayName
			item.Note = "No data: " + res.Error
		case strings.TrimSpace(res.Summary) == "":
			item.Source = res.DisplayName
			item.Note = "No data returned."
		default:
			item.Source = res.DisplayName
			item.Body = template.HTML(helpers.ProseToHTML(res.Summary))
		}
		doc.Sections = append(doc.Sections, item)
	}
	for _, id := range s.WorkerOrder {
		res := s.WorkerResults[id]
		for _, c := range s.ChartSpecs[res.DisplayName] {
			doc.Charts = append(doc.Charts, chartTable(res.DisplayName, c))
		}
	}
	return doc
}

func chartTable(agent string, c session.ChartSpec) ChartTable {
	maxVal := 0.0
	for _, v := range c.Values {
		maxVal = math.Max(maxVal, math.Abs(v))
	}
	t := ChartTable{Title: c.Title, Agent: agent, Kind: string(c.Kind), Insight: c.Insight}
	for i, label := range c.Labels {
		if i >= len(c.Values) {
			break
		}
		v := c.Values[i]
		width := 0
		if maxVal > 0 {
			width = int(math.Round(math.Abs(v) / maxVal * 100))
		}
		value := formatValue(v)
		if c.Unit != "" {
			value += " " + c.Unit
		}
		t.Rows = append(t.Rows, ChartRow{Label: label, Value: value, Width: template.CSS(fmt.Sprintf("width: %d%%", width))})
	}
	return t
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// Topic is the human title of a report about subject.
func Topic(subject session.Subject) string {
	topic := strings.TrimSpace(subject.Molecule)
	if subject.Indication != "" {
		topic = strings.TrimSpace(topic + " in " + subject.Indication)
	}
	if topic == "" {
		return "Pharma Innovation Assessment"
	}
	return topic + ": Innovation Opportunity Assessment"
}

// Render writes the document as a standalone HTML page.
func (d Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render report document: %w", err)
	}
	return buf.String(), nil
}

var documentTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #1f2933; margin: 32px; font-size: 12px; }
h1 { font-size: 22px; margin-bottom: 4px; }
h2 { font-size: 16px; border-bottom: 1px solid #cbd2d9; padding-bottom: 4px; margin-top: 24px; }
.meta { color: #616e7c; }
.note { color: #9a6700; font-style: italic; }
.source { color: #616e7c; font-size: 11px; }
table { border-collapse: collapse; width: 100%; margin: 8px 0 16px; }
td, th { padding: 4px 6px; text-align: left; border-bottom: 1px solid #e4e7eb; }
.bar { background: #3e7cb1; height: 10px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Report {{.ReportID}} · generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
<p class="meta">Geography: {{or .Subject.Geography "Global"}}{{if .Subject.Timeframe}} · Timeframe: {{.Subject.Timeframe}}{{end}}</p>
{{if .Subject.StrategicQuestion}}<p><strong>Strategic question:</strong> {{.Subject.StrategicQuestion}}</p>{{end}}

<h2>Executive Summary</h2>
{{if .Executive}}{{.Executive}}{{else}}<p class="note">The executive summary is being prepared.</p>{{end}}
{{range .Sections}}
<h2>{{.Title}}</h2>
{{if .Source}}<p class="source">Source: {{.Source}}</p>{{end}}
{{if .Body}}{{.Body}}{{else}}<p class="note">{{.Note}}</p>{{end}}
{{end}}
<h2>Charts</h2>
{{if not .Charts}}<p class="note">No chartable figures were found.</p>{{end}}
{{range .Charts}}
<h3>{{.Title}}</h3>
<p class="source">{{.Agent}} · {{.Kind}}</p>
<table>
<tr><th>Label</th><th>Value</th><th></th></tr>
{{range .Rows}}<tr><td>{{.Label}}</td><td>{{.Value}}</td><td><div class="bar" style="{{.Width}}"></div></td></tr>
{{end}}</table>
{{if .Insight}}<p>{{.Insight}}</p>{{end}}
{{end}}
</body>
</html>
`))
