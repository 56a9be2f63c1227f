package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/session"
	"gopkg.in/yaml.v3"
)

// Exporter serializes a session for download.
type Exporter interface {
	Export(s *session.Session) ([]byte, error)
	ContentType() string
	Extension() string
}

// NewExporter returns the exporter for format: json, yaml or markdown.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONExporter{}, nil
	case "yaml", "yml":
		return YAMLExporter{}, nil
	case "markdown", "md":
		return MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

type JSONExporter struct{}

func (JSONExporter) Export(s *session.Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (JSONExporter) ContentType() string { return "application/json" }
func (JSONExporter) Extension() string   { return ".json" }

// YAMLExporter goes through JSON first so field names match the API.
type YAMLExporter struct{}

func (YAMLExporter) Export(s *session.Session) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (YAMLExporter) ContentType() string { return "application/yaml" }
func (YAMLExporter) Extension() string   { return ".yaml" }

type MarkdownExporter struct{}

func (MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }
func (MarkdownExporter) Extension() string   { return ".md" }

func (MarkdownExporter) Export(s *session.Session) ([]byte, error) {
	var b strings.Builder
	title := strings.TrimSpace(s.Subject.Molecule + " " + s.Subject.Indication)
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Session: `%s`\n- Status: %s\n- Stage: %s\n", s.ID, s.Status, s.Stage)
	if s.Subject.Geography != "" {
		fmt.Fprintf(&b, "- Geography: %s\n", s.Subject.Geography)
	}
	if s.Subject.Timeframe != "" {
		fmt.Fprintf(&b, "- Timeframe: %s\n", s.Subject.Timeframe)
	}
	if s.ReportRef != nil && s.ReportRef.DownloadPath != "" {
		fmt.Fprintf(&b, "- Report: %s (%s)\n", s.ReportRef.DownloadPath, s.ReportRef.Status)
	}
	if s.Subject.StrategicQuestion != "" {
		fmt.Fprintf(&b, "\n> %s\n", s.Subject.StrategicQuestion)
	}
	if s.Narrative != "" {
		fmt.Fprintf(&b, "\n## Executive Summary\n\n%s\n", s.Narrative)
	}
	for _, r := range s.Results() {
		fmt.Fprintf(&b, "\n## %s\n\n", r.DisplayName)
		switch {
		case r.Failed():
			fmt.Fprintf(&b, "_No data: %s_\n", r.Error)
		case r.Summary == "":
			b.WriteString("_No data returned._\n")
		default:
			b.WriteString(r.Summary + "\n")
		}
		for _, c := range s.ChartSpecs[r.DisplayName] {
			writeChart(&b, c)
		}
	}
	if len(s.ChatHistory) > 0 {
		b.WriteString("\n## Conversation\n\n")
		for _, m := range s.ChatHistory {
			fmt.Fprintf(&b, "- **%s**: %s\n", m.Sender, m.Message)
		}
	}
	return []byte(b.String()), nil
}

func writeChart(b *strings.Builder, c session.ChartSpec) {
	fmt.Fprintf(b, "\n**%s** (%s)\n\n| Label | Value |\n|---|---|\n", c.Title, c.Kind)
	for i, l := range c.Labels {
		if i >= len(c.Values) {
			break
		}
		v := fmt.Sprintf("%g", c.Values[i])
		if c.Unit != "" {
			v += " " + c.Unit
		}
		fmt.Fprintf(b, "| %s | %s |\n", strings.ReplaceAll(l, "|", "\\|"), v)
	}
	if c.Insight != "" {
		fmt.Fprintf(b, "\n%s\n", c.Insight)
	}
}

// Formats lists the supported export formats.
func Formats() []string {
	return []string{"json", "markdown", "yaml"}
}
