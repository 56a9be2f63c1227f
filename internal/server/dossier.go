package server

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/internal/agent/core"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

const maxUnmetNeeds = 4

type DossierSubject struct {
	Name       string `json:"name"`
	Indication string `json:"indication"`
	Geography  string `json:"geography"`
	Timeframe  string `json:"timeframe"`
}

// Dossier is a projection of the collected data for the molecule view.
type Dossier struct {
	SessionID  string             `json:"session_id"`
	Status     session.Status     `json:"status"`
	Molecule   DossierSubject     `json:"molecule"`
	UnmetNeeds []string           `json:"unmet_needs"`
	Trials     any                `json:"trials"`
	Patents    any                `json:"patents"`
	MarketCAGR string             `json:"market_cagr,omitempty"`
	ChartCount int                `json:"chart_count"`
	Report     *session.ReportRef `json:"report,omitempty"`
}

func BuildDossier(s *session.Session) Dossier {
	d := Dossier{
		SessionID: s.ID,
		Status:    s.Status,
		Molecule: DossierSubject{
			Name:       s.Subject.Molecule,
			Indication: s.Subject.Indication,
			Geography:  s.Subject.Geography,
			Timeframe:  s.Subject.Timeframe,
		},
		UnmetNeeds: []string{},
		Trials:     []any{},
		Patents:    []any{},
		Report:     s.ReportRef,
	}
	for _, r := range s.Results() {
		if r.Failed() {
			continue
		}
		parts := strings.Split(r.Summary, ".")
		if len(parts) > 2 {
			parts = parts[:2]
		}
		for _, sent := range parts {
			sent = strings.TrimSpace(sent)
			if len(sent) > 20 && len(d.UnmetNeeds) < maxUnmetNeeds {
				d.UnmetNeeds = append(d.UnmetNeeds, sent+".")
			}
		}
	}
	if r, ok := s.WorkerResults[core.WorkerTrials]; ok && r.Raw["active_trials"] != nil {
		d.Trials = r.Raw["active_trials"]
	}
	if r, ok := s.WorkerResults[core.WorkerPatent]; ok && r.Raw["patent_status"] != nil {
		d.Patents = r.Raw["patent_status"]
	}
	if r, ok := s.WorkerResults[core.WorkerMarket]; ok {
		d.MarketCAGR = firstCAGR(r.Raw)
	}
	for _, specs := range s.ChartSpecs {
		d.ChartCount += len(specs)
	}
	return d
}

func firstCAGR(raw map[string]any) string {
	markets, _ := raw["markets"].([]any)
	if len(markets) == 0 {
		return ""
	}
	first, _ := markets[0].(map[string]any)
	if v, ok := first["cagr_5y"]; ok && v != nil {
		return fmt.Sprintf("%v%%", v)
	}
	return ""
}
