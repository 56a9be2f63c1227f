package core

import "fmt"

// Worker ids in dispatch order.
const (
	WorkerMarket   = "market"
	WorkerTrade    = "trade"
	WorkerPatent   = "patent"
	WorkerTrials   = "trials"
	WorkerInternal = "internal"
	WorkerWeb      = "web"
)

// ParamSpec declares one parameter a worker extracts and forwards to its provider.
type ParamSpec struct {
	Name     string
	Required bool
	Default  string
}

// Descriptor is everything that distinguishes one worker from another.
type Descriptor struct {
	ID           string
	DisplayName  string
	Endpoint     string
	StartMessage string
	Focus        string // one line used by the planner to describe the worker
	Params       []ParamSpec
	Extraction   string
	Summary      string
}

// PlanKey is the flag name the planner emits for the worker.
func (d Descriptor) PlanKey() string { return "call_" + d.ID }

// Validate reports incomplete descriptors.
func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("descriptor id required")
	case d.Endpoint == "":
		return fmt.Errorf("descriptor %s: endpoint required", d.ID)
	case d.Extraction == "" || d.Summary == "":
		return fmt.Errorf("descriptor %s: extraction and summary instructions required", d.ID)
	}
	return nil
}

// DefaultDescriptors returns the six workers in their fixed dispatch order.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:           WorkerMarket,
			DisplayName:  "IQVIA Insights Agent",
			Endpoint:     "/api/iqvia",
			StartMessage: "🔍 Analyzing market data...",
			Focus:        "market size, sales, growth (CAGR) and competition",
			Params:       []ParamSpec{{Name: "molecule", Required: true}},
			Extraction:   `Extract the drug molecule name from the request. Respond with JSON only: {"molecule": "<name>"}. Use null when no molecule is mentioned.`,
			Summary:      "You are a pharmaceutical market analyst. Summarize the market data: sales by country, growth rates, therapy area and any unmet need signal. Use concrete numbers. 4-6 sentences.",
		},
		{
			ID:           WorkerTrade,
			DisplayName:  "EXIM Trends Agent",
			Endpoint:     "/api/exim",
			StartMessage: "🌍 Analyzing trade data...",
			Focus:        "export/import flows and API sourcing",
			Params:       []ParamSpec{{Name: "product", Required: true}, {Name: "country"}, {Name: "year", Default: "2024"}},
			Extraction:   `Extract the traded product (the molecule or its API) and the country of interest. Respond with JSON only: {"product": "<molecule>", "country": "<country or null>", "year": <year or null>}.`,
			Summary:      "You are a trade and sourcing analyst. Summarize export and import volumes, key partners and supplier concentration risk. 4-6 sentences.",
		},
		{
			ID:           WorkerPatent,
			DisplayName:  "Patent Landscape Agent",
			Endpoint:     "/api/patents",
			StartMessage: "⚖️ Searching IP databases...",
			Focus:        "patents, exclusivity and freedom to operate",
			Params:       []ParamSpec{{Name: "molecule", Required: true}, {Name: "indication"}},
			Extraction:   `Extract the molecule and the indication. Respond with JSON only: {"molecule": "<name>", "indication": "<indication or null>"}.`,
			Summary:      "You are an IP analyst. Summarize active and expired patents, expiry dates, overall patent status and freedom-to-operate risk. 4-6 sentences.",
		},
		{
			ID:           WorkerTrials,
			DisplayName:  "Clinical Trials Agent",
			Endpoint:     "/api/clinical-trials",
			StartMessage: "🔬 Querying ClinicalTrials.gov...",
			Focus:        "clinical trial pipeline by phase and status",
			Params:       []ParamSpec{{Name: "molecule", Required: true}, {Name: "indication"}, {Name: "phase"}},
			Extraction:   `Extract the molecule, the indication and a trial phase if one is requested. Respond with JSON only: {"molecule": "<name>", "indication": "<indication or null>", "phase": "<phase or null>"}.`,
			Summary:      "You are a clinical development analyst. Summarize the trial pipeline: number of active trials, phases, enrollment and what the activity implies. 4-6 sentences.",
		},
		{
			ID:           WorkerInternal,
			DisplayName:  "Internal Knowledge Agent",
			Endpoint:     "/api/internal-knowledge",
			StartMessage: "📊 Searching internal documents...",
			Focus:        "internal strategy documents and field insights",
			Params:       []ParamSpec{{Name: "topic", Required: true}, {Name: "document_type"}, {Name: "search_query"}},
			Extraction:   `Extract the internal knowledge topic (usually the molecule and indication) and a document type such as strategy, market_research or field_report. Respond with JSON only: {"topic": "<topic>", "document_type": "<type or null>", "search_query": "<short query or null>"}.`,
			Summary:      "You are a strategy analyst. Summarize what internal documents say about priorities, risks and unmet needs. 4-6 sentences.",
		},
		{
			ID:           WorkerWeb,
			DisplayName:  "Web Intelligence Agent",
			Endpoint:     "/api/web-intelligence",
			StartMessage: "🌐 Searching for guidelines and publications...",
			Focus:        "guidelines, publications and news",
			Params:       []ParamSpec{{Name: "query", Required: true}, {Name: "source_type"}},
			Extraction:   `Write a short web search phrase for the request and pick a source type among guideline, publication, news or all. Respond with JSON only: {"query": "<phrase>", "source_type": "<type>"}.`,
			Summary:      "You are a medical intelligence analyst. Summarize relevant guidelines, publications and news and what they mean for the opportunity. 4-6 sentences.",
		},
	}
}
