package capability

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// MockHandler serves fixed payloads on the capability endpoints so the service
// can run without real data providers.
type MockHandler struct{}

// Register mounts the mock endpoints on g (typically the /api group).
func (h *MockHandler) Register(g *echo.Group) {
	g.GET("/iqvia", h.iqvia)
	g.GET("/exim", h.exim)
	g.GET("/patents", h.patents)
	g.GET("/clinical-trials", h.trials)
	g.GET("/internal-knowledge", h.internal)
	g.GET("/web-intelligence", h.web)
}

func required(c echo.Context, name string) (string, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	return v, nil
}

func (h *MockHandler) iqvia(c echo.Context) error {
	molecule, err := required(c, "molecule")
	if err != nil {
		return err
	}
	if strings.EqualFold(molecule, "metformin") {
		return c.JSON(http.StatusOK, map[string]any{
			"molecule": "Metformin",
			"markets": []map[string]any{
				{"country": "US", "sales_2024_musd": 800, "cagr_5y": 3.5},
				{"country": "India", "sales_2024_musd": 200, "cagr_5y": 7.2},
			},
			"therapy_area":    "Type 2 Diabetes",
			"unmet_need_flag": true,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"molecule": molecule, "markets": []any{}})
}

func (h *MockHandler) exim(c echo.Context) error {
	product, err := required(c, "product")
	if err != nil {
		return err
	}
	year, _ := strconv.Atoi(c.QueryParam("year"))
	if year == 0 {
		year = 2024
	}
	country := c.QueryParam("country")
	if country == "" {
		country = "Global"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"product": product,
		"country": country,
		"year":    year,
		"exports": []map[string]any{
			{"partner": "US", "volume_tonnes": 1200, "value_musd": 95},
			{"partner": "EU", "volume_tonnes": 860, "value_musd": 71},
		},
		"imports": []map[string]any{
			{"partner": "China", "volume_tonnes": 640, "value_musd": 38},
		},
		"top_suppliers": []string{"India", "China"},
	})
}

func (h *MockHandler) patents(c echo.Context) error {
	molecule, err := required(c, "molecule")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"molecule":   molecule,
		"indication": c.QueryParam("indication"),
		"patents": []map[string]any{
			{"number": "US10123456B2", "type": "formulation", "expiry": "2031-06-30", "status": "active"},
			{"number": "EP3456789B1", "type": "method of use", "expiry": "2028-02-14", "status": "active"},
			{"number": "US8765432B1", "type": "compound", "expiry": "2021-09-01", "status": "expired"},
		},
		"patent_status": "Core compound patent expired; secondary formulation patents active until 2031",
		"fto_risk":      "moderate",
	})
}

func (h *MockHandler) trials(c echo.Context) error {
	molecule := c.QueryParam("molecule")
	if molecule == "" {
		molecule = c.QueryParam("indication")
	}
	if molecule == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "molecule or indication is required")
	}
	phase := c.QueryParam("phase")
	trials := []map[string]any{
		{"nct_id": "NCT05000001", "title": "Repurposing study", "phase": "Phase 2", "status": "Recruiting", "enrollment": 240},
		{"nct_id": "NCT05000002", "title": "Long-term safety extension", "phase": "Phase 3", "status": "Active, not recruiting", "enrollment": 1100},
		{"nct_id": "NCT04000003", "title": "Pharmacokinetics in elderly", "phase": "Phase 1", "status": "Completed", "enrollment": 48},
	}
	if phase != "" {
		filtered := trials[:0:0]
		for _, tr := range trials {
			if strings.Contains(strings.ToLower(tr["phase"].(string)), strings.ToLower(phase)) {
				filtered = append(filtered, tr)
			}
		}
		trials = filtered
	}
	active := 0
	for _, tr := range trials {
		if tr["status"] != "Completed" {
			active++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"molecule":      molecule,
		"indication":    c.QueryParam("indication"),
		"trials":        trials,
		"active_trials": active,
	})
}

func (h *MockHandler) internal(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		topic = c.QueryParam("search_query")
	}
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic or search_query is required")
	}
	docType := c.QueryParam("document_type")
	if docType == "" {
		docType = "strategy"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"topic":         topic,
		"document_type": docType,
		"documents": []map[string]any{
			{"title": "Portfolio review 2024", "excerpt": "Repurposing candidates with established safety profiles are a priority.", "year": 2024},
			{"title": "Field force insights", "excerpt": "Prescribers report unmet needs in combination regimens.", "year": 2023},
		},
	})
}

func (h *MockHandler) web(c echo.Context) error {
	query, err := required(c, "query")
	if err != nil {
		return err
	}
	source := c.QueryParam("source_type")
	if source == "" {
		source = "all"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"query":       query,
		"source_type": source,
		"results": []map[string]any{
			{"title": "Updated treatment guideline", "source": "guideline", "year": 2024, "snippet": "First-line recommendation unchanged; combination therapy endorsed."},
			{"title": "Real-world evidence review", "source": "publication", "year": 2023, "snippet": "Observational data suggest benefit beyond the approved indication."},
		},
	})
}
