package core

import (
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce  sync.Once
	planSchema  *jsonschema.Schema
	chartSchema *jsonschema.Schema
	schemaErr   error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{"plan.json", "charts.json"} {
		f, err := schemaFS.Open("schemas/" + name)
		if err != nil {
			schemaErr = fmt.Errorf("open schema %s: %w", name, err)
			return
		}
		err = compiler.AddResource(name, f)
		f.Close()
		if err != nil {
			schemaErr = fmt.Errorf("add schema resource %s: %w", name, err)
			return
		}
	}
	if planSchema, schemaErr = compiler.Compile("plan.json"); schemaErr != nil {
		schemaErr = fmt.Errorf("compile plan schema: %w", schemaErr)
		return
	}
	if chartSchema, schemaErr = compiler.Compile("charts.json"); schemaErr != nil {
		schemaErr = fmt.Errorf("compile chart schema: %w", schemaErr)
	}
}

// validatePlanDocument checks a decoded planner response. doc must come from encoding/json.
func validatePlanDocument(doc any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	return planSchema.Validate(doc)
}

// validateChartDocument checks the envelope of a decoded chart response.
func validateChartDocument(doc any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	return chartSchema.Validate(doc)
}
