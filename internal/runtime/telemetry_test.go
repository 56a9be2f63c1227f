package runtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/pharmaverse/config"
	"go.opentelemetry.io/otel"
)

func TestMetricsHandlerExportsOtelInstruments(t *testing.T) {
	ctx := context.Background()
	tel, err := SetupTelemetry(ctx, config.TelemetryConfig{ServiceName: "pharmaverse-test"}, TelemetryOptions{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	counter, err := otel.Meter("runtime-test").Int64Counter("telemetry_probe_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "telemetry_probe_total") {
		t.Fatalf("expected probe counter in metrics output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go collector metrics")
	}
}
