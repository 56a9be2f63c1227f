package core

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	coreMetricsOnce  sync.Once
	pipelineRuns     otelmetric.Int64Counter
	stageDuration    otelmetric.Float64Histogram
	workerRuns       otelmetric.Int64Counter
	workerDuration   otelmetric.Float64Histogram
	llmTokens        otelmetric.Int64Counter
	followUpRequests otelmetric.Int64Counter
)

func initCoreMetrics() {
	meter := otel.Meter("pharmaverse/agent/core")
	var err error
	pipelineRuns, err = meter.Int64Counter(
		"pipeline_runs_total",
		otelmetric.WithDescription("Orchestration runs by final status"),
	)
	if err != nil {
		log.Printf("core metrics init: pipeline_runs_total: %v", err)
	}
	stageDuration, err = meter.Float64Histogram(
		"pipeline_stage_seconds",
		otelmetric.WithDescription("Time spent in each orchestration stage"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("core metrics init: pipeline_stage_seconds: %v", err)
	}
	workerRuns, err = meter.Int64Counter(
		"worker_runs_total",
		otelmetric.WithDescription("Worker dispatches by worker and outcome"),
	)
	if err != nil {
		log.Printf("core metrics init: worker_runs_total: %v", err)
	}
	workerDuration, err = meter.Float64Histogram(
		"worker_run_seconds",
		otelmetric.WithDescription("Worker latency including extraction, provider call and summary"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("core metrics init: worker_run_seconds: %v", err)
	}
	llmTokens, err = meter.Int64Counter(
		"llm_tokens_total",
		otelmetric.WithDescription("Tokens reported by the completion service"),
	)
	if err != nil {
		log.Printf("core metrics init: llm_tokens_total: %v", err)
	}
	followUpRequests, err = meter.Int64Counter(
		"followup_requests_total",
		otelmetric.WithDescription("Follow-up questions by matched worker"),
	)
	if err != nil {
		log.Printf("core metrics init: followup_requests_total: %v", err)
	}
}

func recordPipeline(ctx context.Context, status string) {
	coreMetricsOnce.Do(initCoreMetrics)
	if pipelineRuns != nil {
		pipelineRuns.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
}

func recordStage(ctx context.Context, stage string, started time.Time) {
	coreMetricsOnce.Do(initCoreMetrics)
	if stageDuration != nil {
		stageDuration.Record(ctx, time.Since(started).Seconds(), otelmetric.WithAttributes(attribute.String("stage", stage)))
	}
}

func recordWorker(ctx context.Context, workerID, outcome string, started time.Time) {
	coreMetricsOnce.Do(initCoreMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("worker", workerID), attribute.String("outcome", outcome))
	if workerRuns != nil {
		workerRuns.Add(ctx, 1, attrs)
	}
	if workerDuration != nil {
		workerDuration.Record(ctx, time.Since(started).Seconds(), attrs)
	}
}

func recordTokens(ctx context.Context, model string, prompt, completion int64) {
	coreMetricsOnce.Do(initCoreMetrics)
	if llmTokens == nil {
		return
	}
	llmTokens.Add(ctx, prompt, otelmetric.WithAttributes(attribute.String("model", model), attribute.String("kind", "prompt")))
	llmTokens.Add(ctx, completion, otelmetric.WithAttributes(attribute.String("model", model), attribute.String("kind", "completion")))
}

func recordFollowUp(ctx context.Context, workerID string) {
	coreMetricsOnce.Do(initCoreMetrics)
	if followUpRequests == nil {
		return
	}
	if workerID == "" {
		workerID = "none"
	}
	followUpRequests.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("worker", workerID)))
}
