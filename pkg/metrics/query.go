package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ThreadMetrics aggregates pipeline activity for one workflow thread.
type ThreadMetrics struct {
	ThreadID  string `json:"thread_id"`
	StageRuns int64  `json:"stage_runs"`
	ToolCalls int64  `json:"tool_calls"`
	Errors    int64  `json:"errors"`
}

// QueryService reads aggregated pipeline metrics back from a Prometheus
// server scraping this process.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service for the given Prometheus address.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetThreadMetrics retrieves aggregated stage, tool, and error counts for a
// workflow thread.
func (q *QueryService) GetThreadMetrics(ctx context.Context, threadID string) (*ThreadMetrics, error) {
	m := &ThreadMetrics{ThreadID: threadID}

	var err error
	if m.StageRuns, err = q.sum(ctx, fmt.Sprintf(`sum(pipeline_stage_runs_total{thread=%q})`, threadID)); err != nil {
		return nil, fmt.Errorf("failed to query stage runs: %w", err)
	}
	if m.ToolCalls, err = q.sum(ctx, fmt.Sprintf(`sum(pipeline_tool_calls_total{thread=%q})`, threadID)); err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	if m.Errors, err = q.sum(ctx, fmt.Sprintf(`sum(pipeline_errors_total{thread=%q})`, threadID)); err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}

	return m, nil
}

// GetThreadMetricsByStage breaks the thread's stage runs down per stage.
func (q *QueryService) GetThreadMetricsByStage(ctx context.Context, threadID string) (map[string]int64, error) {
	query := fmt.Sprintf(`sum by (stage) (pipeline_stage_runs_total{thread=%q})`, threadID)
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query stage breakdown: %w", err)
	}

	breakdown := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if stage, ok := sample.Metric["stage"]; ok {
				breakdown[string(stage)] = int64(sample.Value)
			}
		}
	}
	return breakdown, nil
}

func (q *QueryService) sum(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
