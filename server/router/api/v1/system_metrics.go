package v1

import (
	"log/slog"
	"math"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatturn/server/internal/observability"
)

const (
	turnsMetric        = "chatturn_turns_total"
	turnDurationMetric = "chatturn_turn_duration_seconds"
	safetyBlocksMetric = "chatturn_safety_blocks_total"
)

// MetricsOverviewResponse summarizes the turn counters since process start.
type MetricsOverviewResponse struct {
	TotalTurns     int64            `json:"total_turns"`
	TurnsByOutcome map[string]int64 `json:"turns_by_outcome"`
	SuccessRate    float64          `json:"success_rate"`
	AvgLatencyMs   int64            `json:"avg_latency_ms"`
	P50LatencyMs   int64            `json:"p50_latency_ms"`
	P95LatencyMs   int64            `json:"p95_latency_ms"`
	ErrorCount     int64            `json:"error_count"`
	SafetyBlocks   int64            `json:"safety_blocks"`
}

// GetMetricsOverview returns the system metrics overview.
// GET /api/v1/system/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	families, err := s.Gatherer.Gather()
	if err != nil {
		slog.Warn("failed to gather metrics", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to gather metrics"})
	}

	resp := MetricsOverviewResponse{TurnsByOutcome: map[string]int64{}}
	// Latency buckets merged across outcomes, keyed by upper bound in seconds.
	buckets := map[float64]uint64{}
	var latencySum float64
	var latencyCount uint64

	for _, mf := range families {
		switch mf.GetName() {
		case turnsMetric:
			for _, m := range mf.GetMetric() {
				outcome := ""
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" {
						outcome = lp.GetValue()
					}
				}
				n := int64(m.GetCounter().GetValue())
				resp.TurnsByOutcome[outcome] += n
				resp.TotalTurns += n
			}
		case turnDurationMetric:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				latencySum += h.GetSampleSum()
				latencyCount += h.GetSampleCount()
				for _, b := range h.GetBucket() {
					buckets[b.GetUpperBound()] += b.GetCumulativeCount()
				}
			}
		case safetyBlocksMetric:
			for _, m := range mf.GetMetric() {
				resp.SafetyBlocks += int64(m.GetCounter().GetValue())
			}
		}
	}

	resp.ErrorCount = resp.TurnsByOutcome[observability.OutcomeError]
	if resp.TotalTurns > 0 {
		ok := resp.TurnsByOutcome[observability.OutcomeReply] + resp.TurnsByOutcome[observability.OutcomeImage]
		resp.SuccessRate = float64(ok) / float64(resp.TotalTurns)
	}
	if latencyCount > 0 {
		resp.AvgLatencyMs = int64(latencySum / float64(latencyCount) * 1000)
		resp.P50LatencyMs = bucketQuantileMs(buckets, latencyCount, 0.5)
		resp.P95LatencyMs = bucketQuantileMs(buckets, latencyCount, 0.95)
	}
	return c.JSON(http.StatusOK, resp)
}

// bucketQuantileMs returns the upper bound of the first bucket holding quantile q
// of the observations. Observations above the last bound report that bound.
func bucketQuantileMs(buckets map[float64]uint64, total uint64, q float64) int64 {
	bounds := make([]float64, 0, len(buckets))
	for b := range buckets {
		if !math.IsInf(b, 1) {
			bounds = append(bounds, b)
		}
	}
	if len(bounds) == 0 {
		return 0
	}
	sort.Float64s(bounds)

	rank := uint64(math.Ceil(q * float64(total)))
	for _, b := range bounds {
		if buckets[b] >= rank {
			return int64(b * 1000)
		}
	}
	return int64(bounds[len(bounds)-1] * 1000)
}
