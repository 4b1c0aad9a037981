// Package diag summarizes per-step reward traces from training runs.
package diag

import (
	"github.com/montanaflynn/stats"

	"specforge/internal/model"
)

// Summarize reduces a reward trace to the distribution figures recorded on a
// training run. An empty trace yields a zero summary.
func Summarize(rewards []float64) model.RunSummary {
	if len(rewards) == 0 {
		return model.RunSummary{}
	}

	data := stats.Float64Data(rewards)
	mean, _ := data.Mean()
	median, _ := data.Median()
	std, _ := data.StandardDeviation()

	// Percentile needs enough samples to interpolate; short traces fall back
	// to the extremes so the summary stays JSON-encodable.
	p10, err := data.Percentile(10)
	if err != nil {
		p10, _ = data.Min()
	}
	p90, err := data.Percentile(90)
	if err != nil {
		p90, _ = data.Max()
	}

	return model.RunSummary{
		Count:  len(rewards),
		Mean:   mean,
		Median: median,
		P10:    p10,
		P90:    p90,
		Std:    std,
	}
}
