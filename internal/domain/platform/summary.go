package platform

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PlatformStats counts batch rows for one platform.
type PlatformStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// Timing aggregates per-link wall time across a batch.
type Timing struct {
	MeanSeconds float64 `json:"mean_seconds"`
	P90Seconds  float64 `json:"p90_seconds"`
}

// Summary trails every batch response so callers can judge the run
// without walking the rows.
type Summary struct {
	TotalProcessed      int                      `json:"total_processed"`
	PlatformStats       map[string]PlatformStats `json:"platform_stats"`
	Timing              *Timing                  `json:"timing,omitempty"`
	RateLimitingApplied bool                     `json:"rate_limiting_applied"`
}

// Summarize folds batch rows into per-platform counts plus timing
// percentiles over the per-link durations (seconds).
func Summarize(rows []*Metrics, durations []float64) Summary {
	s := Summary{
		TotalProcessed:      len(rows),
		PlatformStats:       make(map[string]PlatformStats),
		RateLimitingApplied: true,
	}
	for _, row := range rows {
		ps := s.PlatformStats[row.Platform]
		ps.Total++
		if row.Failed() {
			ps.Errors++
		} else {
			ps.Success++
		}
		s.PlatformStats[row.Platform] = ps
	}
	if len(durations) > 0 {
		sorted := append([]float64(nil), durations...)
		sort.Float64s(sorted)
		s.Timing = &Timing{
			MeanSeconds: stat.Mean(sorted, nil),
			P90Seconds:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
		}
	}
	return s
}
