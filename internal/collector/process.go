package collector

import (
	"sort"

	"github.com/vesaa/neonboard/internal/models"
)

// DefaultTopN is the ranking length used when none is configured.
const DefaultTopN = 5

// TopN returns at most n samples ordered by key, highest first. Equal keys
// keep their snapshot order. The input slice is not modified.
func TopN(samples []models.ProcessSample, n int, key func(models.ProcessSample) float64) []models.ProcessSample {
	if n <= 0 || len(samples) == 0 {
		return []models.ProcessSample{}
	}
	sorted := make([]models.ProcessSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return key(sorted[i]) > key(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// RankProcesses derives both rankings from one snapshot.
func RankProcesses(samples []models.ProcessSample, n int) (byCPU, byMemory []models.ProcessSample) {
	byCPU = TopN(samples, n, func(p models.ProcessSample) float64 { return p.CPUPercent })
	byMemory = TopN(samples, n, func(p models.ProcessSample) float64 { return float64(p.RSSBytes) })
	return byCPU, byMemory
}
