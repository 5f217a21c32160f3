package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/neonboard/internal/models"
)

func sevenProcesses() []models.ProcessSample {
	return []models.ProcessSample{
		{PID: 1, Name: "init", CPUPercent: 0.1, RSSBytes: 10 << 20},
		{PID: 20, Name: "plex", CPUPercent: 55.0, RSSBytes: 900 << 20},
		{PID: 33, Name: "qbittorrent", CPUPercent: 12.5, RSSBytes: 400 << 20},
		{PID: 41, Name: "sshd", CPUPercent: 0.2, RSSBytes: 8 << 20},
		{PID: 57, Name: "tautulli", CPUPercent: 3.0, RSSBytes: 150 << 20},
		{PID: 68, Name: "neonboard", CPUPercent: 1.5, RSSBytes: 30 << 20},
		{PID: 79, Name: "ffmpeg", CPUPercent: 80.0, RSSBytes: 200 << 20},
	}
}

func pids(samples []models.ProcessSample) []int32 {
	out := make([]int32, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.PID)
	}
	return out
}

func TestRankProcessesTopFiveByCPU(t *testing.T) {
	byCPU, byMem := RankProcesses(sevenProcesses(), 5)

	require.Len(t, byCPU, 5)
	assert.Equal(t, []int32{79, 20, 33, 57, 68}, pids(byCPU))
	assert.NotContains(t, pids(byCPU), int32(1))
	assert.NotContains(t, pids(byCPU), int32(41))

	require.Len(t, byMem, 5)
	assert.Equal(t, []int32{20, 33, 79, 57, 68}, pids(byMem))
}

func TestTopNShorterPopulation(t *testing.T) {
	procs := sevenProcesses()[:3]
	byCPU, byMem := RankProcesses(procs, 5)
	assert.Len(t, byCPU, 3)
	assert.Len(t, byMem, 3)

	empty, _ := RankProcesses(nil, 5)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTopNStableOnTies(t *testing.T) {
	procs := []models.ProcessSample{
		{PID: 5, Name: "a", CPUPercent: 1},
		{PID: 3, Name: "b", CPUPercent: 2},
		{PID: 9, Name: "c", CPUPercent: 1},
		{PID: 7, Name: "d", CPUPercent: 2},
		{PID: 2, Name: "e", CPUPercent: 1},
	}
	got := TopN(procs, 4, func(p models.ProcessSample) float64 { return p.CPUPercent })
	assert.Equal(t, []int32{3, 7, 5, 9}, pids(got))
}

func TestTopNIdempotentAndNonMutating(t *testing.T) {
	procs := sevenProcesses()
	before := pids(procs)

	first, _ := RankProcesses(procs, 5)
	second, _ := RankProcesses(procs, 5)

	assert.Equal(t, first, second)
	assert.Equal(t, before, pids(procs), "input order must be untouched")
}

func TestTopNSortedDescending(t *testing.T) {
	_, byMem := RankProcesses(sevenProcesses(), 5)
	for i := 1; i < len(byMem); i++ {
		assert.GreaterOrEqual(t, byMem[i-1].RSSBytes, byMem[i].RSSBytes)
	}
}
