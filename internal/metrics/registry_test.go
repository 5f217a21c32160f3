package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/neonboard/internal/config"
	"github.com/vesaa/neonboard/internal/models"
)

func fullSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.Sessions = models.SessionAggregate{
		ActiveStreams:  3,
		BandwidthKbps:  3000,
		Transcodes:     2,
		StreamsPerUser: map[string]int{"alice": 2, "bob": 1},
	}
	snap.DownloadMount = "/downloads"
	snap.Duration = 1500 * time.Millisecond
	snap.System = models.SystemSample{
		CPUPercent:    12.5,
		MemoryPercent: 40,
		Uptime:        time.Hour,
		Topology:      models.Topology{Threads: 8, Cores: 4},
		RootDisk:      models.NewDiskUsage("/", 200, 150, 50),
		DownloadsDisk: models.NewDiskUsage("/downloads", 1000, 100, 900),
		Temperatures: []models.TemperatureReading{
			{Family: "cpu", Sensor: "coretemp_core_0", Celsius: 48},
		},
		TopCPU: []models.ProcessSample{
			{PID: 10, Name: "plex", CPUPercent: 30, RSSBytes: 200 << 20},
			{PID: 11, Name: "ffmpeg", CPUPercent: 20, RSSBytes: 100 << 20},
		},
		TopMemory: []models.ProcessSample{
			{PID: 10, Name: "plex", CPUPercent: 30, RSSBytes: 200 << 20},
		},
	}
	return snap
}

func newTestRegistry(t *testing.T, policy string) *Registry {
	t.Helper()
	r, err := NewRegistry(DefaultInstruments(), policy)
	require.NoError(t, err)
	return r
}

func render(t *testing.T, r *Registry) string {
	t.Helper()
	out, err := r.RenderBytes()
	require.NoError(t, err)
	return string(out)
}

func TestRenderFormat(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	r.Apply(fullSnapshot())
	out := render(t, r)

	assert.Contains(t, out, "# TYPE tautulli_active_streams gauge\ntautulli_active_streams 3\n")
	assert.Contains(t, out, "tautulli_bandwidth_total_kbps 3000\n")
	assert.Contains(t, out, "tautulli_transcodes_active 2\n")
	assert.Contains(t, out, `tautulli_user_streams{user="alice"} 2`)
	assert.Contains(t, out, `tautulli_user_streams{user="bob"} 1`)
	assert.Contains(t, out, `neonboard_top_cpu_process_percent{name="plex",pid="10"} 30`)
	assert.Contains(t, out, `neonboard_top_ram_process_mb{name="plex",pid="10"} 200`)
	assert.Contains(t, out, `neonboard_temperature_celsius{family="cpu",sensor="coretemp_core_0"} 48`)
	assert.Contains(t, out, "neonboard_disk_root_free_percent 25\n")
	assert.Contains(t, out, "neonboard_disk_downloads_free_percent 90\n")
	assert.Contains(t, out, `neonboard_download_mount_resolved{path="/downloads"} 1`)
	assert.Contains(t, out, `neonboard_source_up{source="tautulli"} 1`)

	// unknown sockets and clocks are omitted, not zero
	assert.NotContains(t, out, "neonboard_cpu_sockets")
	assert.NotContains(t, out, "neonboard_cpu_base_mhz")
	assert.Contains(t, out, "neonboard_cpu_cores 4\n")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		assert.Len(t, fields, 2, "sample line %q", line)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	r.Apply(fullSnapshot())
	assert.Equal(t, render(t, r), render(t, r))
}

func TestApplyReplacesLabeledEntries(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	r.Apply(fullSnapshot())

	next := fullSnapshot()
	next.System.TopCPU = []models.ProcessSample{{PID: 99, Name: "rsync", CPUPercent: 70}}
	next.Sessions.StreamsPerUser = map[string]int{"carol": 1}
	r.Apply(next)

	vec := r.vecs["neonboard_top_cpu_process_percent"]
	assert.Equal(t, 1, testutil.CollectAndCount(vec))
	assert.Equal(t, 70.0, testutil.ToFloat64(vec.WithLabelValues("99", "rsync")))

	out := render(t, r)
	assert.NotContains(t, out, `name="plex",pid="10"} 30`)
	assert.NotContains(t, out, `user="alice"`)
	assert.Contains(t, out, `user="carol"`)
}

func TestApplyInvalidUTF8Labels(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	snap := fullSnapshot()
	snap.System.TopCPU = []models.ProcessSample{{PID: 99, Name: "bad\xffname", CPUPercent: 5}}
	snap.System.Temperatures = []models.TemperatureReading{{Family: "nvme", Sensor: "nvme\xfe0", Celsius: 40}}

	require.NotPanics(t, func() { r.Apply(snap) })

	out := render(t, r)
	assert.Contains(t, out, "neonboard_top_cpu_process_percent{name=\"bad\uFFFDname\",pid=\"99\"} 5")
	assert.Contains(t, out, "sensor=\"nvme\uFFFD0\"")
	assert.Contains(t, out, "tautulli_active_streams 3\n")
}

func TestValidLabelsKeepsValidInput(t *testing.T) {
	in := []string{"1", "plex"}
	assert.Equal(t, in, validLabels(in))
	assert.Equal(t, []string{"1", "a\uFFFDb"}, validLabels([]string{"1", "a\x80b"}))
}

func failedTautulli() *models.Snapshot {
	snap := fullSnapshot()
	snap.Sessions = models.SessionAggregate{StreamsPerUser: map[string]int{}}
	snap.Fail(models.SourceTautulli, errors.New("timeout"))
	return snap
}

func TestStalePolicyZero(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	r.Apply(fullSnapshot())
	r.Apply(failedTautulli())

	out := render(t, r)
	assert.Contains(t, out, "tautulli_active_streams 0\n")
	assert.Contains(t, out, "tautulli_bandwidth_total_kbps 0\n")
	assert.Contains(t, out, "tautulli_transcodes_active 0\n")
	assert.NotContains(t, out, "tautulli_user_streams{")
	assert.Contains(t, out, `neonboard_source_up{source="tautulli"} 0`)
	assert.Contains(t, out, "neonboard_cpu_usage_percent 12.5\n")
}

func TestStalePolicyRetain(t *testing.T) {
	r := newTestRegistry(t, config.StaleRetain)
	r.Apply(fullSnapshot())
	r.Apply(failedTautulli())

	out := render(t, r)
	assert.Contains(t, out, "tautulli_active_streams 3\n")
	assert.Contains(t, out, `tautulli_user_streams{user="alice"} 2`)
	assert.Contains(t, out, `neonboard_source_up{source="tautulli"} 0`)
}

func TestStalePolicyDrop(t *testing.T) {
	r := newTestRegistry(t, config.StaleDrop)
	r.Apply(fullSnapshot())
	r.Apply(failedTautulli())

	out := render(t, r)
	assert.NotContains(t, out, "tautulli_active_streams ")
	assert.NotContains(t, out, "tautulli_user_streams{")
	assert.Contains(t, out, "neonboard_ram_usage_percent 40\n")
}

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry(DefaultInstruments(), "sometimes")
	assert.Error(t, err)

	dup := []Instrument{
		{Name: "x_value", Help: "x", Source: models.SourceCPU, Extract: func(*models.Snapshot) []Sample { return nil }},
		{Name: "x_value", Help: "x", Source: models.SourceCPU, Extract: func(*models.Snapshot) []Sample { return nil }},
	}
	_, err = NewRegistry(dup, config.StaleZero)
	assert.Error(t, err)

	_, err = NewRegistry([]Instrument{{Name: "y_value", Help: "y"}}, config.StaleZero)
	assert.Error(t, err)
}

func TestEmptyRegistryRendersNothing(t *testing.T) {
	r := newTestRegistry(t, config.StaleZero)
	assert.Empty(t, render(t, r))
}

func TestInstrumentNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, in := range DefaultInstruments() {
		assert.False(t, seen[in.Name], "duplicate instrument %s", in.Name)
		seen[in.Name] = true
	}
}
