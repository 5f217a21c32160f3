package metrics

import (
	"strconv"

	"github.com/vesaa/neonboard/internal/models"
)

// Sample is one value of an instrument. Labels follow Instrument.Labels.
type Sample struct {
	Labels []string
	Value  float64
}

// Instrument declares one exported metric: its shape, the source that owns
// it, and how to read its samples from a snapshot.
type Instrument struct {
	Name    string
	Help    string
	Labels  []string
	Source  models.Source
	Extract func(*models.Snapshot) []Sample
}

func single(v float64) []Sample { return []Sample{{Value: v}} }

// optional omits zero readings (unknown socket count, unreadable clocks).
func optional(v float64) []Sample {
	if v == 0 {
		return nil
	}
	return single(v)
}

// DefaultInstruments is the full, fixed instrument table.
func DefaultInstruments() []Instrument {
	table := []Instrument{
		// ── Tautulli ─────────────────────────────────────────────────────────
		{
			Name:    "tautulli_active_streams",
			Help:    "Number of active streams",
			Source:  models.SourceTautulli,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(s.Sessions.ActiveStreams)) },
		},
		{
			Name:    "tautulli_bandwidth_total_kbps",
			Help:    "Total bandwidth usage in kbps",
			Source:  models.SourceTautulli,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(s.Sessions.BandwidthKbps)) },
		},
		{
			Name:    "tautulli_transcodes_active",
			Help:    "Number of active transcodes",
			Source:  models.SourceTautulli,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(s.Sessions.Transcodes)) },
		},
		{
			Name:    "tautulli_user_streams",
			Help:    "Active streams per user",
			Labels:  []string{"user"},
			Source:  models.SourceTautulli,
			Extract: func(s *models.Snapshot) []Sample {
				out := make([]Sample, 0, len(s.Sessions.StreamsPerUser))
				for user, n := range s.Sessions.StreamsPerUser {
					out = append(out, Sample{Labels: []string{user}, Value: float64(n)})
				}
				return out
			},
		},

		// ── CPU / memory / uptime ────────────────────────────────────────────
		{
			Name:    "neonboard_cpu_usage_percent",
			Help:    "Current CPU usage in percent",
			Source:  models.SourceCPU,
			Extract: func(s *models.Snapshot) []Sample { return single(s.System.CPUPercent) },
		},
		{
			Name:    "neonboard_ram_usage_percent",
			Help:    "Current RAM usage in percent",
			Source:  models.SourceMemory,
			Extract: func(s *models.Snapshot) []Sample { return single(s.System.MemoryPercent) },
		},
		{
			Name:    "neonboard_uptime_seconds",
			Help:    "System uptime in seconds",
			Source:  models.SourceUptime,
			Extract: func(s *models.Snapshot) []Sample { return single(s.System.Uptime.Seconds()) },
		},

		// ── Topology ─────────────────────────────────────────────────────────
		{
			Name:    "neonboard_cpu_threads",
			Help:    "Number of logical CPU threads",
			Source:  models.SourceTopology,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(s.System.Topology.Threads)) },
		},
		{
			Name:    "neonboard_cpu_cores",
			Help:    "Number of physical CPU cores",
			Source:  models.SourceTopology,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(s.System.Topology.Cores)) },
		},
		{
			Name:    "neonboard_cpu_sockets",
			Help:    "Number of physical CPU sockets",
			Source:  models.SourceTopology,
			Extract: func(s *models.Snapshot) []Sample { return optional(float64(s.System.Topology.Sockets)) },
		},
		{
			Name:    "neonboard_cpu_base_mhz",
			Help:    "CPU base clock speed in MHz",
			Source:  models.SourceTopology,
			Extract: func(s *models.Snapshot) []Sample { return optional(s.System.Topology.BaseMHz) },
		},
		{
			Name:    "neonboard_cpu_current_mhz",
			Help:    "CPU current clock speed in MHz",
			Source:  models.SourceTopology,
			Extract: func(s *models.Snapshot) []Sample { return optional(s.System.Topology.CurrentMHz) },
		},

		// ── Temperatures ─────────────────────────────────────────────────────
		{
			Name:    "neonboard_temperature_celsius",
			Help:    "Sensor temperature in degrees Celsius",
			Labels:  []string{"family", "sensor"},
			Source:  models.SourceTemperature,
			Extract: func(s *models.Snapshot) []Sample {
				out := make([]Sample, 0, len(s.System.Temperatures))
				for _, t := range s.System.Temperatures {
					out = append(out, Sample{Labels: []string{t.Family, t.Sensor}, Value: t.Celsius})
				}
				return out
			},
		},

		// ── Top processes ────────────────────────────────────────────────────
		{
			Name:    "neonboard_top_cpu_process_percent",
			Help:    "Top process CPU usage",
			Labels:  []string{"pid", "name"},
			Source:  models.SourceProcesses,
			Extract: func(s *models.Snapshot) []Sample {
				return processSamples(s.System.TopCPU, func(p models.ProcessSample) float64 { return p.CPUPercent })
			},
		},
		{
			Name:    "neonboard_top_ram_process_mb",
			Help:    "Top process RAM usage in MB",
			Labels:  []string{"pid", "name"},
			Source:  models.SourceProcesses,
			Extract: func(s *models.Snapshot) []Sample {
				return processSamples(s.System.TopMemory, func(p models.ProcessSample) float64 {
					return float64(p.RSSBytes) / 1024 / 1024
				})
			},
		},

		// ── Self ─────────────────────────────────────────────────────────────
		{
			Name:    "neonboard_source_up",
			Help:    "Whether the last collection from a source succeeded",
			Labels:  []string{"source"},
			Source:  models.SourceScrape,
			Extract: func(s *models.Snapshot) []Sample {
				out := make([]Sample, 0, len(models.AllSources))
				for _, src := range models.AllSources {
					v := 0.0
					if s.OK(src) {
						v = 1
					}
					out = append(out, Sample{Labels: []string{string(src)}, Value: v})
				}
				return out
			},
		},
		{
			Name:    "neonboard_scrape_duration_seconds",
			Help:    "Time spent collecting the last scrape",
			Source:  models.SourceScrape,
			Extract: func(s *models.Snapshot) []Sample { return single(s.Duration.Seconds()) },
		},
		{
			Name:    "neonboard_download_mount_resolved",
			Help:    "Download mount path measured for the downloads disk",
			Labels:  []string{"path"},
			Source:  models.SourceScrape,
			Extract: func(s *models.Snapshot) []Sample {
				if s.DownloadMount == "" {
					return nil
				}
				return []Sample{{Labels: []string{s.DownloadMount}, Value: 1}}
			},
		},
	}

	table = append(table, diskInstruments("root", models.SourceDiskRoot,
		func(s *models.Snapshot) models.DiskUsage { return s.System.RootDisk })...)
	table = append(table, diskInstruments("downloads", models.SourceDiskDownloads,
		func(s *models.Snapshot) models.DiskUsage { return s.System.DownloadsDisk })...)
	return table
}

// diskInstruments declares the byte and percentage gauges for one disk.
func diskInstruments(disk string, src models.Source, pick func(*models.Snapshot) models.DiskUsage) []Instrument {
	prefix := "neonboard_disk_" + disk
	return []Instrument{
		{
			Name:    prefix + "_bytes_total",
			Help:    "Total disk space on the " + disk + " filesystem in bytes",
			Source:  src,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(pick(s).TotalBytes)) },
		},
		{
			Name:    prefix + "_bytes_used",
			Help:    "Used disk space on the " + disk + " filesystem in bytes",
			Source:  src,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(pick(s).UsedBytes)) },
		},
		{
			Name:    prefix + "_bytes_free",
			Help:    "Free disk space on the " + disk + " filesystem in bytes",
			Source:  src,
			Extract: func(s *models.Snapshot) []Sample { return single(float64(pick(s).FreeBytes)) },
		},
		{
			Name:    prefix + "_free_percent",
			Help:    "Free disk space on the " + disk + " filesystem in percent",
			Source:  src,
			Extract: func(s *models.Snapshot) []Sample { return single(pick(s).FreePercent) },
		},
	}
}

func processSamples(procs []models.ProcessSample, value func(models.ProcessSample) float64) []Sample {
	out := make([]Sample, 0, len(procs))
	for _, p := range procs {
		out = append(out, Sample{
			Labels: []string{strconv.Itoa(int(p.PID)), p.Name},
			Value:  value(p),
		})
	}
	return out
}
