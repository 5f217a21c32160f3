// Package models defines the plain data types passed between NeonBoard
// collectors and the metric registry. Nothing here is persisted.
package models

import "time"

// TranscodeDecision is Tautulli's stream delivery mode.
type TranscodeDecision string

const (
	DecisionDirectPlay TranscodeDecision = "direct play"
	DecisionTranscode  TranscodeDecision = "transcode"
	DecisionCopy       TranscodeDecision = "copy"
)

// UnknownUser is reported for sessions that carry no user field.
const UnknownUser = "unknown"

// SessionRecord is one active playback session, valid for a single pass.
type SessionRecord struct {
	BandwidthKbps int64
	Decision      TranscodeDecision
	User          string
}

// SessionAggregate is the per-pass summary of all active sessions.
type SessionAggregate struct {
	ActiveStreams  int
	BandwidthKbps  int64
	Transcodes     int
	StreamsPerUser map[string]int // rebuilt every pass
}

// DiskUsage is a filesystem usage sample for one path.
type DiskUsage struct {
	Path        string
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	FreePercent float64
}

// NewDiskUsage fills FreePercent from the byte counts. A zero total yields a
// zero percentage.
func NewDiskUsage(path string, total, used, free uint64) DiskUsage {
	d := DiskUsage{Path: path, TotalBytes: total, UsedBytes: used, FreeBytes: free}
	if total > 0 {
		d.FreePercent = float64(free) / float64(total) * 100
	}
	return d
}

// ProcessSample is one row of the process table.
type ProcessSample struct {
	PID        int32
	Name       string
	CPUPercent float64
	RSSBytes   uint64
}

// Topology describes the CPU layout. Zero means "not available".
type Topology struct {
	Threads    int
	Cores      int
	Sockets    int
	BaseMHz    float64
	CurrentMHz float64
}

// TemperatureReading is one sensor value after family classification.
type TemperatureReading struct {
	Family  string // cpu | chipset | nvme | disk
	Sensor  string
	Celsius float64
}

// SystemSample is the result of one system collection pass. Fields whose
// source appears in Failed hold zero values.
type SystemSample struct {
	CPUPercent    float64
	MemoryPercent float64
	Uptime        time.Duration
	Topology      Topology
	RootDisk      DiskUsage
	DownloadsDisk DiskUsage
	Temperatures  []TemperatureReading
	TopCPU        []ProcessSample
	TopMemory     []ProcessSample
}

// Snapshot is everything one scrape gathered, plus the set of sources that
// failed during that pass.
type Snapshot struct {
	Sessions      SessionAggregate
	DownloadMount string
	System        SystemSample
	Duration      time.Duration
	Failed        map[Source]error
}

// Source names an independently failure-isolated measurement.
type Source string

const (
	SourceTautulli      Source = "tautulli"
	SourceQBittorrent   Source = "qbittorrent"
	SourceCPU           Source = "cpu"
	SourceMemory        Source = "memory"
	SourceUptime        Source = "uptime"
	SourceTopology      Source = "topology"
	SourceDiskRoot      Source = "disk_root"
	SourceDiskDownloads Source = "disk_downloads"
	SourceTemperature   Source = "temperature"
	SourceProcesses     Source = "processes"
	SourceScrape        Source = "scrape"
)

// AllSources lists every source in reporting order.
var AllSources = []Source{
	SourceTautulli,
	SourceQBittorrent,
	SourceCPU,
	SourceMemory,
	SourceUptime,
	SourceTopology,
	SourceDiskRoot,
	SourceDiskDownloads,
	SourceTemperature,
	SourceProcesses,
}

// NewSnapshot returns an empty snapshot ready to be filled.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Sessions: SessionAggregate{StreamsPerUser: map[string]int{}},
		Failed:   map[Source]error{},
	}
}

// Fail records err against src. A nil err is ignored.
func (s *Snapshot) Fail(src Source, err error) {
	if err != nil {
		s.Failed[src] = err
	}
}

// OK reports whether src completed without error in this pass.
func (s *Snapshot) OK(src Source) bool {
	_, failed := s.Failed[src]
	return !failed
}
