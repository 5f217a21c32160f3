package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vesaa/neonboard/internal/models"
)

// SystemCollector gathers local system statistics. Each sub-measurement is
// independent: a failure is recorded against its own source and the rest of
// the pass continues.
type SystemCollector struct {
	platform  Platform
	rootPath  string
	cpuWindow time.Duration
	topN      int
	now       func() time.Time
}

// SystemOptions configures a SystemCollector.
type SystemOptions struct {
	RootPath  string
	CPUWindow time.Duration
	TopN      int
}

// NewSystemCollector creates a collector reading from p.
func NewSystemCollector(p Platform, opts SystemOptions) *SystemCollector {
	if opts.RootPath == "" {
		opts.RootPath = "/"
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &SystemCollector{
		platform:  p,
		rootPath:  opts.RootPath,
		cpuWindow: opts.CPUWindow,
		topN:      opts.TopN,
		now:       time.Now,
	}
}

// Collect fills snap.System. downloadsPath is the resolved download mount;
// it is only measured when it exists on this filesystem.
func (c *SystemCollector) Collect(ctx context.Context, downloadsPath string, snap *models.Snapshot) {
	sys := &snap.System

	// CPU
	pct, err := c.platform.CPUPercent(ctx, c.cpuWindow)
	snap.Fail(models.SourceCPU, err)
	if err == nil {
		sys.CPUPercent = pct
	}

	// Memory
	memPct, err := c.platform.MemoryPercent(ctx)
	snap.Fail(models.SourceMemory, err)
	if err == nil {
		sys.MemoryPercent = memPct
	}

	// Uptime
	boot, err := c.platform.BootTime(ctx)
	snap.Fail(models.SourceUptime, err)
	if err == nil {
		sys.Uptime = c.now().Sub(boot)
	}

	// Topology
	topo, err := c.platform.Topology(ctx)
	snap.Fail(models.SourceTopology, err)
	if err == nil {
		sys.Topology = topo
	}

	// Disks
	sys.RootDisk, err = c.platform.DiskUsage(ctx, c.rootPath)
	snap.Fail(models.SourceDiskRoot, err)

	sys.DownloadsDisk, err = c.downloadsDisk(ctx, downloadsPath)
	snap.Fail(models.SourceDiskDownloads, err)

	// Temperatures
	readings, err := c.platform.Sensors(ctx)
	snap.Fail(models.SourceTemperature, err)
	if err == nil {
		sys.Temperatures = ClassifySensors(readings)
	}

	// Top processes
	procs, err := c.platform.Processes(ctx)
	snap.Fail(models.SourceProcesses, err)
	if err == nil {
		sys.TopCPU, sys.TopMemory = RankProcesses(procs, c.topN)
	}
}

// ErrPathAbsent marks a download mount that does not exist locally.
var ErrPathAbsent = errors.New("path not present on this filesystem")

func (c *SystemCollector) downloadsDisk(ctx context.Context, path string) (models.DiskUsage, error) {
	if path == "" || !c.platform.Exists(path) {
		return models.DiskUsage{Path: path}, fmt.Errorf("downloads disk %q: %w", path, ErrPathAbsent)
	}
	return c.platform.DiskUsage(ctx, path)
}
