package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
	"github.com/vesaa/neonboard/internal/models"
)

const (
	cpufreqMinPath = "/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_min_freq"
	cpufreqCurPath = "/sys/devices/system/cpu/cpu0/cpufreq/scaling_cur_freq"
)

// HostPlatform reads the local machine through gopsutil.
type HostPlatform struct {
	// Process handles are kept between scrapes so per-process CPU percent is
	// the delta since the previous scrape rather than a lifetime average.
	mu    sync.Mutex
	procs map[int32]trackedProcess
}

// trackedProcess pairs a handle with its creation time so a reused PID is
// not mistaken for the process it replaced.
type trackedProcess struct {
	proc    *process.Process
	created int64
}

// NewHostPlatform creates a ready-to-use HostPlatform.
func NewHostPlatform() *HostPlatform {
	return &HostPlatform{procs: make(map[int32]trackedProcess)}
}

func (h *HostPlatform) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("cpu: no utilisation reported")
	}
	return pcts[0], nil
}

func (h *HostPlatform) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (h *HostPlatform) BootTime(ctx context.Context) (time.Time, error) {
	secs, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

func (h *HostPlatform) Topology(ctx context.Context) (models.Topology, error) {
	var t models.Topology
	var err error

	if t.Threads, err = cpu.CountsWithContext(ctx, true); err != nil {
		return t, fmt.Errorf("logical cpu count: %w", err)
	}
	if t.Cores, err = cpu.CountsWithContext(ctx, false); err != nil {
		return t, fmt.Errorf("physical cpu count: %w", err)
	}

	// Sockets and clocks are best-effort.
	var infoMHz float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		ids := make([]string, 0, len(infos))
		for _, in := range infos {
			ids = append(ids, in.PhysicalID)
			if in.Mhz > infoMHz {
				infoMHz = in.Mhz
			}
		}
		t.Sockets = countSockets(ids)
	}
	t.BaseMHz = readKHzAsMHz(cpufreqMinPath)
	t.CurrentMHz = readKHzAsMHz(cpufreqCurPath)
	if t.CurrentMHz == 0 {
		t.CurrentMHz = infoMHz
	}
	return t, nil
}

func (h *HostPlatform) DiskUsage(ctx context.Context, path string) (models.DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return models.DiskUsage{Path: path}, err
	}
	return models.NewDiskUsage(path, u.Total, u.Used, u.Free), nil
}

func (h *HostPlatform) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (h *HostPlatform) Sensors(ctx context.Context) ([]SensorReading, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	// gopsutil returns partial results alongside warnings for unreadable
	// sensors; keep whatever was read.
	if err != nil && len(temps) == 0 {
		return nil, err
	}
	out := make([]SensorReading, 0, len(temps))
	for _, t := range temps {
		out = append(out, SensorReading{Key: t.SensorKey, Celsius: t.Temperature})
	}
	return out, nil
}

func (h *HostPlatform) Processes(ctx context.Context) ([]models.ProcessSample, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	alive := make(map[int32]trackedProcess, len(pids))
	samples := make([]models.ProcessSample, 0, len(pids))
	for _, pid := range pids {
		tp, err := h.track(ctx, pid)
		if err != nil {
			continue // exited already
		}
		p := tp.proc
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		mi, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			continue
		}
		pct, err := p.PercentWithContext(ctx, 0)
		if err != nil {
			continue
		}
		alive[pid] = tp
		samples = append(samples, models.ProcessSample{
			PID:        pid,
			Name:       name,
			CPUPercent: pct,
			RSSBytes:   mi.RSS,
		})
	}
	h.procs = alive
	return samples, nil
}

// track returns the cached handle for pid, or a fresh one when pid is new
// or now belongs to a different process. Callers hold h.mu.
func (h *HostPlatform) track(ctx context.Context, pid int32) (trackedProcess, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return trackedProcess{}, err
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return trackedProcess{}, err
	}
	if prev, ok := h.procs[pid]; ok && prev.created == created {
		return prev, nil
	}
	return trackedProcess{proc: p, created: created}, nil
}

// readKHzAsMHz reads a cpufreq sysfs file (kHz). Missing files read as 0.
func readKHzAsMHz(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0
	}
	return khz / 1000
}
