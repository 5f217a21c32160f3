package collector

import (
	"context"
	"strings"
	"time"

	"github.com/vesaa/neonboard/internal/models"
)

// Platform supplies OS readings. The production implementation is backed by
// gopsutil; tests use a fixed stub.
type Platform interface {
	// CPUPercent samples total CPU utilisation over window.
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	BootTime(ctx context.Context) (time.Time, error)
	// Topology returns thread and core counts; sockets and clocks may be zero
	// when the platform cannot report them.
	Topology(ctx context.Context) (models.Topology, error)
	DiskUsage(ctx context.Context, path string) (models.DiskUsage, error)
	Exists(path string) bool
	Sensors(ctx context.Context) ([]SensorReading, error)
	// Processes returns the process table. Processes that exit while being
	// read are left out.
	Processes(ctx context.Context) ([]models.ProcessSample, error)
}

// SensorReading is an unclassified temperature sensor value.
type SensorReading struct {
	Key     string
	Celsius float64
}

// sensorFamilies maps hwmon driver prefixes to reporting families.
// The first family with a matching prefix wins.
var sensorFamilies = []struct {
	family   string
	prefixes []string
}{
	{"cpu", []string{"coretemp", "k10temp", "zenpower", "cpu_thermal", "cpu"}},
	{"chipset", []string{"pch", "chipset", "acpitz"}},
	{"nvme", []string{"nvme"}},
	{"disk", []string{"drivetemp", "hdd", "disk", "sata"}},
}

// ClassifySensor returns the family for a sensor key, or false when the
// sensor belongs to no known family.
func ClassifySensor(key string) (string, bool) {
	k := strings.ToLower(key)
	for _, f := range sensorFamilies {
		for _, p := range f.prefixes {
			if strings.HasPrefix(k, p) {
				return f.family, true
			}
		}
	}
	return "", false
}

// ClassifySensors keeps the readings of known families, in input order.
func ClassifySensors(readings []SensorReading) []models.TemperatureReading {
	out := make([]models.TemperatureReading, 0, len(readings))
	for _, r := range readings {
		family, ok := ClassifySensor(r.Key)
		if !ok {
			continue
		}
		out = append(out, models.TemperatureReading{Family: family, Sensor: r.Key, Celsius: r.Celsius})
	}
	return out
}

// countSockets counts distinct non-empty physical package ids. Zero means the
// platform did not report any.
func countSockets(physicalIDs []string) int {
	seen := make(map[string]struct{}, len(physicalIDs))
	for _, id := range physicalIDs {
		if id = strings.TrimSpace(id); id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
