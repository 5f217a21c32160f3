package collector

import (
	"context"
	"time"

	"github.com/vesaa/neonboard/internal/models"
)

// StubPlatform is a Platform with fixed readings. A non-nil error field makes
// the matching method fail.
type StubPlatform struct {
	CPU      float64
	Memory   float64
	Boot     time.Time
	Topo     models.Topology
	Disks    map[string]models.DiskUsage // keyed by path; also drives Exists
	Readings []SensorReading
	Procs    []models.ProcessSample

	CPUErr, MemoryErr, BootErr, TopologyErr error
	DiskErr, SensorErr, ProcessErr          error
}

var _ Platform = (*StubPlatform)(nil)

func (s *StubPlatform) CPUPercent(context.Context, time.Duration) (float64, error) {
	return s.CPU, s.CPUErr
}

func (s *StubPlatform) MemoryPercent(context.Context) (float64, error) {
	return s.Memory, s.MemoryErr
}

func (s *StubPlatform) BootTime(context.Context) (time.Time, error) {
	return s.Boot, s.BootErr
}

func (s *StubPlatform) Topology(context.Context) (models.Topology, error) {
	return s.Topo, s.TopologyErr
}

func (s *StubPlatform) DiskUsage(_ context.Context, path string) (models.DiskUsage, error) {
	if s.DiskErr != nil {
		return models.DiskUsage{Path: path}, s.DiskErr
	}
	d, ok := s.Disks[path]
	if !ok {
		return models.DiskUsage{Path: path}, ErrPathAbsent
	}
	return d, nil
}

func (s *StubPlatform) Exists(path string) bool {
	_, ok := s.Disks[path]
	return ok
}

func (s *StubPlatform) Sensors(context.Context) ([]SensorReading, error) {
	return s.Readings, s.SensorErr
}

func (s *StubPlatform) Processes(context.Context) ([]models.ProcessSample, error) {
	return s.Procs, s.ProcessErr
}
