package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot carries the current resource gauges.
type Snapshot struct {
	DiskPct     float64
	MemPct      float64
	CPUPct      float64
	DBReachable bool
}

// Collector samples host resource usage and database reachability.
type Collector interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// Pinger reports database reachability. Satisfied by storage.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemCollector reads gauges from the host via gopsutil.
type SystemCollector struct {
	diskPath  string
	cpuWindow time.Duration
	pinger    Pinger
	logger    zerolog.Logger
}

// NewSystemCollector constructs a host gauge collector. pinger may be nil
// when no database is configured; DBReachable is then reported false.
func NewSystemCollector(diskPath string, cpuWindow time.Duration, pinger Pinger, logger zerolog.Logger) *SystemCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	if cpuWindow <= 0 {
		cpuWindow = time.Second
	}
	return &SystemCollector{
		diskPath:  diskPath,
		cpuWindow: cpuWindow,
		pinger:    pinger,
		logger:    logger.With().Str("component", "health").Logger(),
	}
}

// Sample reads all gauges. A failure of any single gauge fails the sample;
// callers treat it as an evaluation error for the affected rule only.
func (c *SystemCollector) Sample(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample disk usage: %w", err)
	}
	snap.DiskPct = usage.UsedPercent

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample memory: %w", err)
	}
	snap.MemPct = vm.UsedPercent

	cpuPcts, err := cpu.PercentWithContext(ctx, c.cpuWindow, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpuPcts) > 0 {
		snap.CPUPct = cpuPcts[0]
	}

	if c.pinger != nil {
		if pingErr := c.pinger.Ping(ctx); pingErr != nil {
			c.logger.Warn().Err(pingErr).Msg("database unreachable")
		} else {
			snap.DBReachable = true
		}
	}

	return snap, nil
}

var _ Collector = (*SystemCollector)(nil)
