// Package stats reports the resource usage of the build process.
// It uses gopsutil for cross-platform telemetry.
package stats

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is one sample of the current process.
type Snapshot struct {
	OS         string    `json:"os"`
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"` // since the previous sample
	Threads    int32     `json:"threads"`
	SysMemUsed float64   `json:"sys_mem_used"` // percent 0-100
	SampledAt  time.Time `json:"sampled_at"`
}

// Collector samples the running process.
type Collector struct {
	mu   sync.Mutex
	proc *process.Process
	os   string
}

// NewCollector returns a Collector for the current process.
func NewCollector() (*Collector, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	return &Collector{proc: p, os: detailedOS()}, nil
}

// Collect takes a snapshot. Fields gopsutil cannot read on this platform are
// left zero.
func (c *Collector) Collect() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Snapshot{OS: c.os, SampledAt: time.Now()}
	if mi, err := c.proc.MemoryInfo(); err == nil {
		snap.RSSBytes = mi.RSS
	}
	if pct, err := c.proc.Percent(0); err == nil {
		snap.CPUPercent = pct
	}
	if n, err := c.proc.NumThreads(); err == nil {
		snap.Threads = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.SysMemUsed = vm.UsedPercent
	}
	return snap
}

// RSSMegabytes is RSS rounded down to whole MiB, for log lines.
func (s *Snapshot) RSSMegabytes() uint64 {
	return s.RSSBytes >> 20
}

// detailedOS returns a descriptive OS version string, or runtime.GOOS as fallback.
func detailedOS() string {
	info, err := host.Info()
	if err == nil && info.Platform != "" {
		if info.PlatformVersion != "" {
			return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		}
		return info.Platform
	}
	return runtime.GOOS
}
