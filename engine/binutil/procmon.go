package binutil

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/gwutils"
)

// ProcessStats is one sample of the process resource usage
type ProcessStats struct {
	CPUPercent float64
	RSS        uint64
	Goroutines int
}

// ProcessMonitor samples the resource usage of the current process
type ProcessMonitor struct {
	p *process.Process
}

// NewProcessMonitor finds the current process
func NewProcessMonitor() (*ProcessMonitor, error) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "find process %d", pid)
	}
	return &ProcessMonitor{p: p}, nil
}

// Sample returns the current usage; CPU percent is measured since the previous sample
func (pm *ProcessMonitor) Sample(ctx context.Context) (ProcessStats, error) {
	var st ProcessStats
	pcnt, err := pm.p.CPUPercentWithContext(ctx)
	if err != nil {
		return st, errors.Wrap(err, "cpu percent")
	}
	mem, err := pm.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return st, errors.Wrap(err, "memory info")
	}
	st.CPUPercent = pcnt
	st.RSS = mem.RSS
	st.Goroutines = runtime.NumGoroutine()
	return st, nil
}

// StartProcessMonitor logs the process usage every interval until ctx is done
func StartProcessMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	pm, err := NewProcessMonitor()
	if err != nil {
		gwlog.Errorf("process monitor disabled: %v", err)
		return
	}
	gwlog.Infof("process monitor: found process %s", pm.p)

	go gwutils.RepeatUntilPanicless(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			st, err := pm.Sample(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				gwlog.Panicf("process monitor: %v", err)
			}
			gwlog.Infof("process monitor: cpu %.1f%% rss %dMB goroutines %d", st.CPUPercent, st.RSS>>20, st.Goroutines)
		}
	})
}
