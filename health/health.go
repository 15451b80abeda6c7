// Package health periodically samples host resource usage and hands it to a
// publisher. It runs on its own and never touches the reader.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	log "github.com/sirupsen/logrus"
)

const DefaultInterval = 30 * time.Second

// Config holds health reporter settings.
type Config struct {
	Interval time.Duration `yaml:"interval"`
	DiskPath string        `yaml:"disk_path"`
}

// Stats is one sample of host resource usage.
type Stats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryTotal   uint64    `json:"memory_total"`
	DiskPercent   float64   `json:"disk_percent"`
	Uptime        uint64    `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sampler takes one Stats sample.
type Sampler interface {
	Sample(ctx context.Context) (Stats, error)
}

// SystemSampler samples the local host through gopsutil.
type SystemSampler struct {
	DiskPath string
}

// Sample implements Sampler.
func (s SystemSampler) Sample(ctx context.Context) (Stats, error) {
	var st Stats

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return st, fmt.Errorf("sample cpu: %w", err)
	}
	if len(pct) > 0 {
		st.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, fmt.Errorf("sample memory: %w", err)
	}
	st.MemoryPercent, st.MemoryUsed, st.MemoryTotal = vm.UsedPercent, vm.Used, vm.Total

	path := s.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return st, fmt.Errorf("sample disk %s: %w", path, err)
	}
	st.DiskPercent = du.UsedPercent

	if st.Uptime, err = host.UptimeWithContext(ctx); err != nil {
		return st, fmt.Errorf("sample uptime: %w", err)
	}

	st.Timestamp = time.Now()
	return st, nil
}

// Reporter samples on a fixed interval.
type Reporter struct {
	sampler  Sampler
	interval time.Duration
	publish  func(Stats)
}

// NewReporter creates a Reporter. A zero interval uses DefaultInterval.
func NewReporter(s Sampler, interval time.Duration, publish func(Stats)) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{sampler: s, interval: interval, publish: publish}
}

// Run samples once immediately and then every interval until ctx is done.
// Sampling failures are logged and skipped.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.report(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	st, err := r.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("Health sample: %v", err)
		}
		return
	}
	log.WithFields(log.Fields{
		"cpu":    fmt.Sprintf("%.1f%%", st.CPUPercent),
		"memory": fmt.Sprintf("%.1f%%", st.MemoryPercent),
		"disk":   fmt.Sprintf("%.1f%%", st.DiskPercent),
	}).Debug("Health sample")
	if r.publish != nil {
		r.publish(st)
	}
}
