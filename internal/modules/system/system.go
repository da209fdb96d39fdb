package system

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "system"

const (
	ScopeHost    = "host"
	ScopeDisk    = "disk"
	ScopeNetwork = "network"
)

type Settings struct {
	// Scope selects the record shape: one host record, one record per
	// mountpoint or one record per network interface.
	Scope      string   `yaml:"scope"`
	Hostname   string   `yaml:"hostname"`
	Paths      []string `yaml:"paths"`
	Interfaces []string `yaml:"interfaces"`
}

type Collector struct {
	name     string
	settings Settings
	hostname string
	logger   *zap.Logger
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	switch settings.Scope {
	case "":
		settings.Scope = ScopeHost
	case ScopeHost, ScopeDisk, ScopeNetwork:
	default:
		return nil, fmt.Errorf("unsupported scope %q", settings.Scope)
	}

	hostname := settings.Hostname
	if hostname == "" {
		var err error
		if hostname, err = os.Hostname(); err != nil {
			logger.Warn("Could not resolve hostname", zap.Error(err))
			hostname = source.UnknownLabelValue
		}
	}

	return &Collector{
		name:     cfg.Name,
		settings: settings,
		hostname: hostname,
		logger:   logger,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	switch c.settings.Scope {
	case ScopeDisk:
		return c.collectDisk(ctx)
	case ScopeNetwork:
		return c.collectNetwork(ctx)
	default:
		return c.collectHost(ctx)
	}
}

// collectHost gathers host wide statistics concurrently into one record.
// Groups that fail are left out; the cycle fails only if every group does.
func (c *Collector) collectHost(ctx context.Context) ([]source.Record, error) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		rec = source.Record{"host": c.hostname}
	)

	groups := []struct {
		name    string
		collect func(context.Context) (source.Record, error)
	}{
		{"cpu", c.cpuStats},
		{"memory", c.memoryStats},
		{"load", c.loadStats},
		{"uptime", c.uptimeStats},
	}

	errCh := make(chan error, len(groups))
	for _, g := range groups {
		wg.Add(1)
		go func(name string, collect func(context.Context) (source.Record, error)) {
			defer wg.Done()
			fields, err := collect(ctx)
			if err != nil {
				errCh <- fmt.Errorf("%s stats: %w", name, err)
				return
			}
			mu.Lock()
			for k, v := range fields {
				rec[k] = v
			}
			mu.Unlock()
		}(g.name, g.collect)
	}

	wg.Wait()
	close(errCh)

	if err := common.HandleErrors(errCh); err != nil {
		if len(rec) == 1 {
			return nil, err
		}
		c.logger.Debug("Partial host statistics", zap.Error(err))
	}
	return []source.Record{rec}, nil
}

func (c *Collector) cpuStats(ctx context.Context) (source.Record, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(percentages) == 0 {
		return nil, fmt.Errorf("no cpu data")
	}
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	return source.Record{"cpu_percent": percentages[0], "cpu_count": counts}, nil
}

func (c *Collector) memoryStats(ctx context.Context) (source.Record, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	rec := source.Record{
		"mem_total_bytes":     vm.Total,
		"mem_used_bytes":      vm.Used,
		"mem_available_bytes": vm.Available,
		"mem_used_percent":    vm.UsedPercent,
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		rec["swap_used_percent"] = swap.UsedPercent
	}
	return rec, nil
}

func (c *Collector) loadStats(ctx context.Context) (source.Record, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return source.Record{"load1": avg.Load1, "load5": avg.Load5, "load15": avg.Load15}, nil
}

func (c *Collector) uptimeStats(ctx context.Context) (source.Record, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return source.Record{"uptime_seconds": uptime}, nil
}

func (c *Collector) collectDisk(ctx context.Context) ([]source.Record, error) {
	paths := c.settings.Paths
	if len(paths) == 0 {
		partitions, err := disk.PartitionsWithContext(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		for _, p := range partitions {
			paths = append(paths, p.Mountpoint)
		}
	}

	records := make([]source.Record, 0, len(paths))
	for _, path := range paths {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			c.logger.Warn("Disk usage unavailable", zap.String("path", path), zap.Error(err))
			continue
		}
		records = append(records, source.Record{
			"host":              c.hostname,
			"mountpoint":        path,
			"fstype":            usage.Fstype,
			"disk_total_bytes":  usage.Total,
			"disk_used_bytes":   usage.Used,
			"disk_free_bytes":   usage.Free,
			"disk_used_percent": usage.UsedPercent,
		})
	}
	if len(records) == 0 && len(paths) > 0 {
		return nil, fmt.Errorf("disk usage unavailable for %v", paths)
	}
	return records, nil
}

func (c *Collector) collectNetwork(ctx context.Context) ([]source.Record, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("network counters: %w", err)
	}

	wanted := make(map[string]struct{}, len(c.settings.Interfaces))
	for _, name := range c.settings.Interfaces {
		wanted[name] = struct{}{}
	}

	var records []source.Record
	for _, stat := range counters {
		if _, ok := wanted[stat.Name]; len(wanted) > 0 && !ok {
			continue
		}
		records = append(records, source.Record{
			"host":         c.hostname,
			"interface":    stat.Name,
			"bytes_sent":   stat.BytesSent,
			"bytes_recv":   stat.BytesRecv,
			"packets_sent": stat.PacketsSent,
			"packets_recv": stat.PacketsRecv,
			"errors_in":    stat.Errin,
			"errors_out":   stat.Errout,
		})
	}
	return records, nil
}
