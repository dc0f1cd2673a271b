package collaborators

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSampler measures the local process host's CPU/memory headroom
// and combines it into a single efficiency score, mirroring
// performance_monitor.py's _collect_resource_metrics (cpu_score +
// memory_score averaged, lower usage scoring higher).
type ResourceSampler struct{}

// NewResourceSampler constructs a ResourceSampler.
func NewResourceSampler() *ResourceSampler {
	return &ResourceSampler{}
}

// Sample returns the current combined efficiency score in [0,1].
func (s *ResourceSampler) Sample(ctx context.Context) (float64, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("sample cpu: %w", err)
	}
	var cpuUsage float64
	if len(cpuPercents) > 0 {
		cpuUsage = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("sample memory: %w", err)
	}

	cpuScore := 1.0 - cpuUsage/100.0
	if cpuScore < 0 {
		cpuScore = 0
	}
	memScore := 1.0 - vm.UsedPercent/100.0
	if memScore < 0 {
		memScore = 0
	}

	return (cpuScore + memScore) / 2.0, nil
}
