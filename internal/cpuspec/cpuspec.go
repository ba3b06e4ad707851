// Package cpuspec picks interpreter thread counts from the host CPU.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName     string
	PhysicalCores int
	LogicalCores  int
	Hybrid        bool // performance and efficiency cores mixed
}

// GetCPUSpec returns the host CPU description.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Hybrid:        cpuid.CPU.Supports(cpuid.HYBRID_CPU),
	}
}

// GetOptimalThreadCount returns the recommended interpreter thread count.
// SMT siblings add little for tflite inference, so physical cores are
// preferred; the result never exceeds what the runtime can schedule (VMs and
// cgroup limits report fewer CPUs than the package has).
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	threads := c.PhysicalCores
	if threads <= 0 {
		threads = c.LogicalCores
	}
	// Efficiency cores slow down the whole interpreter; use half the package
	if c.Hybrid && threads > 1 {
		threads /= 2
	}
	if threads <= 0 {
		threads = available
	}
	return max(1, min(threads, available))
}

// ResolveThreads returns configured when positive, otherwise the optimal count.
func ResolveThreads(configured int) int {
	if configured > 0 {
		return min(configured, runtime.NumCPU())
	}
	return GetCPUSpec().GetOptimalThreadCount()
}
