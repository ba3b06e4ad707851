package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/observability/metrics"
)

// systemStatsTimeout bounds the gopsutil calls made by /health.
const systemStatsTimeout = 2 * time.Second

type memoryStatus struct {
	ProcessRSS   uint64  `json:"process_rss"`
	SystemTotal  uint64  `json:"system_total"`
	SystemUsed   uint64  `json:"system_used"`
	UsagePercent float64 `json:"usage_percent"`
}

type healthResponse struct {
	Status          string             `json:"status"`
	Version         string             `json:"version"`
	BuildDate       string             `json:"build_date"`
	Uptime          string             `json:"uptime"`
	UptimeSeconds   float64            `json:"uptime_seconds"`
	Timestamp       string             `json:"timestamp"`
	Memory          *memoryStatus      `json:"memory,omitempty"`
	Identifications map[string]float64 `json:"identifications,omitempty"`
}

// healthCheck reports liveness, build metadata and memory usage.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	resp := healthResponse{
		Status:        "healthy",
		Version:       s.build.GetVersion(),
		BuildDate:     s.build.GetBuildDate(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Timestamp:     time.Now().Format(time.RFC3339),
		Memory:        collectMemory(c.Request().Context()),
	}

	if s.metrics != nil {
		resp.Identifications = map[string]float64{}
		for _, outcome := range []string{
			metrics.OutcomeIdentified,
			metrics.OutcomeFallback,
			metrics.OutcomeNotIdentified,
			metrics.OutcomeFailure,
		} {
			resp.Identifications[outcome] = s.metrics.Identify.Count(outcome)
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// collectMemory returns nil when the platform does not expose the stats.
func collectMemory(ctx context.Context) *memoryStatus {
	ctx, cancel := context.WithTimeout(ctx, systemStatsTimeout)
	defer cancel()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		GetLogger().Debug("virtual memory stats unavailable", logger.Error(err))
		return nil
	}
	status := &memoryStatus{
		SystemTotal:  vm.Total,
		SystemUsed:   vm.Used,
		UsagePercent: vm.UsedPercent,
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // G115: pid fits in int32
	if err != nil {
		return status
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		status.ProcessRSS = info.RSS
	}
	return status
}
