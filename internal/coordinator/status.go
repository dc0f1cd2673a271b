package coordinator

import (
	"context"

	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/config"
	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/monitor"
)

// UpdateRuntimeConfig hot-reloads deployment targets and health-alert
// thresholds without restarting the loop, matching the operator-facing
// overlay a config.Watcher pushes on change.
func (c *Coordinator) UpdateRuntimeConfig(deployment config.DeploymentConfig, thresholds config.ThresholdConfig) {
	targets := make([]engine.Target, 0, len(deployment.Targets))
	for _, t := range deployment.Targets {
		targets = append(targets, engine.Target{
			Name: t.Name, EngineType: t.EngineType, Endpoint: t.Endpoint,
			Username: t.Username, Password: t.Password, Enabled: t.Enabled,
		})
	}
	c.deployer.UpdateTargets(targets)

	if c.monitor != nil {
		c.monitor.UpdateThresholds(monitor.Thresholds{
			MinPerformanceScore:  thresholds.MinPerformanceScore,
			MaxFalsePositiveRate: thresholds.MaxFalsePositiveRate,
			MinTruePositiveRate:  thresholds.MinTruePositiveRate,
			MaxAlertFrequency:    thresholds.MaxAlertFrequency,
			MinReliabilityScore:  thresholds.MinReliabilityScore,
			MaxVolatility:        thresholds.MaxVolatility,
		})
	}

	c.mu.Lock()
	c.cfg.Deployment = deployment
	c.cfg.Thresholds = thresholds
	c.mu.Unlock()

	c.logger.Info("runtime configuration reloaded")
}

// recordCycle appends cycle to the bounded history, clears currentCycle,
// and mirrors it to the audit sink if one is configured. Audit failures
// are logged, not propagated: a cycle that already ran is not allowed to
// fail retroactively because its own record-keeping hiccuped.
func (c *Coordinator) recordCycle(cycle Cycle) {
	c.mu.Lock()
	c.cycleHistory = append(c.cycleHistory, cycle)
	if len(c.cycleHistory) > maxCycleHistory {
		c.cycleHistory = c.cycleHistory[len(c.cycleHistory)-maxCycleHistory:]
	}
	c.currentCycle = nil
	c.mu.Unlock()

	if c.audit == nil {
		return
	}
	rec := collaborators.CycleRecord{
		CycleID:            cycle.CycleID,
		Status:             string(cycle.Status),
		StartTime:          cycle.StartTime,
		EndTime:            cycle.EndTime,
		IncidentsProcessed: cycle.IncidentsProcessed,
		RulesDeployed:      cycle.RulesDeployed,
		RulesTuned:         cycle.RulesTuned,
		FeedbackCollected:  cycle.FeedbackCollected,
		Errors:             cycle.Errors,
	}
	if err := c.audit.RecordCycle(context.Background(), rec); err != nil {
		c.logger.WithCycleID(cycle.CycleID).WithError(err).Warn("failed to persist cycle audit record")
	}
}

// RecentPerformance summarizes the coordinator's last few cycles.
type RecentPerformance struct {
	CyclesConsidered        int
	AvgIncidentsPerCycle    float64
	AvgRulesDeployedPerCycle float64
	SuccessRate             float64
}

// Status is a point-in-time snapshot of the coordinator's run state.
type Status struct {
	Running            bool
	TotalCycles        int
	DeployedRulesCount int
	RecentPerformance  RecentPerformance
}

// GetStatus reports whether the loop is running, how many rules are
// currently deployed, and recent-cycle performance statistics, mirroring
// get_status.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		Running:            c.running,
		TotalCycles:        len(c.cycleHistory),
		DeployedRulesCount: len(c.deployedRules),
	}

	recent := c.cycleHistory
	const window = 5
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	if len(recent) == 0 {
		return status
	}

	var incidents, deployed, succeeded int
	for _, cyc := range recent {
		incidents += cyc.IncidentsProcessed
		deployed += cyc.RulesDeployed
		if cyc.Status == StatusCompleted {
			succeeded++
		}
	}
	n := float64(len(recent))
	status.RecentPerformance = RecentPerformance{
		CyclesConsidered:         len(recent),
		AvgIncidentsPerCycle:     float64(incidents) / n,
		AvgRulesDeployedPerCycle: float64(deployed) / n,
		SuccessRate:              float64(succeeded) / n,
	}
	return status
}

// GetCycleHistory returns up to limit of the most recent completed
// cycles, newest last. limit <= 0 returns the full retained history.
func (c *Coordinator) GetCycleHistory(limit int) []Cycle {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.cycleHistory
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Cycle, len(history))
	copy(out, history)
	return out
}
