package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cybersentinel/detection-loop/internal/collaborators"
	"github.com/cybersentinel/detection-loop/internal/config"
	"github.com/cybersentinel/detection-loop/internal/deployer"
	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/feedback"
	"github.com/cybersentinel/detection-loop/internal/monitor"
	"github.com/cybersentinel/detection-loop/internal/observability"
	"github.com/cybersentinel/detection-loop/internal/tuning"
)

const maxCycleHistory = 100

// Coordinator orchestrates the continuous detection-rule improvement
// loop: collect new detections, deploy qualifying rules, collect
// feedback, monitor performance, tune underperforming rules, and record
// the cycle's findings in the knowledge graph.
type Coordinator struct {
	cfg config.Config

	deployer      *deployer.Deployer
	feedbackStore *feedback.Store
	monitor       *monitor.Monitor
	tuningEngine  *tuning.Engine

	incidents collaborators.IncidentSource
	alerts    collaborators.AlertSource
	kg        collaborators.KnowledgeGraphSink
	rules     collaborators.RuleRepository
	audit     collaborators.CycleAuditSink      // optional, may be nil
	resources *collaborators.ResourceSampler // optional, may be nil

	logger  *observability.Logger
	metrics *observability.Metrics

	mu            sync.Mutex
	running       bool
	deployedRules map[string]struct{}
	currentCycle  *Cycle
	cycleHistory  []Cycle

	stop chan struct{}
	done chan struct{}
}

// Dependencies bundles every collaborator the Coordinator needs beyond
// config. Fields left nil fall back to safe no-ops where one exists
// (KnowledgeGraph) or are simply never exercised (Audit).
type Dependencies struct {
	Registry        *engine.Registry
	IncidentSource  collaborators.IncidentSource
	AlertSource     collaborators.AlertSource
	KnowledgeGraph  collaborators.KnowledgeGraphSink
	RuleRepository  collaborators.RuleRepository
	FeedbackStore   *feedback.Store
	Monitor         *monitor.Monitor
	AuditSink       collaborators.CycleAuditSink
	ResourceSampler *collaborators.ResourceSampler
	Logger          *observability.Logger
	Metrics         *observability.Metrics
}

// New constructs a Coordinator from config and its collaborators.
func New(cfg config.Config, deps Dependencies) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewNop()
	}
	logger = logger.WithComponent("coordinator")

	kg := deps.KnowledgeGraph
	if kg == nil {
		kg = collaborators.NoopKnowledgeGraphSink{}
	}

	targets := make([]engine.Target, 0, len(cfg.Deployment.Targets))
	for _, t := range cfg.Deployment.Targets {
		targets = append(targets, engine.Target{
			Name: t.Name, EngineType: t.EngineType, Endpoint: t.Endpoint,
			Username: t.Username, Password: t.Password, Enabled: t.Enabled,
		})
	}

	d := deployer.New(deps.Registry, targets, logger)

	source := &tuningSource{
		repo: deps.RuleRepository, feedbackStore: deps.FeedbackStore,
		monitor: deps.Monitor, evaluationHours: cfg.Loop.PerformanceWindowHours,
	}
	tuningEngine := tuning.New(source, cfg.Tuning, logger)

	return &Coordinator{
		cfg:           cfg,
		deployer:      d,
		feedbackStore: deps.FeedbackStore,
		monitor:       deps.Monitor,
		tuningEngine:  tuningEngine,
		incidents:     deps.IncidentSource,
		alerts:        deps.AlertSource,
		kg:            kg,
		rules:         deps.RuleRepository,
		audit:         deps.AuditSink,
		resources:     deps.ResourceSampler,
		logger:        logger,
		metrics:       deps.Metrics,
		deployedRules: make(map[string]struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start runs detection cycles back-to-back, sleeping
// cfg.Loop.CycleIntervalMinutes between each, until Stop is called or ctx
// is cancelled. It returns once the loop has fully wound down.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("starting detection loop")
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(c.done)
		c.logger.Info("detection loop stopped")
	}()

	interval := time.Duration(c.cfg.Loop.CycleIntervalMinutes) * time.Minute
	for {
		cycle := c.RunSingleCycle(ctx)
		if c.metrics != nil {
			c.metrics.CyclesTotal.WithLabelValues(string(cycle.Status)).Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		default:
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.stop:
			timer.Stop()
			return
		}
	}
}

// Stop signals a running loop to exit after its current cycle and waits
// for it to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	close(c.stop)
	<-c.done
}

// RunSingleCycle executes exactly one detection cycle: the six steps
// run in fixed order, each isolated so a failure in one does not prevent
// the rest from running.
func (c *Coordinator) RunSingleCycle(ctx context.Context) Cycle {
	cycleID := "cycle_" + uuid.NewString()
	cycle := Cycle{
		CycleID:           cycleID,
		StartTime:         time.Now(),
		Status:            StatusRunning,
		PerformanceScores: make(map[string]float64),
	}
	logger := c.logger.WithCycleID(cycleID)
	logger.Info("starting detection cycle")

	since := time.Now().Add(-time.Duration(c.cfg.Loop.LookbackHours) * time.Hour)

	// Step 1: collect new incidents and candidate rules.
	incidents, candidates, err := c.collectNewDetections(ctx, since)
	cycle.addError(err)
	cycle.IncidentsProcessed = len(incidents)

	// Step 2: evaluate and deploy qualifying candidate rules.
	deployed, err := c.evaluateAndDeployRules(ctx, candidates)
	cycle.addError(err)
	cycle.RulesDeployed = deployed

	// Step 3: collect feedback on deployed rules.
	feedbackCount, err := c.collectRuleFeedback(ctx)
	cycle.addError(err)
	cycle.FeedbackCollected = feedbackCount

	// Step 4: monitor rule performance.
	scores, err := c.monitorRulePerformance(ctx)
	cycle.addError(err)
	cycle.PerformanceScores = scores

	// Step 5: tune underperforming rules.
	if c.cfg.Loop.TuningEnabled {
		tunedCount, err := c.tuneRules(scores)
		cycle.addError(err)
		cycle.RulesTuned = tunedCount
	}

	// Step 6: record cycle findings in the knowledge graph.
	if err := c.kg.Update(ctx, cycleID, incidents, scores); err != nil {
		cycle.addError(fmt.Errorf("update knowledge graph: %w", err))
	}

	cycle.EndTime = time.Now()
	if len(cycle.Errors) > 0 {
		cycle.Status = StatusFailed
	} else {
		cycle.Status = StatusCompleted
	}

	logger.WithDuration(cycle.EndTime.Sub(cycle.StartTime)).Info("detection cycle finished")
	c.recordCycle(cycle)
	return cycle
}
