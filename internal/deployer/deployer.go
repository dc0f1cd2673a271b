// Package deployer implements the Rule Deployer (spec.md §4.2): resolve
// engine targets, probe liveness in parallel, deploy to surviving targets
// in parallel, and summarize success. Grounded on the goroutine +
// buffered-channel + sync.WaitGroup fan-out pattern in the teacher's
// internal/datasource.Aggregator.Enrich, and on SigmaRuleDeployer.deploy_rule
// in _examples/original_source/detection/rule_deployment.py.
package deployer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cybersentinel/detection-loop/internal/engine"
	"github.com/cybersentinel/detection-loop/internal/observability"
	"github.com/cybersentinel/detection-loop/internal/rule"
)

// Deployer orchestrates deployment of a rule across a set of configured
// targets.
type Deployer struct {
	mu       sync.RWMutex
	registry *engine.Registry
	targets  []engine.Target
	logger   *observability.Logger
}

// New constructs a Deployer over a fixed set of targets.
func New(registry *engine.Registry, targets []engine.Target, logger *observability.Logger) *Deployer {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Deployer{registry: registry, targets: targets, logger: logger.WithComponent("deployer")}
}

// UpdateTargets replaces the configured target set, used to hot-reload
// deployment targets from an on-disk overlay without restarting.
func (d *Deployer) UpdateTargets(targets []engine.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = targets
}

func (d *Deployer) snapshotTargets() []engine.Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]engine.Target(nil), d.targets...)
}

// resolveTargets returns the enabled targets named in engineNames, in the
// order they appear in d.targets (not the order of engineNames).
func (d *Deployer) resolveTargets(engineNames []string) []engine.Target {
	wanted := make(map[string]struct{}, len(engineNames))
	for _, name := range engineNames {
		wanted[name] = struct{}{}
	}

	var resolved []engine.Target
	for _, t := range d.snapshotTargets() {
		if !t.Enabled {
			continue
		}
		if _, ok := wanted[t.EngineType]; ok {
			resolved = append(resolved, t)
		}
	}
	return resolved
}

// DeployRule resolves engine names to enabled targets, probes them in
// parallel, deploys the rule to surviving targets in parallel, and
// returns true iff strictly more than half of the per-target
// DeploymentResults succeeded. When autoDeploy is false, every resolved
// target's endpoint is blanked before probing or deploying, forcing
// each adapter's validation-only mode (§4.1) — the rule is translated
// and checked against every target without ever touching a live
// engine, mirroring SigmaRuleDeployer.deploy_rule's auto_deploy=False
// path in _examples/original_source/detection/rule_deployment.py.
func (d *Deployer) DeployRule(ctx context.Context, r *rule.Rule, engineNames []string, autoDeploy bool) (bool, []engine.DeploymentResult) {
	targets := d.resolveTargets(engineNames)
	if len(targets) == 0 {
		return false, nil
	}
	if !autoDeploy {
		targets = dryRunTargets(targets)
	}

	alive := d.probeAll(ctx, targets)
	if len(alive) == 0 {
		return false, nil
	}

	results := d.deployAll(ctx, r, alive)

	successCount := 0
	for _, res := range results {
		if res.Success {
			successCount++
		}
	}

	success := float64(successCount) > float64(len(results))*0.5
	return success, results
}

// dryRunTargets returns a copy of targets with every Endpoint cleared,
// used to force validation-only deployment when auto_deploy is false.
func dryRunTargets(targets []engine.Target) []engine.Target {
	out := make([]engine.Target, len(targets))
	for i, t := range targets {
		t.Endpoint = ""
		out[i] = t
	}
	return out
}

// probeAll probes every target concurrently and returns those that
// responded alive. Per-target probe failure is a data value, not an
// error, so a plain goroutine/channel fan-out is used rather than
// errgroup (which would treat the first failure as fatal).
func (d *Deployer) probeAll(ctx context.Context, targets []engine.Target) []engine.Target {
	type probed struct {
		target engine.Target
		alive  bool
	}

	ch := make(chan probed, len(targets))
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, t := range targets {
		t := t
		go func() {
			defer wg.Done()
			adapter, ok := d.registry.Get(t.EngineType)
			alive := ok && adapter.Probe(ctx, t)
			select {
			case ch <- probed{target: t, alive: alive}:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var alive []engine.Target
	for p := range ch {
		if p.alive {
			alive = append(alive, p.target)
		}
	}
	return alive
}

// deployAll deploys to every target concurrently, collecting a result
// per target regardless of success or failure.
func (d *Deployer) deployAll(ctx context.Context, r *rule.Rule, targets []engine.Target) []engine.DeploymentResult {
	ch := make(chan engine.DeploymentResult, len(targets))
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, t := range targets {
		t := t
		go func() {
			defer wg.Done()
			adapter, ok := d.registry.Get(t.EngineType)
			var result engine.DeploymentResult
			if !ok {
				result = engine.DeploymentResult{
					RuleID: r.RuleID, TargetName: t.Name, Success: false,
					ErrorMessage: "unknown engine type: " + t.EngineType,
				}
			} else {
				result = adapter.Deploy(ctx, r, t)
			}
			select {
			case ch <- result:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	results := make([]engine.DeploymentResult, 0, len(targets))
	for res := range ch {
		results = append(results, res)
	}
	return results
}

// TestAllConnections probes every configured target and reports
// reachability by name. Unlike DeployRule's probe stage, every target is
// probed regardless of which engines a caller cares about, and a probe
// failure is not itself treated as an error worth aborting the others
// for — so errgroup's simpler "wait for all, keep going" shape fits.
func (d *Deployer) TestAllConnections(ctx context.Context) map[string]bool {
	targets := d.snapshotTargets()
	results := make(map[string]bool, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			adapter, ok := d.registry.Get(t.EngineType)
			alive := ok && adapter.Probe(gctx, t)
			mu.Lock()
			results[t.Name] = alive
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// TargetStatus is a static view of one configured DeploymentTarget.
type TargetStatus struct {
	Name       string
	EngineType string
	Enabled    bool
}

// DeploymentStatus returns a static view of all configured targets.
func (d *Deployer) DeploymentStatus() []TargetStatus {
	targets := d.snapshotTargets()
	statuses := make([]TargetStatus, 0, len(targets))
	for _, t := range targets {
		statuses = append(statuses, TargetStatus{Name: t.Name, EngineType: t.EngineType, Enabled: t.Enabled})
	}
	return statuses
}
