// Package telemetry provides New Relic APM integration for monitoring
// the node's RPC calls, indexer steps, and API handlers.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/util"
)

// Agent wraps New Relic APM functionality.
type Agent struct {
	cfg *config.TelemetryConfig
	app *newrelic.Application
	mu  sync.RWMutex
}

// NewAgent creates a new telemetry agent.
func NewAgent(cfg *config.TelemetryConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Start initializes the New Relic agent.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("telemetry disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("telemetry license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("telemetry connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("telemetry APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("shutting down telemetry agent")
		app.Shutdown(10 * time.Second)
	}
}

// Application returns the underlying New Relic application (for middleware).
func (a *Agent) Application() *newrelic.Application {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// IsEnabled returns true if telemetry is enabled and connected.
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

// StartTransaction starts a new APM transaction.
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event.
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric.
func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error against a transaction.
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds a transaction to a context.
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext retrieves a transaction from a context.
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// RecordOpValidation records a single op's parse/validate outcome, the
// C4/C5 analogue of the teacher's per-share validation event.
func (a *Agent) RecordOpValidation(opTag string, height uint64, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	a.RecordCustomEvent("OpValidation", map[string]interface{}{
		"op":     opTag,
		"height": height,
		"status": status,
	})
}

// RecordSortitionWin records a sortition outcome for a processed block.
func (a *Agent) RecordSortitionWin(height uint64, winner string, reward uint64) {
	a.RecordCustomEvent("SortitionWin", map[string]interface{}{
		"height": height,
		"winner": winner,
		"reward": reward,
	})
}

// RecordReorgDetected records a burnchain parent-hash mismatch.
func (a *Agent) RecordReorgDetected(height uint64) {
	a.RecordCustomEvent("ReorgDetected", map[string]interface{}{
		"height": height,
	})
}

// RecordCycleSealed records a reward cycle sealing and its payout count.
func (a *Agent) RecordCycleSealed(cycleNumber uint64, totalStacked uint64, payoutCount int) {
	a.RecordCustomEvent("CycleSealed", map[string]interface{}{
		"cycle":         cycleNumber,
		"total_stacked": totalStacked,
		"payouts":       payoutCount,
	})
}

// UpdateChainMetrics updates the node's chain-tip gauges.
func (a *Agent) UpdateChainMetrics(height uint64, totalBurn uint64, numSortitions uint64) {
	a.RecordCustomMetric("Custom/Chain/Height", float64(height))
	a.RecordCustomMetric("Custom/Chain/TotalBurn", float64(totalBurn))
	a.RecordCustomMetric("Custom/Chain/NumSortitions", float64(numSortitions))
}

// UpdateSyncMetrics updates the indexer's catch-up lag gauge.
func (a *Agent) UpdateSyncMetrics(localHeight, remoteTip uint64) {
	lag := float64(0)
	if remoteTip > localHeight {
		lag = float64(remoteTip - localHeight)
	}
	a.RecordCustomMetric("Custom/Sync/Lag", lag)
}
