package telemetry

import (
	"context"
	"testing"

	"github.com/btczs/btczs-l2/internal/config"
)

func TestNewAgent(t *testing.T) {
	cfg := &config.TelemetryConfig{
		Enabled:    true,
		AppName:    "btczs-l2",
		LicenseKey: "test_key",
	}

	agent := NewAgent(cfg)

	if agent == nil {
		t.Fatal("NewAgent returned nil")
	}
	if agent.cfg != cfg {
		t.Error("Agent.cfg not set correctly")
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil before Start()")
	}
}

func TestStartDisabled(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	if err := agent.Start(); err != nil {
		t.Errorf("Start() returned error when disabled: %v", err)
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil when disabled")
	}
}

func TestStartNoLicenseKey(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: true, AppName: "btczs-l2", LicenseKey: ""})
	if err := agent.Start(); err != nil {
		t.Errorf("Start() returned error with empty license key: %v", err)
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil with empty license key")
	}
}

func TestStopNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.Stop() // should not panic
}

func TestApplicationNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	if agent.Application() != nil {
		t.Error("Application() should return nil when not started")
	}
}

func TestIsEnabledNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	if agent.IsEnabled() {
		t.Error("IsEnabled() should return false when not started")
	}
}

func TestStartTransactionNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	if agent.StartTransaction("test") != nil {
		t.Error("StartTransaction() should return nil when not started")
	}
}

func TestRecordCustomEventNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordCustomEvent("TestEvent", map[string]interface{}{"key": "value"}) // should not panic
}

func TestRecordCustomMetricNotStarted(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordCustomMetric("Custom/Test", 123.45) // should not panic
}

func TestNoticeErrorNilTransaction(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.NoticeError(nil, nil) // should not panic
}

func TestNewContextNilTransaction(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	ctx := context.Background()

	if result := agent.NewContext(ctx, nil); result != ctx {
		t.Error("NewContext should return original context when txn is nil")
	}
}

func TestFromContext(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	if agent.FromContext(context.Background()) != nil {
		t.Error("FromContext should return nil for empty context")
	}
}

func TestRecordOpValidation(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordOpValidation("leader_commit", 12345, true)
	agent.RecordOpValidation("stack_lock", 12345, false)
}

func TestRecordSortitionWin(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordSortitionWin(12345, "l2addr1", 5000000000)
}

func TestRecordReorgDetected(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordReorgDetected(12345)
}

func TestRecordCycleSealed(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.RecordCycleSealed(7, 1_000_000_000, 42)
}

func TestUpdateChainMetrics(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.UpdateChainMetrics(12345, 1000000, 250)
}

func TestUpdateSyncMetrics(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})
	agent.UpdateSyncMetrics(100, 150)
	agent.UpdateSyncMetrics(150, 100) // remote behind local: lag clamps to 0
}

func TestAgentStructFields(t *testing.T) {
	cfg := &config.TelemetryConfig{
		Enabled:    true,
		AppName:    "btczs-l2",
		LicenseKey: "license_123",
	}

	agent := NewAgent(cfg)

	if agent.cfg.AppName != "btczs-l2" {
		t.Errorf("AppName = %s, want btczs-l2", agent.cfg.AppName)
	}
	if agent.cfg.LicenseKey != "license_123" {
		t.Errorf("LicenseKey = %s, want license_123", agent.cfg.LicenseKey)
	}
}

func TestConcurrentAccess(t *testing.T) {
	agent := NewAgent(&config.TelemetryConfig{Enabled: false})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			agent.IsEnabled()
			agent.Application()
			agent.StartTransaction("test")
			agent.RecordCustomEvent("test", nil)
			agent.RecordCustomMetric("test", 1.0)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
