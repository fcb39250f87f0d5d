package policy

import (
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if !cfg.BanningEnabled {
		t.Error("BanningEnabled should be true by default")
	}

	if cfg.BanTimeout != 30*time.Minute {
		t.Errorf("BanTimeout = %v, want 30m", cfg.BanTimeout)
	}

	if cfg.InvalidPercent != 50.0 {
		t.Errorf("InvalidPercent = %v, want 50.0", cfg.InvalidPercent)
	}

	if cfg.CheckThreshold != 100 {
		t.Errorf("CheckThreshold = %v, want 100", cfg.CheckThreshold)
	}

	if cfg.MalformedLimit != 5 {
		t.Errorf("MalformedLimit = %v, want 5", cfg.MalformedLimit)
	}

	if !cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled should be true by default")
	}

	if cfg.ConnectionLimit != 20 {
		t.Errorf("ConnectionLimit = %v, want 20", cfg.ConnectionLimit)
	}

	if !cfg.ScoreEnabled {
		t.Error("ScoreEnabled should be true by default")
	}

	if cfg.MaxScore != 100 {
		t.Errorf("MaxScore = %v, want 100", cfg.MaxScore)
	}

	if cfg.CostInvalidRequest != 10 {
		t.Errorf("CostInvalidRequest = %v, want 10", cfg.CostInvalidRequest)
	}

	if cfg.CostMalformed != 25 {
		t.Errorf("CostMalformed = %v, want 25", cfg.CostMalformed)
	}
}

func TestNewPolicyServer(t *testing.T) {
	ps := NewPolicyServer(nil, nil)
	if ps == nil {
		t.Fatal("NewPolicyServer returned nil")
	}
	if ps.config == nil {
		t.Fatal("PolicyServer.config should not be nil")
	}

	cfg := &Config{
		BanningEnabled:  false,
		ConnectionLimit: 5,
	}
	ps = NewPolicyServer(cfg, nil)
	if ps.config.ConnectionLimit != 5 {
		t.Errorf("ConnectionLimit = %v, want 5", ps.config.ConnectionLimit)
	}
}

func TestNewPolicyServerWithWhitelist(t *testing.T) {
	ps := NewPolicyServer(DefaultConfig(), []string{"10.0.0.1", "10.0.0.2"})
	if !ps.IsWhitelisted("10.0.0.1") {
		t.Error("10.0.0.1 should be whitelisted from constructor arg")
	}
	if ps.IsWhitelisted("10.0.0.3") {
		t.Error("10.0.0.3 should not be whitelisted")
	}
}

func TestIsBanned(t *testing.T) {
	cfg := DefaultConfig()
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	if ps.IsBanned(ip) {
		t.Error("IP should not be banned initially")
	}

	ps.BanIP(ip)

	if !ps.IsBanned(ip) {
		t.Error("IP should be banned after BanIP")
	}
}

func TestIsBannedDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BanningEnabled = false
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"
	ps.BanIP(ip)

	if ps.IsBanned(ip) {
		t.Error("IP should not be banned when banning is disabled")
	}
}

func TestApplyConnectionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionLimit = 3
	cfg.ConnectionGrace = 0
	ps := NewPolicyServer(cfg, nil)
	ps.startedAt = 0

	ip := "192.168.1.100"

	for i := 0; i < 3; i++ {
		if !ps.ApplyConnectionLimit(ip) {
			t.Errorf("Connection %d should be allowed", i+1)
		}
	}

	if ps.ApplyConnectionLimit(ip) {
		t.Error("4th connection should be denied")
	}
}

func TestApplyConnectionLimitDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitEnabled = false
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 100; i++ {
		if !ps.ApplyConnectionLimit(ip) {
			t.Error("Connection should be allowed when rate limiting is disabled")
		}
	}
}

func TestApplyConnectionLimitWhitelistBypasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionLimit = 1
	cfg.ConnectionGrace = 0
	ps := NewPolicyServer(cfg, nil)
	ps.startedAt = 0

	ip := "192.168.1.100"
	ps.AddToWhitelist(ip)

	for i := 0; i < 10; i++ {
		if !ps.ApplyConnectionLimit(ip) {
			t.Errorf("connection %d should be allowed for a whitelisted IP", i+1)
		}
	}
}

func TestApplyMalformedPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MalformedLimit = 3
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 2; i++ {
		if !ps.ApplyMalformedPolicy(ip) {
			t.Errorf("Malformed request %d should be allowed", i+1)
		}
	}

	if ps.ApplyMalformedPolicy(ip) {
		t.Error("3rd malformed request should trigger ban")
	}

	if !ps.IsBanned(ip) {
		t.Error("IP should be banned after malformed limit exceeded")
	}
}

func TestApplyMalformedPolicyDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BanningEnabled = false
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 100; i++ {
		if !ps.ApplyMalformedPolicy(ip) {
			t.Error("Should always return true when banning is disabled")
		}
	}
}

func TestApplyRequestPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckThreshold = 10
	cfg.InvalidPercent = 50.0
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 5; i++ {
		if !ps.ApplyRequestPolicy(ip, true) {
			t.Errorf("Valid request %d should be accepted", i+1)
		}
	}

	for i := 0; i < 4; i++ {
		if !ps.ApplyRequestPolicy(ip, false) {
			t.Errorf("Invalid request %d should be accepted before threshold", i+1)
		}
	}

	if ps.ApplyRequestPolicy(ip, false) {
		t.Error("Should return false when invalid ratio exceeds threshold")
	}
}

func TestApplyRequestPolicyDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BanningEnabled = false
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 100; i++ {
		if !ps.ApplyRequestPolicy(ip, false) {
			t.Error("Should always return true when banning is disabled")
		}
	}
}

func TestAddScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 50
	cfg.ScoreResetTime = 1 * time.Hour
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	if !ps.AddScore(ip, 25) {
		t.Error("Score 25 should be allowed (below max 50)")
	}

	if ps.GetScore(ip) != 25 {
		t.Errorf("Score = %d, want 25", ps.GetScore(ip))
	}

	if ps.AddScore(ip, 30) {
		t.Error("Score 55 should exceed max 50")
	}

	if ps.GetScore(ip) != 0 {
		t.Errorf("Score should be reset to 0 after ban, got %d", ps.GetScore(ip))
	}
}

func TestAddScoreDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreEnabled = false
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 100; i++ {
		if !ps.AddScore(ip, 1000) {
			t.Error("Should always return true when score is disabled")
		}
	}
}

func TestApplyConnectionScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 10
	cfg.CostConnection = 3
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 3; i++ {
		if !ps.ApplyConnectionScore(ip) {
			t.Errorf("Connection %d should be allowed", i+1)
		}
	}

	if ps.ApplyConnectionScore(ip) {
		t.Error("4th connection should exceed max score")
	}
}

func TestApplySubscribeScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 15
	cfg.CostSubscribe = 5
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 2; i++ {
		if !ps.ApplySubscribeScore(ip) {
			t.Errorf("Subscribe %d should be allowed", i+1)
		}
	}

	if ps.ApplySubscribeScore(ip) {
		t.Error("3rd subscribe should exceed max score")
	}
}

func TestApplyInvalidRequestScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 25
	cfg.CostInvalidRequest = 10
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 2; i++ {
		if !ps.ApplyInvalidRequestScore(ip) {
			t.Errorf("Invalid request %d should be allowed", i+1)
		}
	}

	if ps.ApplyInvalidRequestScore(ip) {
		t.Error("3rd invalid request should exceed max score")
	}
}

func TestApplyMalformedScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 75
	cfg.CostMalformed = 25
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	for i := 0; i < 2; i++ {
		if !ps.ApplyMalformedScore(ip) {
			t.Errorf("Malformed %d should be allowed", i+1)
		}
	}

	if ps.ApplyMalformedScore(ip) {
		t.Error("3rd malformed should exceed max score")
	}
}

func TestBanIPWhitelisted(t *testing.T) {
	cfg := DefaultConfig()
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	ps.AddToWhitelist(ip)
	ps.BanIP(ip)

	if ps.IsBanned(ip) {
		t.Error("Whitelisted IP should not be banned")
	}
}

func TestIsWhitelisted(t *testing.T) {
	cfg := DefaultConfig()
	ps := NewPolicyServer(cfg, nil)

	ip := "192.168.1.100"

	if ps.IsWhitelisted(ip) {
		t.Error("IP should not be whitelisted initially")
	}

	ps.AddToWhitelist(ip)

	if !ps.IsWhitelisted(ip) {
		t.Error("IP should be whitelisted after AddToWhitelist")
	}
}

func TestGetStats(t *testing.T) {
	cfg := DefaultConfig()
	ps := NewPolicyServer(cfg, nil)

	total, banned := ps.GetStats()
	if total != 0 {
		t.Errorf("Total = %d, want 0", total)
	}
	if banned != 0 {
		t.Errorf("Banned = %d, want 0", banned)
	}

	ps.getStats("192.168.1.1")
	ps.getStats("192.168.1.2")
	ps.BanIP("192.168.1.3")

	total, banned = ps.GetStats()
	if total != 3 {
		t.Errorf("Total = %d, want 3", total)
	}
	if banned != 1 {
		t.Errorf("Banned = %d, want 1", banned)
	}
}

func TestIPStatsStruct(t *testing.T) {
	stats := &IPStats{
		LastBeat:        time.Now().UnixMilli(),
		ValidRequests:   10,
		InvalidRequests: 5,
		Malformed:       2,
		ConnLimit:       100,
		Score:           50,
	}

	if stats.ValidRequests != 10 {
		t.Errorf("ValidRequests = %d, want 10", stats.ValidRequests)
	}

	if stats.InvalidRequests != 5 {
		t.Errorf("InvalidRequests = %d, want 5", stats.InvalidRequests)
	}

	if stats.Score != 50 {
		t.Errorf("Score = %d, want 50", stats.Score)
	}
}

func TestConcurrentAccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionLimit = 1000
	ps := NewPolicyServer(cfg, nil)
	ps.startedAt = 0

	var wg sync.WaitGroup
	ips := []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ip := ips[id%len(ips)]

			for j := 0; j < 100; j++ {
				ps.IsBanned(ip)
				ps.ApplyConnectionLimit(ip)
				ps.ApplyRequestPolicy(ip, j%2 == 0)
				ps.AddScore(ip, 1)
				ps.GetScore(ip)
			}
		}(i)
	}

	wg.Wait()

	total, _ := ps.GetStats()
	if total == 0 {
		t.Error("Should have tracked some IPs")
	}
}

func BenchmarkIsBanned(b *testing.B) {
	cfg := DefaultConfig()
	ps := NewPolicyServer(cfg, nil)
	ip := "192.168.1.100"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ps.IsBanned(ip)
	}
}

func BenchmarkApplyRequestPolicy(b *testing.B) {
	cfg := DefaultConfig()
	cfg.CheckThreshold = 1000000
	ps := NewPolicyServer(cfg, nil)
	ip := "192.168.1.100"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ps.ApplyRequestPolicy(ip, true)
	}
}

func BenchmarkAddScore(b *testing.B) {
	cfg := DefaultConfig()
	cfg.MaxScore = 1000000
	ps := NewPolicyServer(cfg, nil)
	ip := "192.168.1.100"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ps.AddScore(ip, 1)
	}
}
