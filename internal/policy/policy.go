// Package policy implements abuse-prevention for the explorer API and
// stream server: IP banning, connection rate limiting, and a malformed/
// invalid-request score.
package policy

import (
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btczs/btczs-l2/internal/util"
)

// Config holds policy configuration.
type Config struct {
	// Banning configuration
	BanningEnabled bool
	BanTimeout     time.Duration // How long to ban an IP
	InvalidPercent float32       // Ratio of invalid requests to trigger ban
	CheckThreshold int32         // Minimum requests before checking ratio
	MalformedLimit int32         // Max malformed requests before ban
	IPSetName      string        // Linux ipset name for kernel-level banning

	// Rate limiting configuration
	RateLimitEnabled bool
	ConnectionLimit  int32         // Max new connections per IP per interval
	ConnectionGrace  time.Duration // Grace period after startup
	LimitJump        int32         // How much to increase limit on a valid request

	// Score-based rate limiting
	ScoreEnabled     bool
	MaxScore         int32         // Maximum score before temporary ban
	ScoreResetTime   time.Duration // How often to reset scores
	ScoreTempBanTime time.Duration // > 0 bans on reaching MaxScore; that ban is lifted after BanTimeout, like any other

	// Action costs (added to score)
	CostInvalidRequest int32 // Cost for a request that fails validation
	CostMalformed      int32 // Cost for a malformed request
	CostConnection     int32 // Cost for a new connection
	CostSubscribe      int32 // Cost for a stream subscribe attempt

	// Reset intervals
	ResetInterval time.Duration // How often to reset stats
}

// DefaultConfig returns sensible defaults for a public read-only API.
func DefaultConfig() *Config {
	return &Config{
		BanningEnabled: true,
		BanTimeout:     30 * time.Minute,
		InvalidPercent: 50.0,
		CheckThreshold: 100,
		MalformedLimit: 5,
		IPSetName:      "",

		RateLimitEnabled: true,
		ConnectionLimit:  20,
		ConnectionGrace:  5 * time.Minute,
		LimitJump:        5,

		ScoreEnabled:     true,
		MaxScore:         100,
		ScoreResetTime:   1 * time.Minute,
		ScoreTempBanTime: 5 * time.Minute,

		CostInvalidRequest: 10,
		CostMalformed:      25,
		CostConnection:     1,
		CostSubscribe:      2,

		ResetInterval: 1 * time.Hour,
	}
}

// IPStats tracks per-IP statistics.
type IPStats struct {
	mu             sync.Mutex
	LastBeat       int64 // Timestamp of last activity
	BannedAt       int64 // Timestamp when banned (0 = not banned)
	ValidRequests  int32 // Count of requests that passed validation
	InvalidRequests int32 // Count of requests that failed validation
	Malformed      int32 // Count of malformed requests
	ConnLimit      int32 // Remaining connection allowance
	Banned         int32 // 1 = banned, 0 = not banned
	Score          int32 // Score-based rate limiting score
	LastScoreReset int64 // When score was last reset
}

// PolicyServer manages abuse-prevention policies for the explorer's
// public HTTP/WebSocket surface.
type PolicyServer struct {
	config *Config

	// Per-IP stats
	statsMu sync.RWMutex
	stats   map[string]*IPStats

	// Whitelist (never rate-limited or banned)
	listMu    sync.RWMutex
	whitelist map[string]struct{}

	// Ban channel for async ipset banning
	banChan chan string

	// Timing
	startedAt int64

	// Control
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPolicyServer creates a new policy server. whitelist entries are
// never rate-limited or banned.
func NewPolicyServer(cfg *Config, whitelist []string) *PolicyServer {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &PolicyServer{
		config:    cfg,
		stats:     make(map[string]*IPStats),
		whitelist: make(map[string]struct{}),
		banChan:   make(chan string, 64),
		startedAt: time.Now().UnixMilli(),
		quit:      make(chan struct{}),
	}
	for _, ip := range whitelist {
		p.whitelist[ip] = struct{}{}
	}
	return p
}

// Start begins the policy server's background tasks.
func (p *PolicyServer) Start() {
	util.Info("starting explorer policy server")

	p.wg.Add(1)
	go p.resetLoop()

	for i := 0; i < 2; i++ {
		p.wg.Add(1)
		go p.banWorker()
	}

	util.Info("explorer policy server started")
}

// Stop shuts down the policy server.
func (p *PolicyServer) Stop() {
	close(p.quit)
	p.wg.Wait()
	util.Info("explorer policy server stopped")
}

// resetLoop periodically resets stale stats.
func (p *PolicyServer) resetLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.ResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.resetStats()
		}
	}
}

// banWorker processes ban requests.
func (p *PolicyServer) banWorker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case ip := <-p.banChan:
			p.executeBan(ip)
		}
	}
}

// resetStats clears old statistics and lifts expired bans.
func (p *PolicyServer) resetStats() {
	now := time.Now().UnixMilli()
	banTimeout := p.config.BanTimeout.Milliseconds()
	staleTimeout := p.config.ResetInterval.Milliseconds()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	removed := 0
	unbanned := 0

	for ip, stats := range p.stats {
		stats.mu.Lock()

		if stats.BannedAt > 0 && now-stats.BannedAt >= banTimeout {
			stats.BannedAt = 0
			if atomic.CompareAndSwapInt32(&stats.Banned, 1, 0) {
				unbanned++
				util.Infof("ban expired for %s", ip)
			}
		}

		if now-stats.LastBeat >= staleTimeout && stats.Banned == 0 {
			stats.mu.Unlock()
			delete(p.stats, ip)
			removed++
			continue
		}

		stats.mu.Unlock()
	}

	if removed > 0 || unbanned > 0 {
		util.Debugf("policy stats reset: removed %d stale, unbanned %d IPs", removed, unbanned)
	}
}

// getStats gets or creates stats for an IP.
func (p *PolicyServer) getStats(ip string) *IPStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats, ok := p.stats[ip]
	if !ok {
		stats = &IPStats{
			LastBeat:  time.Now().UnixMilli(),
			ConnLimit: p.config.ConnectionLimit,
		}
		p.stats[ip] = stats
	} else {
		stats.LastBeat = time.Now().UnixMilli()
	}

	return stats
}

// IsBanned checks if an IP is currently banned.
func (p *PolicyServer) IsBanned(ip string) bool {
	if !p.config.BanningEnabled {
		return false
	}

	stats := p.getStats(ip)
	return atomic.LoadInt32(&stats.Banned) > 0
}

// ApplyConnectionLimit checks and decrements the connection allowance.
func (p *PolicyServer) ApplyConnectionLimit(ip string) bool {
	if !p.config.RateLimitEnabled {
		return true
	}

	if time.Now().UnixMilli()-p.startedAt < p.config.ConnectionGrace.Milliseconds() {
		return true
	}
	if p.IsWhitelisted(ip) {
		return true
	}

	stats := p.getStats(ip)
	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.ConnLimit--
	return stats.ConnLimit >= 0
}

// ApplyMalformedPolicy tracks malformed requests and bans on overflow.
func (p *PolicyServer) ApplyMalformedPolicy(ip string) bool {
	if !p.config.BanningEnabled {
		return true
	}

	stats := p.getStats(ip)
	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.Malformed++
	if stats.Malformed >= p.config.MalformedLimit {
		stats.mu.Unlock()
		p.BanIP(ip)
		stats.mu.Lock()
		return false
	}

	return true
}

// ApplyRequestPolicy tracks request validity ratio and bans on a
// sustained spike of invalid requests (malformed queries, addresses
// that fail decode, heights/hashes that never resolve).
func (p *PolicyServer) ApplyRequestPolicy(ip string, valid bool) bool {
	if !p.config.BanningEnabled {
		return true
	}

	stats := p.getStats(ip)
	stats.mu.Lock()
	defer stats.mu.Unlock()

	if valid {
		stats.ValidRequests++
		if p.config.RateLimitEnabled {
			stats.ConnLimit += p.config.LimitJump
		}
	} else {
		stats.InvalidRequests++
	}

	total := stats.ValidRequests + stats.InvalidRequests
	if total < p.config.CheckThreshold {
		return true
	}

	invalidRatio := float32(stats.InvalidRequests) / float32(stats.ValidRequests+1) * 100

	stats.ValidRequests = 0
	stats.InvalidRequests = 0

	if invalidRatio >= p.config.InvalidPercent {
		util.Warnf("banning %s: invalid request ratio %.1f%% >= %.1f%%", ip, invalidRatio, p.config.InvalidPercent)
		stats.mu.Unlock()
		p.BanIP(ip)
		stats.mu.Lock()
		return false
	}

	return true
}

// AddScore adds to an IP's score and returns false if the IP is now
// temp-banned.
func (p *PolicyServer) AddScore(ip string, cost int32) bool {
	if !p.config.ScoreEnabled {
		return true
	}
	if p.IsWhitelisted(ip) {
		return true
	}

	stats := p.getStats(ip)
	stats.mu.Lock()
	defer stats.mu.Unlock()

	now := time.Now().Unix()

	if now-stats.LastScoreReset >= int64(p.config.ScoreResetTime.Seconds()) {
		stats.Score = 0
		stats.LastScoreReset = now
	}

	stats.Score += cost

	if stats.Score >= p.config.MaxScore {
		util.Warnf("score limit exceeded for %s: %d >= %d", ip, stats.Score, p.config.MaxScore)
		stats.Score = 0

		if p.config.ScoreTempBanTime > 0 {
			stats.BannedAt = time.Now().UnixMilli()
			atomic.StoreInt32(&stats.Banned, 1)
		}
		return false
	}

	return true
}

// GetScore returns the current score for an IP.
func (p *PolicyServer) GetScore(ip string) int32 {
	stats := p.getStats(ip)
	stats.mu.Lock()
	defer stats.mu.Unlock()
	return stats.Score
}

// ApplyConnectionScore applies the connection cost.
func (p *PolicyServer) ApplyConnectionScore(ip string) bool {
	return p.AddScore(ip, p.config.CostConnection)
}

// ApplySubscribeScore applies the stream-subscribe cost.
func (p *PolicyServer) ApplySubscribeScore(ip string) bool {
	return p.AddScore(ip, p.config.CostSubscribe)
}

// ApplyInvalidRequestScore applies the invalid-request cost.
func (p *PolicyServer) ApplyInvalidRequestScore(ip string) bool {
	return p.AddScore(ip, p.config.CostInvalidRequest)
}

// ApplyMalformedScore applies the malformed-request cost.
func (p *PolicyServer) ApplyMalformedScore(ip string) bool {
	return p.AddScore(ip, p.config.CostMalformed)
}

// BanIP bans an IP address, unless it is whitelisted.
func (p *PolicyServer) BanIP(ip string) {
	if !p.config.BanningEnabled {
		return
	}

	if p.IsWhitelisted(ip) {
		util.Debugf("IP %s is whitelisted, not banning", ip)
		return
	}

	stats := p.getStats(ip)
	stats.mu.Lock()
	stats.BannedAt = time.Now().UnixMilli()
	stats.mu.Unlock()

	if atomic.CompareAndSwapInt32(&stats.Banned, 0, 1) {
		util.Infof("banned IP: %s", ip)

		if p.config.IPSetName != "" {
			select {
			case p.banChan <- ip:
			default:
				util.Warnf("ban channel full, skipping ipset for %s", ip)
			}
		}
	}
}

// executeBan adds an IP to the kernel ipset, for firewall-level drop.
func (p *PolicyServer) executeBan(ip string) {
	if p.config.IPSetName == "" {
		return
	}

	timeout := int(p.config.BanTimeout.Seconds())
	cmd := exec.Command("sudo", "ipset", "add", p.config.IPSetName, ip, "timeout", strconv.Itoa(timeout), "-!")

	if err := cmd.Run(); err != nil {
		util.Warnf("failed to add %s to ipset: %v", ip, err)
	} else {
		util.Debugf("added %s to ipset %s with timeout %ds", ip, p.config.IPSetName, timeout)
	}
}

// IsWhitelisted checks if an IP is whitelisted.
func (p *PolicyServer) IsWhitelisted(ip string) bool {
	p.listMu.RLock()
	defer p.listMu.RUnlock()
	_, ok := p.whitelist[ip]
	return ok
}

// AddToWhitelist adds an IP to the in-memory whitelist.
func (p *PolicyServer) AddToWhitelist(ip string) {
	p.listMu.Lock()
	p.whitelist[ip] = struct{}{}
	p.listMu.Unlock()
}

// GetStats returns aggregate stats for monitoring.
func (p *PolicyServer) GetStats() (total, banned int) {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()

	total = len(p.stats)
	for _, stats := range p.stats {
		if atomic.LoadInt32(&stats.Banned) > 0 {
			banned++
		}
	}
	return
}
