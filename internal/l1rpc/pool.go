package l1rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/util"
)

// node wraps a Client with the health bookkeeping the pool needs for
// failover decisions.
type node struct {
	client *Client
	url    string

	mu           sync.RWMutex
	healthy      bool
	failCount    int32
	successCount int32
	lastCheck    time.Time
	height       uint64
}

// Pool manages one primary L1 node plus any configured failover upstreams,
// and fails over to the next healthy node on sustained errors.
type Pool struct {
	nodes     []*node
	activeIdx int32

	healthCheckInterval time.Duration
	maxFailures         int32
	recoveryThreshold   int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a pool from config.RPCConfig: the primary URL first, then
// any configured failover upstreams, all sharing the same credentials.
func NewPool(ctx context.Context, cfg config.RPCConfig) *Pool {
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		healthCheckInterval: 15 * time.Second,
		maxFailures:         3,
		recoveryThreshold:   2,
		ctx:                 poolCtx,
		cancel:              cancel,
	}

	urls := append([]string{cfg.URL}, cfg.Upstreams...)
	for _, url := range urls {
		if url == "" {
			continue
		}
		p.nodes = append(p.nodes, &node{
			client:  NewClient(url, cfg.User, cfg.Password, cfg.Timeout),
			url:     url,
			healthy: true,
		})
	}
	return p
}

// Start begins the background health-check loop.
func (p *Pool) Start() {
	if len(p.nodes) == 0 {
		util.Warn("l1rpc pool started with no configured nodes")
		return
	}
	p.checkAll()
	p.wg.Add(1)
	go p.healthCheckLoop()
}

// Stop halts the health-check loop and waits for it to exit.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.checkAll()
		}
	}
}

func (p *Pool) checkAll() {
	var wg sync.WaitGroup
	for _, n := range p.nodes {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			p.checkNode(n)
		}(n)
	}
	wg.Wait()
	p.selectBest()
}

func (p *Pool) checkNode(n *node) {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	height, err := n.client.GetBlockCount(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCheck = time.Now()

	if err != nil {
		n.failCount++
		n.successCount = 0
		if n.failCount >= p.maxFailures && n.healthy {
			n.healthy = false
			util.Warnf("l1 node %s marked unhealthy after %d failures: %v", n.url, n.failCount, err)
		}
		return
	}

	n.height = height
	n.successCount++
	if !n.healthy && n.successCount >= p.recoveryThreshold {
		n.healthy = true
		n.failCount = 0
		util.Infof("l1 node %s recovered (height=%d)", n.url, height)
	} else if n.healthy {
		n.failCount = 0
	}
}

func (p *Pool) selectBest() {
	bestIdx := -1
	var bestHeight uint64
	for i, n := range p.nodes {
		n.mu.RLock()
		healthy, height := n.healthy, n.height
		n.mu.RUnlock()
		if !healthy {
			continue
		}
		if bestIdx == -1 || height > bestHeight {
			bestIdx = i
			bestHeight = height
		}
	}
	if bestIdx >= 0 {
		if atomic.LoadInt32(&p.activeIdx) != int32(bestIdx) {
			atomic.StoreInt32(&p.activeIdx, int32(bestIdx))
			util.Infof("l1rpc pool switched to node %s (height=%d)", p.nodes[bestIdx].url, bestHeight)
		}
	} else {
		util.Warn("l1rpc pool has no healthy node")
	}
}

// Active returns the current best client.
func (p *Pool) Active() *Client {
	if len(p.nodes) == 0 {
		return nil
	}
	idx := atomic.LoadInt32(&p.activeIdx)
	if idx >= 0 && idx < int32(len(p.nodes)) {
		return p.nodes[idx].client
	}
	return p.nodes[0].client
}

// HasHealthyNode reports whether any node in the pool is currently healthy.
func (p *Pool) HasHealthyNode() bool {
	for _, n := range p.nodes {
		n.mu.RLock()
		healthy := n.healthy
		n.mu.RUnlock()
		if healthy {
			return true
		}
	}
	return false
}

// CallWithFailover runs fn against the active client, falling over to the
// next healthy node in the pool on error.
func (p *Pool) CallWithFailover(fn func(*Client) error) error {
	active := p.Active()
	if active == nil {
		return nil
	}

	err := fn(active)
	if err == nil {
		return nil
	}

	activeIdx := atomic.LoadInt32(&p.activeIdx)
	for i, n := range p.nodes {
		if int32(i) == activeIdx {
			continue
		}
		n.mu.RLock()
		healthy := n.healthy
		n.mu.RUnlock()
		if !healthy {
			continue
		}
		if ferr := fn(n.client); ferr == nil {
			atomic.StoreInt32(&p.activeIdx, int32(i))
			util.Infof("l1rpc failover succeeded: now using %s", n.url)
			return nil
		}
	}
	return err
}

// GetBlockCount satisfies internal/burnchain.BlockSource against the
// pool's active node, failing over on error exactly like CallWithFailover.
func (p *Pool) GetBlockCount(ctx context.Context) (uint64, error) {
	var height uint64
	err := p.CallWithFailover(func(c *Client) error {
		h, err := c.GetBlockCount(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return height, err
}

// GetBlockByHeight satisfies internal/burnchain.BlockSource against the
// pool's active node, failing over on error exactly like CallWithFailover.
func (p *Pool) GetBlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	var block *Block
	err := p.CallWithFailover(func(c *Client) error {
		b, err := c.GetBlockByHeight(ctx, height)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	return block, err
}

// NodeCount returns the number of configured nodes.
func (p *Pool) NodeCount() int {
	return len(p.nodes)
}

// NodeStatus is a point-in-time health snapshot of one pool member,
// exposed to the API's upstreams endpoint.
type NodeStatus struct {
	URL       string
	Healthy   bool
	Height    uint64
	FailCount int32
	Active    bool
}

// Statuses returns a snapshot of every node's current health.
func (p *Pool) Statuses() []NodeStatus {
	activeIdx := atomic.LoadInt32(&p.activeIdx)
	out := make([]NodeStatus, len(p.nodes))
	for i, n := range p.nodes {
		n.mu.RLock()
		out[i] = NodeStatus{
			URL:       n.url,
			Healthy:   n.healthy,
			Height:    n.height,
			FailCount: n.failCount,
			Active:    int32(i) == activeIdx,
		}
		n.mu.RUnlock()
	}
	return out
}
