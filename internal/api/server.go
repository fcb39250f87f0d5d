// Package api provides the read-only block-explorer REST API.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l1rpc"
	"github.com/btczs/btczs-l2/internal/store"
	"github.com/btczs/btczs-l2/internal/util"
)

// UpstreamStateFunc is a callback to get upstream L1 node states.
type UpstreamStateFunc func() []l1rpc.NodeStatus

// Server is the explorer API server.
type Server struct {
	cfg     *config.Config
	network l1addr.Network
	sink    store.KVStore
	router  *gin.Engine
	server  *http.Server

	statusCacheMu   sync.RWMutex
	statusCache     *StatusResponse
	statusCacheTime time.Time

	upstreamStateFunc UpstreamStateFunc
}

// StatusResponse is the /api/status response: a snapshot of the node's
// chain tip and sync state.
type StatusResponse struct {
	Height         uint64 `json:"height"`
	BurnHeaderHash string `json:"burn_header_hash"`
	TotalBurn      uint64 `json:"total_burn"`
	NumSortitions  uint64 `json:"num_sortitions"`
	CycleNumber    uint64 `json:"cycle_number"`
	IsPrepare      bool   `json:"is_prepare_phase"`
	Now            int64  `json:"now"`
}

// SnapshotResponse is the /api/snapshot/* response.
type SnapshotResponse struct {
	Height           uint64 `json:"height"`
	BurnHeaderHash   string `json:"burn_header_hash"`
	ParentHeaderHash string `json:"parent_header_hash"`
	Sortition        bool   `json:"sortition"`
	WinningCandidate int    `json:"winning_candidate"`
	WinningTxid      string `json:"winning_txid"`
	BlockBurn        uint64 `json:"block_burn"`
	TotalBurn        uint64 `json:"total_burn"`
	NumSortitions    uint64 `json:"num_sortitions"`
	SortitionHash    string `json:"sortition_hash"`
	OpsHash          string `json:"ops_hash"`
	ConsensusHash    string `json:"consensus_hash"`
	CycleNumber      uint64 `json:"cycle_number"`
	IsPrepare        bool   `json:"is_prepare_phase"`
}

// BalanceResponse is the /api/balance/:address response.
type BalanceResponse struct {
	Address           string `json:"address"`
	Available         uint64 `json:"available"`
	Locked            uint64 `json:"locked"`
	Total             uint64 `json:"total"`
	LastUpdatedHeight uint64 `json:"last_updated_height"`
}

// StackingResponse is the /api/stacking/:address response.
type StackingResponse struct {
	Address         string `json:"address"`
	Stacked         bool   `json:"stacked"`
	RewardAddr      string `json:"reward_address,omitempty"`
	StackedAmount   uint64 `json:"stacked_amount,omitempty"`
	FirstCycle      uint64 `json:"first_cycle,omitempty"`
	LockPeriod      uint8  `json:"lock_period,omitempty"`
	UnlockHeight    uint64 `json:"unlock_height,omitempty"`
	TotalRewards    uint64 `json:"total_rewards,omitempty"`
	LastRewardCycle uint64 `json:"last_reward_cycle,omitempty"`
}

// CycleResponse is the /api/cycle/:number response.
type CycleResponse struct {
	CycleNumber  uint64          `json:"cycle_number"`
	TotalStacked uint64          `json:"total_stacked"`
	TotalBurn    uint64          `json:"total_burn"`
	RewardPool   uint64          `json:"reward_pool"`
	Sealed       bool            `json:"sealed"`
	StackerCount int             `json:"stacker_count"`
	Payouts      []PayoutPayload `json:"payouts,omitempty"`
}

// PayoutPayload is one locker's payout within a sealed cycle.
type PayoutPayload struct {
	Stacker    string `json:"stacker"`
	RewardAddr string `json:"reward_address"`
	Amount     uint64 `json:"amount"`
}

// NewServer creates a new explorer API server against sink (read-only;
// never begins a transaction, since this surface only ever reads).
func NewServer(cfg *config.Config, network l1addr.Network, sink store.KVStore) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		network: network,
		sink:    sink,
		router:  router,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the explorer's API endpoints.
func (s *Server) setupRoutes() {
	s.router.Use(func(c *gin.Context) {
		origin := "*"
		if len(s.cfg.API.CORSOrigins) > 0 {
			origin = s.cfg.API.CORSOrigins[0]
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/snapshot/:height", s.handleSnapshotByHeight)
		api.GET("/snapshot/hash/:hash", s.handleSnapshotByHash)
		api.GET("/balance/:address", s.handleBalance)
		api.GET("/stacking/:address", s.handleStacking)
		api.GET("/cycle/:number", s.handleCycle)
		api.GET("/upstreams", s.handleUpstreams)
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Start begins the API server.
func (s *Server) Start() error {
	if !s.cfg.API.Enabled {
		util.Info("explorer API disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:    s.cfg.API.Bind,
		Handler: s.router,
	}

	util.Infof("explorer API listening on %s", s.cfg.API.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("explorer API error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// SetUpstreamStateFunc sets the callback used by /api/upstreams.
func (s *Server) SetUpstreamStateFunc(fn UpstreamStateFunc) {
	s.upstreamStateFunc = fn
}

// handleStatus returns the node's current chain tip and sync state,
// cached per cfg.API.StatsCache the same way the teacher caches its pool
// stats response.
func (s *Server) handleStatus(c *gin.Context) {
	s.statusCacheMu.RLock()
	if s.statusCache != nil && time.Since(s.statusCacheTime) < s.cfg.API.StatsCache {
		cache := s.statusCache
		s.statusCacheMu.RUnlock()
		c.JSON(200, cache)
		return
	}
	s.statusCacheMu.RUnlock()

	tip, ok, err := store.GetTip(c.Request.Context(), s.sink)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read chain tip"})
		return
	}
	if !ok {
		c.JSON(200, &StatusResponse{Now: time.Now().Unix()})
		return
	}

	snap, ok, err := store.GetSnapshot(c.Request.Context(), s.sink, tip.Height)
	if err != nil || !ok {
		c.JSON(500, gin.H{"error": "failed to read tip snapshot"})
		return
	}

	response := &StatusResponse{
		Height:         snap.Height,
		BurnHeaderHash: hexString(snap.BurnHeaderHash),
		TotalBurn:      snap.TotalBurn,
		NumSortitions:  snap.NumSortitions,
		CycleNumber:    snap.CycleNumber,
		IsPrepare:      snap.IsPrepare,
		Now:            time.Now().Unix(),
	}

	s.statusCacheMu.Lock()
	s.statusCache = response
	s.statusCacheTime = time.Now()
	s.statusCacheMu.Unlock()

	c.JSON(200, response)
}

// handleSnapshotByHeight returns a sealed snapshot by its L1 block height.
func (s *Server) handleSnapshotByHeight(c *gin.Context) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid height"})
		return
	}

	snap, ok, err := store.GetSnapshot(c.Request.Context(), s.sink, height)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read snapshot"})
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": "snapshot not found"})
		return
	}

	c.JSON(200, snapshotResponse(snap))
}

// handleSnapshotByHash returns a sealed snapshot by its burn header hash.
func (s *Server) handleSnapshotByHash(c *gin.Context) {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid hash"})
		return
	}

	snap, ok, err := store.GetSnapshotByHash(c.Request.Context(), s.sink, hash)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read snapshot"})
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": "snapshot not found"})
		return
	}

	c.JSON(200, snapshotResponse(snap))
}

// handleBalance returns an L2 account's token balance.
func (s *Server) handleBalance(c *gin.Context) {
	address := c.Param("address")
	if !s.validAddress(address) {
		c.JSON(400, gin.H{"error": "invalid address"})
		return
	}

	bal, err := store.GetBalance(c.Request.Context(), s.sink, address)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read balance"})
		return
	}

	c.JSON(200, BalanceResponse{
		Address:           address,
		Available:         bal.Available,
		Locked:            bal.Locked,
		Total:             bal.Total(),
		LastUpdatedHeight: bal.LastUpdatedHeight,
	})
}

// handleStacking returns an L2 account's stacking position, if any.
func (s *Server) handleStacking(c *gin.Context) {
	address := c.Param("address")
	if !s.validAddress(address) {
		c.JSON(400, gin.H{"error": "invalid address"})
		return
	}

	st, ok, err := store.GetStacking(c.Request.Context(), s.sink, address)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read stacking position"})
		return
	}
	if !ok {
		c.JSON(200, StackingResponse{Address: address, Stacked: false})
		return
	}

	c.JSON(200, StackingResponse{
		Address:         address,
		Stacked:         true,
		RewardAddr:      st.RewardAddr.String(),
		StackedAmount:   st.StackedAmount,
		FirstCycle:      st.FirstCycle,
		LockPeriod:      st.LockPeriod,
		UnlockHeight:    st.UnlockHeight,
		TotalRewards:    st.TotalRewards,
		LastRewardCycle: st.LastRewardCycle,
	})
}

// handleCycle returns a reward cycle's accounting and, once sealed, its
// locker payouts.
func (s *Server) handleCycle(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid cycle number"})
		return
	}

	rec, ok, err := store.GetRewardCycle(c.Request.Context(), s.sink, n)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to read reward cycle"})
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": "reward cycle not found"})
		return
	}

	payouts := make([]PayoutPayload, len(rec.Payouts))
	for i, p := range rec.Payouts {
		payouts[i] = PayoutPayload{
			Stacker:    p.Stacker,
			RewardAddr: p.RewardAddr.String(),
			Amount:     p.Amount,
		}
	}

	c.JSON(200, CycleResponse{
		CycleNumber:  rec.Cycle.CycleNumber,
		TotalStacked: rec.Cycle.TotalStacked,
		TotalBurn:    rec.Cycle.TotalBurn,
		RewardPool:   rec.Cycle.RewardPool,
		Sealed:       rec.Cycle.Sealed,
		StackerCount: len(rec.Cycle.Stackers),
		Payouts:      payouts,
	})
}

// handleUpstreams returns L1 RPC pool health, mirroring the teacher's
// upstream-status surface.
func (s *Server) handleUpstreams(c *gin.Context) {
	if s.upstreamStateFunc == nil {
		c.JSON(200, gin.H{"upstreams": []l1rpc.NodeStatus{}, "total": 0, "healthy": 0})
		return
	}

	statuses := s.upstreamStateFunc()
	healthy := 0
	for _, u := range statuses {
		if u.Healthy {
			healthy++
		}
	}

	c.JSON(200, gin.H{
		"upstreams": statuses,
		"total":     len(statuses),
		"healthy":   healthy,
	})
}

func (s *Server) validAddress(addr string) bool {
	_, err := l1addr.Decode(addr, s.network)
	return err == nil
}

func snapshotResponse(snap store.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Height:           snap.Height,
		BurnHeaderHash:   hexString(snap.BurnHeaderHash),
		ParentHeaderHash: hexString(snap.ParentHeaderHash),
		Sortition:        snap.Sortition,
		WinningCandidate: snap.WinningCandidate,
		WinningTxid:      hexString(snap.WinningTxid),
		BlockBurn:        snap.BlockBurn,
		TotalBurn:        snap.TotalBurn,
		NumSortitions:    snap.NumSortitions,
		SortitionHash:    hexString(snap.SortitionHash),
		OpsHash:          hexString(snap.OpsHash),
		ConsensusHash:    hexString(snap.ConsensusHash),
		CycleNumber:      snap.CycleNumber,
		IsPrepare:        snap.IsPrepare,
	}
}

func hexString(b [32]byte) string {
	return util.BytesToHexNoPre(b[:])
}

func parseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := util.HexToBytes(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
