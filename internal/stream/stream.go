// Package stream provides a WebSocket push server that broadcasts sealed
// snapshots and cycle seals to subscribed explorer clients in real time.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/policy"
	"github.com/btczs/btczs-l2/internal/store"
	"github.com/btczs/btczs-l2/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	channelBlocks = "blocks"
	channelCycles = "cycles"
)

// Server pushes SnapshotEvent/CycleSealedEvent notifications to every
// client subscribed to the matching channel.
type Server struct {
	cfg    *config.Config
	policy *policy.PolicyServer
	server *http.Server

	clients   sync.Map // clientID -> *Client
	clientSeq uint64

	latestBlock atomic.Value // *SnapshotEvent
	latestCycle atomic.Value // *CycleSealedEvent

	quit chan struct{}
	wg   sync.WaitGroup
}

// Client represents one connected WebSocket subscriber.
type Client struct {
	ID          uint64
	Conn        *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	subMu sync.RWMutex
	subs  map[string]bool

	writeMu sync.Mutex
	quit    chan struct{}
}

func (c *Client) subscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[channel]
}

func (c *Client) subscribe(channel string) {
	c.subMu.Lock()
	c.subs[channel] = true
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.subMu.Lock()
	delete(c.subs, channel)
	c.subMu.Unlock()
}

// wsRequest is a JSON-RPC-shaped request from a client.
type wsRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// wsResponse is a JSON-RPC-shaped response to a client.
type wsResponse struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

// wsNotify is a server-pushed notification.
type wsNotify struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// SnapshotEvent is broadcast on the "blocks" channel each time a new L1
// block is sealed into a snapshot.
type SnapshotEvent struct {
	Height         uint64 `json:"height"`
	BurnHeaderHash string `json:"burn_header_hash"`
	Sortition      bool   `json:"sortition"`
	BlockBurn      uint64 `json:"block_burn"`
	TotalBurn      uint64 `json:"total_burn"`
	CycleNumber    uint64 `json:"cycle_number"`
}

// CycleSealedEvent is broadcast on the "cycles" channel once a reward
// cycle seals and its payouts are computed.
type CycleSealedEvent struct {
	CycleNumber  uint64 `json:"cycle_number"`
	TotalStacked uint64 `json:"total_stacked"`
	RewardPool   uint64 `json:"reward_pool"`
	PayoutCount  int    `json:"payout_count"`
}

// NewServer creates a new stream push server.
func NewServer(cfg *config.Config, ps *policy.PolicyServer) *Server {
	return &Server{
		cfg:    cfg,
		policy: ps,
		quit:   make(chan struct{}),
	}
}

// Start begins the stream server.
func (s *Server) Start() error {
	if !s.cfg.Stream.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleConnection)

	s.server = &http.Server{
		Addr:    s.cfg.Stream.Bind,
		Handler: mux,
	}

	util.Infof("stream server listening on %s", s.cfg.Stream.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("stream server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the stream server and all connected clients.
func (s *Server) Stop() {
	close(s.quit)

	if s.server != nil {
		s.server.Close()
	}

	s.clients.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		client.Conn.Close()
		return true
	})

	s.wg.Wait()
	util.Info("stream server stopped")
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}

	if s.policy != nil {
		if s.policy.IsBanned(ip) {
			http.Error(w, "banned", http.StatusForbidden)
			return
		}
		if !s.policy.ApplyConnectionLimit(ip) {
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("stream upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:          atomic.AddUint64(&s.clientSeq, 1),
		Conn:        conn,
		RemoteAddr:  ip,
		ConnectedAt: time.Now(),
		subs:        make(map[string]bool),
		quit:        make(chan struct{}),
	}

	s.clients.Store(client.ID, client)
	util.Debugf("stream client %d connected from %s", client.ID, ip)

	s.wg.Add(1)
	go s.handleClient(client)
}

func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer func() {
		client.Conn.Close()
		s.clients.Delete(client.ID)
		close(client.quit)
		util.Debugf("stream client %d disconnected", client.ID)
	}()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if s.policy != nil {
				s.policy.ApplyMalformedPolicy(client.RemoteAddr)
			}
			s.sendError(client, nil, -32700, "parse error")
			continue
		}

		s.handleRequest(client, &req)
	}
}

func (s *Server) handleRequest(client *Client, req *wsRequest) {
	switch req.Method {
	case "subscribe":
		s.handleSubscribe(client, req)
	case "unsubscribe":
		s.handleUnsubscribe(client, req)
	default:
		s.sendError(client, req.ID, -32601, "method not found")
	}
}

func (s *Server) handleSubscribe(client *Client, req *wsRequest) {
	if s.policy != nil {
		s.policy.ApplySubscribeScore(client.RemoteAddr)
	}

	if len(req.Params) < 1 {
		s.sendError(client, req.ID, -1, "invalid params")
		return
	}
	channel, ok := req.Params[0].(string)
	if !ok || (channel != channelBlocks && channel != channelCycles) {
		s.sendError(client, req.ID, -1, "unknown channel, want \"blocks\" or \"cycles\"")
		return
	}

	client.subscribe(channel)
	s.sendResult(client, req.ID, true)

	switch channel {
	case channelBlocks:
		if v := s.latestBlock.Load(); v != nil {
			s.sendNotify(client, "block", v.(*SnapshotEvent))
		}
	case channelCycles:
		if v := s.latestCycle.Load(); v != nil {
			s.sendNotify(client, "cycle", v.(*CycleSealedEvent))
		}
	}
}

func (s *Server) handleUnsubscribe(client *Client, req *wsRequest) {
	if len(req.Params) < 1 {
		s.sendError(client, req.ID, -1, "invalid params")
		return
	}
	channel, ok := req.Params[0].(string)
	if !ok {
		s.sendError(client, req.ID, -1, "invalid channel")
		return
	}

	client.unsubscribe(channel)
	s.sendResult(client, req.ID, true)
}

// BroadcastSnapshot pushes a newly sealed snapshot to every client
// subscribed to the "blocks" channel.
func (s *Server) BroadcastSnapshot(evt *SnapshotEvent) {
	s.latestBlock.Store(evt)

	s.clients.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		if client.subscribed(channelBlocks) {
			s.sendNotify(client, "block", evt)
		}
		return true
	})
}

// BroadcastCycleSealed pushes a newly sealed reward cycle to every client
// subscribed to the "cycles" channel.
func (s *Server) BroadcastCycleSealed(evt *CycleSealedEvent) {
	s.latestCycle.Store(evt)

	s.clients.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		if client.subscribed(channelCycles) {
			s.sendNotify(client, "cycle", evt)
		}
		return true
	})
}

func (s *Server) sendResult(client *Client, id interface{}, result interface{}) {
	s.send(client, wsResponse{ID: id, Result: result})
}

func (s *Server) sendError(client *Client, id interface{}, code int, message string) {
	s.send(client, wsResponse{ID: id, Error: []interface{}{code, message, nil}})
}

func (s *Server) sendNotify(client *Client, method string, params interface{}) {
	s.send(client, wsNotify{Method: method, Params: params})
}

func (s *Server) send(client *Client, msg interface{}) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := client.Conn.WriteJSON(msg); err != nil {
		util.Debugf("stream write error for client %d: %v", client.ID, err)
	}
}

// SnapshotSealed satisfies internal/engine.EventSink, translating a
// persisted store.Snapshot into a broadcastable SnapshotEvent.
func (s *Server) SnapshotSealed(snap store.Snapshot) {
	s.BroadcastSnapshot(&SnapshotEvent{
		Height:         snap.Height,
		BurnHeaderHash: util.BytesToHexNoPre(snap.BurnHeaderHash[:]),
		Sortition:      snap.Sortition,
		BlockBurn:      snap.BlockBurn,
		TotalBurn:      snap.TotalBurn,
		CycleNumber:    snap.CycleNumber,
	})
}

// CycleSealed satisfies internal/engine.EventSink.
func (s *Server) CycleSealed(cycleNumber, totalStacked, rewardPool uint64, payoutCount int) {
	s.BroadcastCycleSealed(&CycleSealedEvent{
		CycleNumber:  cycleNumber,
		TotalStacked: totalStacked,
		RewardPool:   rewardPool,
		PayoutCount:  payoutCount,
	})
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	count := 0
	s.clients.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
