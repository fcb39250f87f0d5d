// Package l1rpc provides L1 (BitcoinZ-family) node communication over its
// Bitcoin-compatible JSON-RPC interface.
package l1rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/util"
)

// Client talks to a single L1 node over HTTP Basic Auth JSON-RPC 2.0, using
// Bitcoin-style positional ("array") params.
type Client struct {
	url      string
	user     string
	password string
	http     *http.Client
	requestID uint64

	mu           sync.RWMutex
	healthy      bool
	lastCheck    time.Time
	successCount int
	failCount    int
}

// NewClient builds a client against a single L1 RPC endpoint.
func NewClient(url, user, password string, timeout time.Duration) *Client {
	return &Client{
		url:      url,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: timeout},
		healthy:  true,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError mirrors the L1 node's JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("l1 rpc error %d: %s", e.Code, e.Message)
}

// call issues one JSON-RPC request with positional params and returns the
// raw result payload.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.requestID, 1)
	if params == nil {
		params = []interface{}{}
	}

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindInvalidInput, "encode rpc request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindConnectionError, "build rpc request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.recordFailure()
		if ctx.Err() != nil {
			return nil, chainerr.Wrap(chainerr.KindTimeout, "rpc call timed out", err)
		}
		return nil, chainerr.Wrap(chainerr.KindConnectionError, "rpc call failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, chainerr.Wrap(chainerr.KindConnectionError, "read rpc response", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.recordFailure()
		return nil, chainerr.Wrap(chainerr.KindRPCError, "decode rpc response", err)
	}

	if rpcResp.Error != nil {
		c.recordFailure()
		return nil, chainerr.Wrap(chainerr.KindRPCError, "rpc call rejected", rpcResp.Error)
	}

	c.recordSuccess()
	return rpcResp.Result, nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successCount++
	c.failCount = 0
	c.healthy = true
	c.lastCheck = time.Now()
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount++
	if c.failCount >= 3 {
		c.healthy = false
		util.Warnf("l1 node %s marked unhealthy after %d failures", c.url, c.failCount)
	}
	c.lastCheck = time.Now()
}

// IsHealthy reports whether the last few calls against this node succeeded.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// BlockchainInfo is the subset of getblockchaininfo this module consumes.
type BlockchainInfo struct {
	Chain         string  `json:"chain"`
	Blocks        uint64  `json:"blocks"`
	BestBlockHash string  `json:"bestblockhash"`
	Difficulty    float64 `json:"difficulty"`
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	result, err := c.call(ctx, "getblockchaininfo")
	if err != nil {
		return nil, err
	}
	var info BlockchainInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, chainerr.Wrap(chainerr.KindRPCError, "decode getblockchaininfo", err)
	}
	return &info, nil
}

// GetBlockCount calls getblockcount.
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "getblockcount")
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, chainerr.Wrap(chainerr.KindRPCError, "decode getblockcount", err)
	}
	return height, nil
}

// GetBlockHash calls getblockhash for a given height.
func (c *Client) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	result, err := c.call(ctx, "getblockhash", height)
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", chainerr.Wrap(chainerr.KindRPCError, "decode getblockhash", err)
	}
	return hash, nil
}

// TxOut is one transaction output, including its scriptPubKey.
type TxOut struct {
	Value        float64 `json:"value"`
	N            uint32  `json:"n"`
	ScriptPubKey struct {
		Hex  string `json:"hex"`
		Type string `json:"type"`
	} `json:"scriptPubKey"`
}

// RawTx is a transaction as embedded in a verbosity-2 getblock response.
type RawTx struct {
	Txid string  `json:"txid"`
	Vout []TxOut `json:"vout"`
}

// Block is an L1 block at verbosity 2 (full transaction data inlined).
type Block struct {
	Hash              string  `json:"hash"`
	PreviousBlockHash string  `json:"previousblockhash"`
	Height            uint64  `json:"height"`
	Time              uint64  `json:"time"`
	Tx                []RawTx `json:"tx"`
}

// GetBlock calls getblock at verbosity 2 for a given hash.
func (c *Client) GetBlock(ctx context.Context, hash string) (*Block, error) {
	result, err := c.call(ctx, "getblock", hash, 2)
	if err != nil {
		return nil, err
	}
	var block Block
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, chainerr.Wrap(chainerr.KindRPCError, "decode getblock", err)
	}
	return &block, nil
}

// GetBlockByHeight resolves a height to a hash, then fetches the block.
func (c *Client) GetBlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	hash, err := c.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	return c.GetBlock(ctx, hash)
}

// GetBestBlockHash calls getbestblockhash.
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "getbestblockhash")
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", chainerr.Wrap(chainerr.KindRPCError, "decode getbestblockhash", err)
	}
	return hash, nil
}

// SendRawTransaction broadcasts a signed, hex-encoded transaction.
func (c *Client) SendRawTransaction(ctx context.Context, hexTx string) (string, error) {
	result, err := c.call(ctx, "sendrawtransaction", hexTx)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", chainerr.Wrap(chainerr.KindRPCError, "decode sendrawtransaction", err)
	}
	return txid, nil
}

// ValidateAddress calls validateaddress and reports whether the address is
// well-formed from the L1 node's point of view.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	result, err := c.call(ctx, "validateaddress", address)
	if err != nil {
		return false, err
	}
	var resp struct {
		IsValid bool `json:"isvalid"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return false, chainerr.Wrap(chainerr.KindRPCError, "decode validateaddress", err)
	}
	return resp.IsValid, nil
}
