package l1rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/btczs/btczs-l2/internal/chainerr"
)

// WalletClient talks to the L1 node's wallet RPC methods, used to issue the
// real L1 transfers a sealed stacking cycle's payouts require (§4.8).
type WalletClient struct {
	client *Client
}

// NewWalletClient builds a wallet client against the same JSON-RPC
// endpoint as the indexing Client, since BitcoinZ-family nodes expose
// wallet methods on the same RPC surface.
func NewWalletClient(url, user, password string, timeout time.Duration) *WalletClient {
	return &WalletClient{client: NewClient(url, user, password, timeout)}
}

// GetBalance returns the wallet's spendable balance in whole coin units.
func (w *WalletClient) GetBalance(ctx context.Context) (float64, error) {
	result, err := w.client.call(ctx, "getbalance")
	if err != nil {
		return 0, err
	}
	var balance float64
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, chainerr.Wrap(chainerr.KindRPCError, "decode getbalance", err)
	}
	return balance, nil
}

// SendToAddress sends amount (whole coin units) to a single L1 address via
// sendtoaddress and returns the resulting txid.
func (w *WalletClient) SendToAddress(ctx context.Context, address string, amount float64) (string, error) {
	result, err := w.client.call(ctx, "sendtoaddress", address, amount)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", chainerr.Wrap(chainerr.KindRPCError, "decode sendtoaddress", err)
	}
	return txid, nil
}

// SendMany batches multiple stacking-reward payouts into a single sendmany
// call (address -> amount in whole coin units), returning one txid that
// covers the whole batch.
func (w *WalletClient) SendMany(ctx context.Context, amounts map[string]float64) (string, error) {
	if len(amounts) == 0 {
		return "", chainerr.New(chainerr.KindInvalidInput, "sendmany requires at least one destination")
	}
	result, err := w.client.call(ctx, "sendmany", "", amounts)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", chainerr.Wrap(chainerr.KindRPCError, "decode sendmany", err)
	}
	return txid, nil
}

// Ping checks that the wallet RPC surface is reachable.
func (w *WalletClient) Ping(ctx context.Context) error {
	_, err := w.client.call(ctx, "getwalletinfo")
	return err
}
