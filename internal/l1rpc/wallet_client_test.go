package l1rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestWalletSendToAddress(t *testing.T) {
	srv := rpcServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "sendtoaddress" {
			t.Fatalf("unexpected method %s", method)
		}
		return "txid123", nil
	})
	defer srv.Close()

	w := &WalletClient{client: NewClient(srv.URL, "", "", 5*time.Second)}
	txid, err := w.SendToAddress(context.Background(), "t1someaddress", 1.5)
	if err != nil {
		t.Fatalf("SendToAddress failed: %v", err)
	}
	if txid != "txid123" {
		t.Errorf("txid = %q, want txid123", txid)
	}
}

func TestSendManyRejectsEmptyDestinations(t *testing.T) {
	w := NewWalletClient("http://unused.invalid", "", "", 2*time.Second)
	_, err := w.SendMany(context.Background(), nil)
	if err == nil {
		t.Error("SendMany with no destinations should error")
	}
}
