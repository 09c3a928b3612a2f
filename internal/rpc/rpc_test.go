package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/dashsend/internal/backend"
	"github.com/klingon-exchange/dashsend/internal/node"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const broadcastTxID = "9f2c45a12db0144909b5db269415f7319179105982ac70ed80d76ea79d923ebf"

// fakeInsight serves the sender's coins and accepts broadcasts.
type fakeInsight struct {
	mu        sync.Mutex
	script    string
	sendPaths []string
}

func (f *fakeInsight) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/status":
		fmt.Fprint(w, `{"info":{}}`)
	case strings.HasSuffix(r.URL.Path, "/utxo"):
		fmt.Fprintf(w, `[
			{"txid":"%s","vout":0,"satoshis":30000,"scriptPubKey":"%s","confirmations":6},
			{"txid":"%s","vout":5,"satoshis":90000,"scriptPubKey":"%s","confirmations":2}
		]`, strings.Repeat("ab", 32), f.script, strings.Repeat("cd", 32), f.script)
	case strings.HasPrefix(r.URL.Path, "/tx/send"):
		f.sendPaths = append(f.sendPaths, r.URL.Path)
		fmt.Fprintf(w, `{"txid":"%s"}`, broadcastTxID)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInsight) sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sendPaths...)
}

type testEnv struct {
	server   *Server
	http     *httptest.Server
	insight  *fakeInsight
	node     *node.Node
	sender   *wallet.KeyPair
	explorer *httptest.Server
}

func newTestEnv(t *testing.T, broadcast bool) *testEnv {
	t.Helper()

	insight := &fakeInsight{}
	explorer := httptest.NewServer(insight)
	t.Cleanup(explorer.Close)

	cfg := node.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Wallet.Mnemonic = testMnemonic
	cfg.Broadcast.Enabled = broadcast
	cfg.Backends = map[string]*backend.Config{
		"DASH": {Type: backend.TypeInsight, MainnetURL: explorer.URL},
	}

	n, err := node.New(cfg)
	if err != nil {
		t.Fatalf("node.New failed: %v", err)
	}
	t.Cleanup(func() { n.Close() })

	if err := n.UnlockWallet(""); err != nil {
		t.Fatalf("UnlockWallet failed: %v", err)
	}
	sender, err := n.Transfers().Sender()
	if err != nil {
		t.Fatalf("Sender failed: %v", err)
	}

	script, err := txbuilder.PayToPubKeyHashScript(sender.PubKeyHash)
	if err != nil {
		t.Fatal(err)
	}
	insight.mu.Lock()
	insight.script = hex.EncodeToString(script)
	insight.mu.Unlock()

	s := NewServer(n)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: s, http: ts, insight: insight, node: n, sender: sender, explorer: explorer}
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	ID      interface{}     `json:"id"`
}

func (e *testEnv) call(t *testing.T, method string, params interface{}) *rawResponse {
	t.Helper()

	req := map[string]interface{}{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		req["params"] = params
	}
	body, _ := json.Marshal(req)

	resp, err := http.Post(e.http.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	var out rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &out
}

func (e *testEnv) recipient(t *testing.T) string {
	t.Helper()
	addr, err := wallet.EncodePubKeyHash(bytes.Repeat([]byte{0x33}, 20), e.node.Params())
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func decodeResult(t *testing.T, resp *rawResponse, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

func TestResponse(t *testing.T) {
	errorResp := &Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    InvalidRequest,
			Message: "Invalid Request",
		},
		ID: 1,
	}

	data, err := json.Marshal(errorResp)
	if err != nil {
		t.Fatalf("failed to marshal error response: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response must not carry a result: %s", data)
	}

	var parsed Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if parsed.Error == nil || parsed.Error.Code != InvalidRequest {
		t.Errorf("unexpected error: %+v", parsed.Error)
	}
}

func TestHTTPProtocolErrors(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := http.Get(env.http.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{not json`, ParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"node_info","id":1}`, InvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"wallet_balance","id":1}`, MethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.http.URL, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s", ct)
			}

			var out rawResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.Error == nil || out.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", out.Error, tt.code)
			}
		})
	}
}

func TestNodeInfo(t *testing.T) {
	env := newTestEnv(t, false)

	var info NodeInfoResult
	decodeResult(t, env.call(t, "node_info", nil), &info)

	if info.Chain != "DASH" || info.Network != "mainnet" {
		t.Errorf("unexpected chain/network: %s/%s", info.Chain, info.Network)
	}
	if info.Backend != string(backend.TypeInsight) {
		t.Errorf("Backend = %s", info.Backend)
	}
	if info.BackendURL != env.explorer.URL {
		t.Errorf("BackendURL = %s, want %s", info.BackendURL, env.explorer.URL)
	}
	if info.BroadcastEnabled {
		t.Error("broadcast should be disabled")
	}
	if !info.WalletUnlocked {
		t.Error("wallet should be unlocked")
	}
	if info.FeeRate != 1 || info.ChangeFloor != 2034 {
		t.Errorf("fee rate %d, change floor %d", info.FeeRate, info.ChangeFloor)
	}
}

func TestWalletAddress(t *testing.T) {
	env := newTestEnv(t, false)

	var def WalletAddressResult
	decodeResult(t, env.call(t, "wallet_address", nil), &def)
	if def.Address != env.sender.Address {
		t.Errorf("Address = %s, want %s", def.Address, env.sender.Address)
	}
	if def.Path != "m/44'/5'/0'/0/0" {
		t.Errorf("Path = %s", def.Path)
	}

	var next WalletAddressResult
	decodeResult(t, env.call(t, "wallet_address", map[string]interface{}{"index": 1}), &next)
	if next.Path != "m/44'/5'/0'/0/1" {
		t.Errorf("Path = %s", next.Path)
	}
	if next.Address == def.Address {
		t.Error("index 1 should derive a different address")
	}

	var byPath WalletAddressResult
	decodeResult(t, env.call(t, "wallet_address", map[string]interface{}{"path": "m/44'/5'/0'/0/1"}), &byPath)
	if byPath.Address != next.Address {
		t.Errorf("path and index disagree: %s vs %s", byPath.Address, next.Address)
	}

	resp := env.call(t, "wallet_address", map[string]interface{}{"path": "44/5"})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("expected InvalidParams, got %+v", resp.Error)
	}
}

func TestTransferBuild(t *testing.T) {
	env := newTestEnv(t, false)

	var tx UnsignedTxResult
	decodeResult(t, env.call(t, "transfer_build", TransferBuildParams{
		Recipient: env.recipient(t),
		Amount:    "0.001",
		Memo:      "🧧",
	}), &tx)

	if tx.Version != 3 || tx.LockTime != 0 {
		t.Errorf("version %d locktime %d", tx.Version, tx.LockTime)
	}
	if len(tx.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(tx.Inputs))
	}
	if tx.Inputs[0].Amount != 30000 || tx.Inputs[1].Amount != 90000 {
		t.Errorf("inputs not smallest first: %+v", tx.Inputs)
	}
	if len(tx.Outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(tx.Outputs))
	}
	if tx.Outputs[0].Address != env.recipient(t) || tx.Outputs[0].Amount != 100000 {
		t.Errorf("payment output = %+v", tx.Outputs[0])
	}
	if tx.Outputs[1].Memo != "🧧" || tx.Outputs[1].Amount != 0 {
		t.Errorf("memo output = %+v", tx.Outputs[1])
	}
	if !tx.Outputs[2].Change || tx.Outputs[2].Address != env.sender.Address {
		t.Errorf("change output = %+v", tx.Outputs[2])
	}
	if tx.Fee != 410 || tx.Outputs[2].Amount != 19590 {
		t.Errorf("fee %d change %d", tx.Fee, tx.Outputs[2].Amount)
	}
	if tx.InputTotal != "120000" {
		t.Errorf("InputTotal = %s", tx.InputTotal)
	}
}

func TestTransferErrors(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"missing recipient", "transfer_build", TransferBuildParams{Amount: "1"}, InvalidParams},
		{"bad address", "transfer_build", TransferBuildParams{Recipient: "nope", Amount: "1"}, InvalidParams},
		{"bad amount", "transfer_build", TransferBuildParams{Recipient: env.recipient(t), Amount: "1.2.3"}, InvalidParams},
		{"insufficient", "transfer_build", TransferBuildParams{Recipient: env.recipient(t), Amount: "10"}, InsufficientFunds},
		{"broadcast disabled", "transfer_send", TransferSendParams{Recipient: env.recipient(t), Amount: "0.001", Broadcast: true}, BroadcastDisabled},
		{"unknown transfer", "transfer_get", TransferGetParams{ID: "missing"}, NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.call(t, tt.method, tt.params)
			if resp.Error == nil {
				t.Fatalf("expected error code %d, got result %s", tt.code, resp.Result)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, tt.code)
			}
		})
	}
}

func TestTransferInsufficientFundsData(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.call(t, "transfer_build", TransferBuildParams{Recipient: env.recipient(t), Amount: "0.0012"})
	if resp.Error == nil || resp.Error.Code != InsufficientFunds {
		t.Fatalf("expected InsufficientFunds, got %+v", resp.Error)
	}

	data, _ := json.Marshal(resp.Error.Data)
	var details InsufficientFundsData
	if err := json.Unmarshal(data, &details); err != nil {
		t.Fatal(err)
	}

	// fee(2 inputs, 1 output) = 10 + 2*149 + 34 = 342
	if details.Required != 120342 || details.Available != 120000 || details.Shortfall != 342 {
		t.Errorf("unexpected details %+v", details)
	}
}

func TestTransferSendAndHistory(t *testing.T) {
	env := newTestEnv(t, false)

	var sent TransferSendResult
	decodeResult(t, env.call(t, "transfer_send", TransferSendParams{
		Recipient: env.recipient(t),
		Amount:    "0.001",
		Memo:      "🧧",
	}), &sent)

	if sent.Transfer.Status != "signed" {
		t.Errorf("Status = %s", sent.Transfer.Status)
	}
	if sent.Transfer.AmountDecimal != "0.001" {
		t.Errorf("AmountDecimal = %s", sent.Transfer.AmountDecimal)
	}
	if sent.DecodeURL != "https://live.blockcypher.com/dash/decodetx/" {
		t.Errorf("DecodeURL = %s", sent.DecodeURL)
	}
	if sent.Size*2 != len(sent.Transfer.RawTx) {
		t.Errorf("size %d does not match raw hex length %d", sent.Size, len(sent.Transfer.RawTx))
	}
	if sends := env.insight.sends(); len(sends) != 0 {
		t.Errorf("nothing should be broadcast, got %v", sends)
	}

	var got TransferResult
	decodeResult(t, env.call(t, "transfer_get", TransferGetParams{ID: sent.Transfer.ID}), &got)
	if got.TxID != sent.Transfer.TxID || got.Memo != "🧧" {
		t.Errorf("transfer_get mismatch: %+v", got)
	}

	var history TransferHistoryResult
	decodeResult(t, env.call(t, "transfer_history", nil), &history)
	if history.Count != 1 || history.Transfers[0].ID != sent.Transfer.ID {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestTransferSendBroadcast(t *testing.T) {
	env := newTestEnv(t, true)

	var sent TransferSendResult
	decodeResult(t, env.call(t, "transfer_send", TransferSendParams{
		Recipient: env.recipient(t),
		Amount:    "0.001",
		Broadcast: true,
	}), &sent)

	if sent.Transfer.Status != "broadcast" {
		t.Errorf("Status = %s", sent.Transfer.Status)
	}
	if sent.Transfer.BroadcastRef != broadcastTxID {
		t.Errorf("BroadcastRef = %s", sent.Transfer.BroadcastRef)
	}
	if sends := env.insight.sends(); len(sends) != 1 || sends[0] != "/tx/sendix" {
		t.Errorf("expected one InstantSend submission, got %v", sends)
	}

	// Coins are reserved by the first transfer.
	resp := env.call(t, "transfer_send", TransferSendParams{
		Recipient: env.recipient(t),
		Amount:    "0.001",
		Broadcast: true,
	})
	if resp.Error == nil || resp.Error.Code != BroadcastFailed {
		t.Fatalf("expected BroadcastFailed, got %+v", resp.Error)
	}

	// The failed transfer is journaled and reachable through its id.
	data, ok := resp.Error.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("error data = %#v", resp.Error.Data)
	}
	id, _ := data["transfer_id"].(string)
	if id == "" || id == sent.Transfer.ID {
		t.Fatalf("transfer_id = %v", data["transfer_id"])
	}
	if data["status"] != "failed" || data["txid"] == "" {
		t.Errorf("error data = %v", data)
	}

	var failed TransferResult
	decodeResult(t, env.call(t, "transfer_get", TransferGetParams{ID: id}), &failed)
	if failed.Status != "failed" || failed.FailureReason == "" {
		t.Errorf("journaled transfer = %+v", failed)
	}
}

// dialEvents starts the feed and connects a websocket subscriber.
func dialEvents(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.server.Events().Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for env.server.Events().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var event Event
	if err := json.Unmarshal(frame, &event); err != nil {
		t.Fatalf("bad event %s: %v", frame, err)
	}
	return event
}

func TestWebSocketEvents(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialEvents(t, env, "")

	var sent TransferSendResult
	decodeResult(t, env.call(t, "transfer_send", TransferSendParams{
		Recipient: env.recipient(t),
		Amount:    "0.001",
	}), &sent)

	event := readEvent(t, conn)
	if event.Type != EventTransferSigned {
		t.Fatalf("event type = %s, want %s", event.Type, EventTransferSigned)
	}
	if event.Time == 0 {
		t.Error("event has no timestamp")
	}
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("event data = %T", event.Data)
	}
	if data["id"] != sent.Transfer.ID || data["status"] != "signed" {
		t.Errorf("event data = %v, want signed transfer %s", data, sent.Transfer.ID)
	}
}

func TestWebSocketEventFilter(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialEvents(t, env, "?events=transfer_signed")

	// transfer_built is published first but filtered out.
	env.call(t, "transfer_build", TransferBuildParams{Recipient: env.recipient(t), Amount: "0.001"})
	env.call(t, "transfer_send", TransferSendParams{Recipient: env.recipient(t), Amount: "0.001"})

	if event := readEvent(t, conn); event.Type != EventTransferSigned {
		t.Errorf("event type = %s, want %s", event.Type, EventTransferSigned)
	}
}

func TestWebSocketRejectsUnknownEvent(t *testing.T) {
	env := newTestEnv(t, false)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?events=transfer_signed,wallet_balance"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %+v, want 400", resp)
	}
}

func TestEventFeedShutdown(t *testing.T) {
	env := newTestEnv(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.server.Events().Run(ctx)
		close(done)
	}()

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.server.Events().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	if n := env.server.Events().Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after shutdown", n)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}

	// Late subscribers are turned away.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("late read = %v, want going-away close", err)
	}
}

func TestParseEventFilter(t *testing.T) {
	tests := []struct {
		raw     string
		want    []EventType
		wantErr bool
	}{
		{"", nil, false},
		{"transfer_signed", []EventType{EventTransferSigned}, false},
		{" transfer_built , transfer_failed ,", []EventType{EventTransferBuilt, EventTransferFailed}, false},
		{"transfer_signed,bogus", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			filter, err := parseEventFilter(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEventFilter(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(filter) != len(tt.want) {
				t.Fatalf("filter = %v, want %v", filter, tt.want)
			}
			for _, e := range tt.want {
				if !filter[e] {
					t.Errorf("filter missing %s", e)
				}
			}
		})
	}
}
