package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"launchpool/internal/engine"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/rail"
)

type fakeSubmitter struct {
	fail bool
}

func (f *fakeSubmitter) SubmitTransfer(ctx context.Context, destination, assetID string, amount uint64) (string, error) {
	if f.fail {
		return "", fmt.Errorf("rail rejected transfer")
	}
	return "0xref", nil
}

func newTestServer(t *testing.T, submitter engine.TransferSubmitter) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Config{}, ledger.New(), submitter, nil, nil, nil)
	srv := httptest.NewServer(NewServer(eng, rail.NewAddressBook(), nil).Router())
	t.Cleanup(srv.Close)
	return srv, eng
}

func seedPool(t *testing.T, eng *engine.Engine) {
	t.Helper()
	if err := eng.Ledger().Credit("creator", model.ReserveAsset, 10_00000000); err != nil {
		t.Fatalf("credit creator: %v", err)
	}
	if _, err := eng.CreatePool("creator", "TOKEN", 1_00000000, 1_000_000); err != nil {
		t.Fatalf("create pool: %v", err)
	}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decodeBody(t, resp, &body)
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreatePoolEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	if err := eng.Ledger().Credit("creator", model.ReserveAsset, 10_00000000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	req := map[string]any{
		"creator":        "creator",
		"asset_id":       "TOKEN",
		"initial_icp":    1_00000000,
		"initial_assets": 1_000_000,
	}

	resp := postJSON(t, srv.URL+"/v1/pools", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var pool model.Pool
	decodeBody(t, resp, &pool)
	if pool.AssetID != "TOKEN" || pool.Status != model.PoolActive {
		t.Fatalf("unexpected pool: %+v", pool)
	}

	resp = postJSON(t, srv.URL+"/v1/pools", req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "pool_already_exists" {
		t.Fatalf("code = %s", code)
	}
}

func TestGetPoolNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/v1/pools/MISSING")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "pool_not_found" {
		t.Fatalf("code = %s", code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seedPool(t, eng)

	resp, err := http.Get(srv.URL + "/v1/pools/TOKEN/quote?direction=buy&amount=10000000&slippage_bps=50")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var quote model.Quote
	decodeBody(t, resp, &quote)
	if quote.AmountOut != 90_662 || quote.Fee != 30_000 || quote.MinimumOut != 90_208 {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	resp, err = http.Get(srv.URL + "/v1/pools/TOKEN/quote?direction=sideways&amount=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad direction status = %d", resp.StatusCode)
	}
}

func TestQuoteRejectsMalformedSlippage(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seedPool(t, eng)

	// Negative and non-numeric values must be rejected, not treated as zero.
	for _, raw := range []string{"-50", "abc", "1.5"} {
		resp, err := http.Get(srv.URL + "/v1/pools/TOKEN/quote?direction=buy&amount=10000000&slippage_bps=" + raw)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("slippage_bps=%s status = %d", raw, resp.StatusCode)
		}
	}

	// Omitted slippage still defaults to zero.
	resp, err := http.Get(srv.URL + "/v1/pools/TOKEN/quote?direction=buy&amount=10000000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var quote model.Quote
	decodeBody(t, resp, &quote)
	if resp.StatusCode != http.StatusOK || quote.MinimumOut != quote.AmountOut {
		t.Fatalf("default slippage quote: status=%d quote=%+v", resp.StatusCode, quote)
	}
}

func TestTradeEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seedPool(t, eng)
	if err := eng.Ledger().Credit("alice", model.ReserveAsset, 1_00000000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	resp := postJSON(t, srv.URL+"/v1/trades", map[string]any{
		"principal":   "alice",
		"asset_id":    "TOKEN",
		"direction":   "buy",
		"amount":      10_000_000,
		"minimum_out": 90_208,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var trade model.Trade
	decodeBody(t, resp, &trade)
	if trade.AmountOut != 90_662 || trade.Sequence != 1 {
		t.Fatalf("unexpected trade: %+v", trade)
	}

	// Minimum above what the curve can deliver.
	resp = postJSON(t, srv.URL+"/v1/trades", map[string]any{
		"principal":   "alice",
		"asset_id":    "TOKEN",
		"direction":   "buy",
		"amount":      10_000_000,
		"minimum_out": 10_000_000_000,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("slippage status = %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "slippage_exceeded" {
		t.Fatalf("code = %s", code)
	}
}

func TestTradeInsufficientBalance(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seedPool(t, eng)

	resp := postJSON(t, srv.URL+"/v1/trades", map[string]any{
		"principal": "pauper",
		"asset_id":  "TOKEN",
		"direction": "buy",
		"amount":    10_000_000,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "insufficient_balance" {
		t.Fatalf("code = %s", code)
	}
}

func TestListTradesEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seedPool(t, eng)
	if err := eng.Ledger().Credit("alice", model.ReserveAsset, 1_00000000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := eng.ExecuteTrade("alice", "TOKEN", model.Buy, 10_000_000, 0); err != nil {
		t.Fatalf("trade: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/pools/TOKEN/trades")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Trades []model.Trade `json:"trades"`
	}
	decodeBody(t, resp, &body)
	if len(body.Trades) != 1 || body.Trades[0].Sequence != 1 {
		t.Fatalf("unexpected trades: %+v", body.Trades)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	if err := eng.Ledger().Credit("alice", model.ReserveAsset, 42); err != nil {
		t.Fatalf("credit: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/balances/alice?asset=ICP")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Available uint64 `json:"available"`
		Locked    uint64 `json:"locked"`
	}
	decodeBody(t, resp, &body)
	if body.Available != 42 || body.Locked != 0 {
		t.Fatalf("unexpected balance: %+v", body)
	}
}

func TestDepositAddressEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/v1/deposits/alice/address")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Address string `json:"address"`
	}
	decodeBody(t, resp, &body)
	if body.Address != rail.DepositAddress("alice").Hex() {
		t.Fatalf("unexpected address: %s", body.Address)
	}
}

func TestWithdrawEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, &fakeSubmitter{})
	if err := eng.Ledger().Credit("alice", model.ReserveAsset, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}

	resp := postJSON(t, srv.URL+"/v1/withdrawals", map[string]any{
		"principal":   "alice",
		"asset_id":    "ICP",
		"amount":      40,
		"destination": "0x1111111111111111111111111111111111111111",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var ref model.TransferRef
	decodeBody(t, resp, &ref)
	if ref.Ref != "0xref" || ref.Amount != 40 {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	funds := eng.Ledger().Funds("alice", model.ReserveAsset)
	if funds.Available != 60 || funds.Locked != 0 {
		t.Fatalf("balance after withdraw: %+v", funds)
	}
}

func TestWithdrawWithoutRail(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	if err := eng.Ledger().Credit("alice", model.ReserveAsset, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}

	resp := postJSON(t, srv.URL+"/v1/withdrawals", map[string]any{
		"principal":   "alice",
		"asset_id":    "ICP",
		"amount":      40,
		"destination": "0x1111111111111111111111111111111111111111",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "rail_unavailable" {
		t.Fatalf("code = %s", code)
	}
}
