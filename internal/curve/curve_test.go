package curve

import (
	"errors"
	"math/big"
	"testing"
)

func TestQuoteBuyReferenceScenario(t *testing.T) {
	r := Reserves{ICP: 1_00000000, Asset: 1_000_000}

	res, err := QuoteBuy(r, 10_000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Fee != 30_000 {
		t.Fatalf("fee mismatch: got %d want 30000", res.Fee)
	}
	if res.AmountOut != 90_662 {
		t.Fatalf("amount out mismatch: got %d want 90662", res.AmountOut)
	}
	if got := MinimumOut(res.AmountOut, 50); got != 90_208 {
		t.Fatalf("minimum out mismatch: got %d want 90208", got)
	}

	// Full input enters the pool, output leaves it.
	if res.Post.ICP != 1_10000000 {
		t.Fatalf("post icp reserve mismatch: got %d", res.Post.ICP)
	}
	if res.Post.Asset != 1_000_000-90_662 {
		t.Fatalf("post asset reserve mismatch: got %d", res.Post.Asset)
	}

	if res.PriceImpactBps != 996 {
		t.Fatalf("price impact mismatch: got %d want 996", res.PriceImpactBps)
	}
	if FormatPrice(res.SpotPrice) != "100.00000000" {
		t.Fatalf("spot price mismatch: got %s", FormatPrice(res.SpotPrice))
	}
}

func TestQuoteBuyRejectsZeroInput(t *testing.T) {
	_, err := QuoteBuy(Reserves{ICP: 1_00000000, Asset: 1_000_000}, 0)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = QuoteSell(Reserves{ICP: 1_00000000, Asset: 1_000_000}, 0)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestQuoteBuyReserveExhausted(t *testing.T) {
	// An input large enough to push the remaining asset reserve below one
	// unit must be rejected, not clipped.
	_, err := QuoteBuy(Reserves{ICP: 100, Asset: 100}, 10_000)
	if !errors.Is(err, ErrReserveExhausted) {
		t.Fatalf("expected ErrReserveExhausted, got %v", err)
	}
}

func TestQuoteSellReserveExhausted(t *testing.T) {
	_, err := QuoteSell(Reserves{ICP: 100, Asset: 100}, 100_000)
	if !errors.Is(err, ErrReserveExhausted) {
		t.Fatalf("expected ErrReserveExhausted, got %v", err)
	}
}

func TestConservationUnderTrades(t *testing.T) {
	r := Reserves{ICP: 1_00000000, Asset: 1_000_000}
	before := productOf(r)

	buys := []uint64{10_000000, 5_000000, 50_000000, 123_456}
	for _, in := range buys {
		res, err := QuoteBuy(r, in)
		if err != nil {
			t.Fatalf("buy %d: %v", in, err)
		}
		r = res.Post
		after := productOf(r)
		if after.Cmp(before) < 0 {
			t.Fatalf("product decreased after buy %d: %s < %s", in, after, before)
		}
		before = after
	}

	sells := []uint64{10_000, 50_000, 1_000}
	for _, in := range sells {
		res, err := QuoteSell(r, in)
		if err != nil {
			t.Fatalf("sell %d: %v", in, err)
		}
		r = res.Post
		after := productOf(r)
		if after.Cmp(before) < 0 {
			t.Fatalf("product decreased after sell %d: %s < %s", in, after, before)
		}
		before = after
	}
}

func TestRoundTripLosesValue(t *testing.T) {
	r := Reserves{ICP: 1_00000000, Asset: 1_000_000}
	spent := uint64(10_000000)

	buy, err := QuoteBuy(r, spent)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	sell, err := QuoteSell(buy.Post, buy.AmountOut)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if sell.AmountOut >= spent {
		t.Fatalf("round trip should lose value: got back %d of %d", sell.AmountOut, spent)
	}
}

func TestSellFeeOnOutputLeg(t *testing.T) {
	r := Reserves{ICP: 1_10000000, Asset: 909_338}

	res, err := QuoteSell(r, 90_662)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	// gross = 110000000 - floor(k/1000000) = 9972820; fee = 30 bps of gross.
	if res.Fee != 29_918 {
		t.Fatalf("fee mismatch: got %d want 29918", res.Fee)
	}
	if res.AmountOut != 9_942_902 {
		t.Fatalf("amount out mismatch: got %d want 9942902", res.AmountOut)
	}
	if res.Post.Asset != 1_000_000 {
		t.Fatalf("post asset reserve mismatch: got %d", res.Post.Asset)
	}
	// Fee stays in the pool: the reserve drops only by the net output.
	if res.Post.ICP != 1_10000000-9_942_902 {
		t.Fatalf("post icp reserve mismatch: got %d", res.Post.ICP)
	}
}

func TestMinimumOut(t *testing.T) {
	cases := []struct {
		out      uint64
		slippage uint64
		want     uint64
	}{
		{10000, 0, 10000},
		{10000, 50, 9950},
		{90_662, 50, 90_208},
		{1, 9999, 0},
	}
	for _, tc := range cases {
		if got := MinimumOut(tc.out, tc.slippage); got != tc.want {
			t.Fatalf("MinimumOut(%d, %d) = %d, want %d", tc.out, tc.slippage, got, tc.want)
		}
	}
}

func productOf(r Reserves) *big.Int {
	icp := new(big.Int).SetUint64(r.ICP)
	asset := new(big.Int).SetUint64(r.Asset)
	return icp.Mul(icp, asset)
}
