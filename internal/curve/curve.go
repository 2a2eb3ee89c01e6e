package curve

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

const (
	// FeeBps is the fixed trade fee, in basis points of the input leg.
	FeeBps = 30
	// BpsDenominator converts basis points to a ratio.
	BpsDenominator = 10000
)

var (
	// ErrInvalidAmount rejects zero, overflowing, or dust-sized inputs.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrReserveExhausted rejects trades that would drain a reserve below one unit.
	ErrReserveExhausted = errors.New("reserve exhausted")
)

// Reserves is a snapshot of a pool's two sides. ICP is in smallest units
// (8 decimals), Asset in whole units.
type Reserves struct {
	ICP   uint64
	Asset uint64
}

// Result is the outcome of pricing one trade against a reserves snapshot.
// Post is the reserve state the pool must take if the trade commits; the fee
// stays in the pool, so Post always satisfies post.ICP*post.Asset >= pre k.
type Result struct {
	AmountOut      uint64
	Fee            uint64
	PriceImpactBps uint64
	SpotPrice      *big.Rat
	Post           Reserves
}

// QuoteBuy prices a purchase of assets with icpIn reserve currency. The fee is
// deducted from the input before the curve is applied; the output is
// floor-rounded toward the trader's disadvantage.
func QuoteBuy(r Reserves, icpIn uint64) (Result, error) {
	if err := checkReserves(r); err != nil {
		return Result{}, err
	}
	if icpIn == 0 {
		return Result{}, fmt.Errorf("%w: input must be positive", ErrInvalidAmount)
	}

	in := new(big.Int).SetUint64(icpIn)
	fee := new(big.Int).Mul(in, big.NewInt(FeeBps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	effective := new(big.Int).Sub(in, fee)
	if effective.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: input smaller than fee", ErrInvalidAmount)
	}

	reserveICP := new(big.Int).SetUint64(r.ICP)
	reserveAsset := new(big.Int).SetUint64(r.Asset)
	k := new(big.Int).Mul(reserveICP, reserveAsset)

	// remaining = floor(k / (icp_reserve + effective_in)); floor here rounds
	// the output down, against the trader.
	remaining := new(big.Int).Add(reserveICP, effective)
	remaining.Div(k, remaining)
	if remaining.Cmp(big.NewInt(1)) < 0 {
		return Result{}, fmt.Errorf("%w: buy would drain asset reserve", ErrReserveExhausted)
	}

	out := new(big.Int).Sub(reserveAsset, remaining)
	if out.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}

	postICP := new(big.Int).Add(reserveICP, in)
	if !postICP.IsUint64() {
		return Result{}, fmt.Errorf("%w: input overflows reserve", ErrInvalidAmount)
	}

	spot := new(big.Rat).SetFrac(reserveICP, reserveAsset)
	impact := buyImpactBps(effective, out, reserveICP, reserveAsset)

	return Result{
		AmountOut:      out.Uint64(),
		Fee:            fee.Uint64(),
		PriceImpactBps: impact,
		SpotPrice:      spot,
		Post:           Reserves{ICP: postICP.Uint64(), Asset: r.Asset - out.Uint64()},
	}, nil
}

// QuoteSell prices a sale of assetsIn for reserve currency. The fee is taken
// from the output leg (the ICP the seller would otherwise receive), so the
// curve math mirrors the buy path.
func QuoteSell(r Reserves, assetsIn uint64) (Result, error) {
	if err := checkReserves(r); err != nil {
		return Result{}, err
	}
	if assetsIn == 0 {
		return Result{}, fmt.Errorf("%w: input must be positive", ErrInvalidAmount)
	}

	in := new(big.Int).SetUint64(assetsIn)
	reserveICP := new(big.Int).SetUint64(r.ICP)
	reserveAsset := new(big.Int).SetUint64(r.Asset)
	k := new(big.Int).Mul(reserveICP, reserveAsset)

	postAsset := new(big.Int).Add(reserveAsset, in)
	if !postAsset.IsUint64() {
		return Result{}, fmt.Errorf("%w: input overflows reserve", ErrInvalidAmount)
	}

	remaining := new(big.Int).Div(k, postAsset)
	if remaining.Cmp(big.NewInt(1)) < 0 {
		return Result{}, fmt.Errorf("%w: sell would drain reserve currency", ErrReserveExhausted)
	}

	gross := new(big.Int).Sub(reserveICP, remaining)
	if gross.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}

	fee := new(big.Int).Mul(gross, big.NewInt(FeeBps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	out := new(big.Int).Sub(gross, fee)
	if out.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}

	// Only the net output leaves the pool; the fee stays in the ICP reserve.
	postICP := new(big.Int).Sub(reserveICP, out)

	spot := new(big.Rat).SetFrac(reserveICP, reserveAsset)
	impact := sellImpactBps(in, out, reserveICP, reserveAsset)

	return Result{
		AmountOut:      out.Uint64(),
		Fee:            fee.Uint64(),
		PriceImpactBps: impact,
		SpotPrice:      spot,
		Post:           Reserves{ICP: postICP.Uint64(), Asset: postAsset.Uint64()},
	}, nil
}

// MinimumOut applies a slippage bound in basis points to a quoted output,
// rounding down (stricter for the trader).
func MinimumOut(amountOut uint64, slippageBps uint64) uint64 {
	keep := new(big.Int).SetUint64(amountOut)
	keep.Mul(keep, big.NewInt(BpsDenominator-int64(slippageBps)))
	keep.Div(keep, big.NewInt(BpsDenominator))
	return keep.Uint64()
}

// FormatPrice renders a spot price as a decimal string in reserve smallest
// units per asset unit.
func FormatPrice(price *big.Rat) string {
	if price == nil {
		return "0"
	}
	return price.FloatString(8)
}

func checkReserves(r Reserves) error {
	if r.ICP == 0 || r.Asset == 0 {
		return fmt.Errorf("%w: pool reserves must be positive", ErrReserveExhausted)
	}
	return nil
}

// buyImpactBps computes (execution_price - spot_price) / spot_price in basis
// points, with execution_price = effective_in / out and spot = icp / asset.
func buyImpactBps(effectiveIn, out, reserveICP, reserveAsset *big.Int) uint64 {
	num := new(big.Int).Mul(effectiveIn, reserveAsset)
	num.Sub(num, new(big.Int).Mul(out, reserveICP))
	den := new(big.Int).Mul(out, reserveICP)
	return ratioBps(num, den)
}

// sellImpactBps computes (spot_price - execution_price) / spot_price in basis
// points, with execution_price = icp_out / assets_in.
func sellImpactBps(assetsIn, icpOut, reserveICP, reserveAsset *big.Int) uint64 {
	num := new(big.Int).Mul(reserveICP, assetsIn)
	num.Sub(num, new(big.Int).Mul(icpOut, reserveAsset))
	den := new(big.Int).Mul(reserveICP, assetsIn)
	return ratioBps(num, den)
}

func ratioBps(num, den *big.Int) uint64 {
	if den.Sign() == 0 {
		return 0
	}
	if num.Sign() < 0 {
		num = new(big.Int).Neg(num)
	}
	bps := new(big.Int).Mul(num, big.NewInt(BpsDenominator))
	bps.Div(bps, den)
	if !bps.IsUint64() {
		return math.MaxUint64
	}
	return bps.Uint64()
}
