package engine

import (
	"fmt"

	"launchpool/internal/curve"
	"launchpool/internal/model"
)

// GetQuote prices a prospective trade against the current reserves. The quote
// is advisory: concurrent trades may invalidate it, which is why ExecuteTrade
// re-derives pricing and only honors the caller's minimum output.
func (e *Engine) GetQuote(assetID string, direction model.Direction, amount, slippageBps uint64) (model.Quote, error) {
	if slippageBps >= curve.BpsDenominator {
		return model.Quote{}, fmt.Errorf("%w: slippage_bps %d out of range [0, %d)", curve.ErrInvalidAmount, slippageBps, curve.BpsDenominator)
	}

	pool, err := e.pools.Get(assetID)
	if err != nil {
		return model.Quote{}, err
	}
	if amount == 0 {
		return model.Quote{}, fmt.Errorf("%w: amount must be positive", curve.ErrInvalidAmount)
	}
	if pool.Status != model.PoolActive {
		return model.Quote{}, fmt.Errorf("%w: %s is %s", ErrPoolNotActive, assetID, pool.Status)
	}

	res, err := quoteAgainst(pool, direction, amount)
	if err != nil {
		return model.Quote{}, err
	}

	return model.Quote{
		AssetID:        assetID,
		Direction:      direction,
		AmountIn:       amount,
		AmountOut:      res.AmountOut,
		Fee:            res.Fee,
		MinimumOut:     curve.MinimumOut(res.AmountOut, slippageBps),
		SlippageBps:    slippageBps,
		PriceImpactBps: res.PriceImpactBps,
		SpotPrice:      curve.FormatPrice(res.SpotPrice),
	}, nil
}

func quoteAgainst(pool model.Pool, direction model.Direction, amount uint64) (curve.Result, error) {
	reserves := curve.Reserves{ICP: pool.ReserveICP, Asset: pool.ReserveAsset}
	switch direction {
	case model.Buy:
		return curve.QuoteBuy(reserves, amount)
	case model.Sell:
		return curve.QuoteSell(reserves, amount)
	default:
		return curve.Result{}, fmt.Errorf("%w: unknown direction %q", curve.ErrInvalidAmount, direction)
	}
}
