package engine

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"launchpool/internal/curve"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
)

// ExecuteTrade re-validates, prices, and commits one trade. Steps:
//
//  1. check the pool is Active and the trader can cover the input,
//  2. recompute the quote against current reserves (a caller-presented
//     output is never trusted) and enforce the minimum-output bound,
//  3. apply: settle both balance legs, move the reserves to their post-trade
//     values, bump the cumulative stats, and append the trade record.
//
// Steps 1-2 are pure checks; step 3 runs entirely inside the pool's exclusive
// section with the balance settlement as its only fallible operation, placed
// first, so no error path leaves reserves and ledger inconsistent.
func (e *Engine) ExecuteTrade(principal, assetID string, direction model.Direction, amount, minimumOut uint64) (model.Trade, error) {
	if principal == "" {
		return model.Trade{}, fmt.Errorf("principal is required")
	}
	if amount == 0 {
		return model.Trade{}, fmt.Errorf("%w: amount must be positive", curve.ErrInvalidAmount)
	}

	inAsset, outAsset, err := tradeLegs(direction, assetID)
	if err != nil {
		return model.Trade{}, err
	}

	var trade model.Trade
	var snapshot model.Pool
	err = e.pools.Update(assetID, func(pool *model.Pool) error {
		if pool.Status != model.PoolActive {
			return fmt.Errorf("%w: %s is %s", ErrPoolNotActive, assetID, pool.Status)
		}
		if have := e.balances.Funds(principal, inAsset).Available; have < amount {
			return fmt.Errorf("%w: %s/%s has %d, need %d", ledger.ErrInsufficientBalance, principal, inAsset, have, amount)
		}

		res, err := quoteAgainst(*pool, direction, amount)
		if err != nil {
			return err
		}
		if res.AmountOut < minimumOut {
			return fmt.Errorf("%w: output %d below minimum %d", ErrSlippageExceeded, res.AmountOut, minimumOut)
		}

		// Settle is atomic per principal and is the last fallible step.
		if err := e.balances.Settle(principal, inAsset, amount, outAsset, res.AmountOut); err != nil {
			return err
		}

		pool.ReserveICP = res.Post.ICP
		pool.ReserveAsset = res.Post.Asset
		pool.TradeCount++
		pool.VolumeICP = saturatingAdd(pool.VolumeICP, icpLeg(direction, amount, res.AmountOut, res.Fee))

		trade = model.Trade{
			AssetID:        assetID,
			Principal:      principal,
			Direction:      direction,
			AmountIn:       amount,
			AmountOut:      res.AmountOut,
			Fee:            res.Fee,
			PriceImpactBps: res.PriceImpactBps,
			ExecutedAt:     time.Now().UTC(),
		}
		e.trades.record(&trade)

		e.monitor.Check(pool)
		snapshot = *pool
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}

	e.logger.Info("trade executed",
		zap.Uint64("sequence", trade.Sequence),
		zap.String("asset_id", assetID),
		zap.String("principal", principal),
		zap.String("direction", string(direction)),
		zap.Uint64("amount_in", trade.AmountIn),
		zap.Uint64("amount_out", trade.AmountOut),
		zap.Uint64("fee", trade.Fee),
	)

	e.flushTrade(trade)
	e.flushPool(snapshot)
	return trade, nil
}

func tradeLegs(direction model.Direction, assetID string) (inAsset, outAsset string, err error) {
	switch direction {
	case model.Buy:
		return model.ReserveAsset, assetID, nil
	case model.Sell:
		return assetID, model.ReserveAsset, nil
	default:
		return "", "", fmt.Errorf("%w: unknown direction %q", curve.ErrInvalidAmount, direction)
	}
}

// icpLeg is the reserve-currency side of a trade, used for cumulative volume:
// the full input on buys, the gross output (net plus fee) on sells.
func icpLeg(direction model.Direction, amountIn, amountOut, fee uint64) uint64 {
	if direction == model.Buy {
		return amountIn
	}
	return amountOut + fee
}

// saturatingAdd pins cumulative stats at the uint64 ceiling instead of
// wrapping.
func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
