package engine

import (
	"fmt"
	"math"
	"math/big"

	"go.uber.org/zap"

	"launchpool/internal/model"
)

// GraduationMonitor watches pool market capitalization and performs the
// Active -> Graduating transition. The executor invokes it inside the pool's
// exclusive section after every committed trade, so the transition fires at
// most once no matter how many trades follow.
type GraduationMonitor struct {
	threshold uint64
	logger    *zap.Logger
}

func NewGraduationMonitor(threshold uint64, logger *zap.Logger) *GraduationMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraduationMonitor{threshold: threshold, logger: logger}
}

// Check transitions the pool to Graduating when its market cap crosses the
// threshold. Returns true only on the trade that fires the transition.
func (m *GraduationMonitor) Check(pool *model.Pool) bool {
	if pool.Status != model.PoolActive {
		return false
	}
	cap := MarketCap(*pool)
	if cap < m.threshold {
		return false
	}

	pool.Status = model.PoolGraduating
	m.logger.Info("pool graduating",
		zap.String("asset_id", pool.AssetID),
		zap.Uint64("market_cap", cap),
		zap.Uint64("threshold", m.threshold),
	)
	return true
}

// MarketCap values the full asset supply at the pool's spot price, in reserve
// smallest units: icp_reserve * asset_supply / asset_reserve, floor-rounded
// and saturating at the uint64 ceiling.
func MarketCap(pool model.Pool) uint64 {
	if pool.ReserveAsset == 0 {
		return 0
	}
	cap := new(big.Int).SetUint64(pool.ReserveICP)
	cap.Mul(cap, new(big.Int).SetUint64(pool.AssetSupply))
	cap.Div(cap, new(big.Int).SetUint64(pool.ReserveAsset))
	if !cap.IsUint64() {
		return math.MaxUint64
	}
	return cap.Uint64()
}

// FinalizeGraduation completes the lifecycle: Graduating -> Graduated. The
// liquidity migration itself happens outside this engine; this call is the
// acknowledgement that it finished, and it permanently disables trading on
// the pool here.
func (e *Engine) FinalizeGraduation(assetID string) (model.Pool, error) {
	var snapshot model.Pool
	err := e.pools.Update(assetID, func(pool *model.Pool) error {
		if pool.Status != model.PoolGraduating {
			return fmt.Errorf("%w: %s is %s, expected graduating", ErrPoolNotActive, assetID, pool.Status)
		}
		pool.Status = model.PoolGraduated
		snapshot = *pool
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}

	e.logger.Info("pool graduated", zap.String("asset_id", assetID))
	e.flushPool(snapshot)
	return snapshot, nil
}
