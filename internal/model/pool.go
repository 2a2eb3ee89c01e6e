package model

import "time"

// ReserveAsset is the ledger identifier of the reserve currency. Amounts are
// fixed-point integers with 8 decimals (smallest unit).
const ReserveAsset = "ICP"

// PoolStatus is the lifecycle state of a bonding-curve pool.
type PoolStatus string

const (
	PoolActive     PoolStatus = "active"
	PoolGraduating PoolStatus = "graduating"
	PoolGraduated  PoolStatus = "graduated"
)

// Pool holds the reserves and cumulative stats for one asset's bonding curve.
// Reserves are mutated only by the trade executor and pool creation; a pool is
// never deleted, it transitions to graduated and becomes read-only.
type Pool struct {
	AssetID      string     `json:"asset_id"`
	ReserveICP   uint64     `json:"icp_reserve"`
	ReserveAsset uint64     `json:"asset_reserve"`
	AssetSupply  uint64     `json:"asset_supply"`
	TradeCount   uint64     `json:"trade_count"`
	VolumeICP    uint64     `json:"icp_volume"`
	Status       PoolStatus `json:"status"`
	Creator      string     `json:"creator"`
	CreatedAt    time.Time  `json:"created_at"`
}
