package model

// Quote is an advisory pricing result. It is valid only for the reserves
// snapshot it was computed from; the executor re-derives pricing and trusts
// only the direction, input amount, and minimum output.
type Quote struct {
	AssetID        string    `json:"asset_id"`
	Direction      Direction `json:"direction"`
	AmountIn       uint64    `json:"amount_in"`
	AmountOut      uint64    `json:"amount_out"`
	Fee            uint64    `json:"fee"`
	MinimumOut     uint64    `json:"minimum_out"`
	SlippageBps    uint64    `json:"slippage_bps"`
	PriceImpactBps uint64    `json:"price_impact_bps"`
	SpotPrice      string    `json:"spot_price"`
}
