package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a trade relative to the asset.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection normalizes a direction string.
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return "", fmt.Errorf("invalid direction: %s", input)
	}
}

// Trade is the append-only record of one committed trade. Created exactly once
// per successful execution, immutable thereafter.
type Trade struct {
	Sequence       uint64    `json:"sequence"`
	AssetID        string    `json:"asset_id"`
	Principal      string    `json:"principal"`
	Direction      Direction `json:"direction"`
	AmountIn       uint64    `json:"amount_in"`
	AmountOut      uint64    `json:"amount_out"`
	Fee            uint64    `json:"fee"`
	PriceImpactBps uint64    `json:"price_impact_bps"`
	ExecutedAt     time.Time `json:"executed_at"`
}
