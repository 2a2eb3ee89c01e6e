package model

import "time"

// DepositRecord marks one external rail transfer as credited. TxID is the
// rail-side dedup key; replaying the same transfer must never credit twice.
type DepositRecord struct {
	TxID        string    `json:"tx_id"`
	Principal   string    `json:"principal"`
	Amount      uint64    `json:"amount"`
	BlockNumber uint64    `json:"block_number"`
	CreditedAt  time.Time `json:"credited_at"`
}

// TransferRef identifies a withdrawal handed off to the external rail.
type TransferRef struct {
	Principal   string    `json:"principal"`
	AssetID     string    `json:"asset_id"`
	Amount      uint64    `json:"amount"`
	Destination string    `json:"destination"`
	Ref         string    `json:"ref"`
	SubmittedAt time.Time `json:"submitted_at"`
}
