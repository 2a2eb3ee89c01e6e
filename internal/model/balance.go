package model

// Funds splits a balance into its spendable and transiently reserved parts.
// Locked is nonzero only while a withdrawal is in flight.
type Funds struct {
	Available uint64 `json:"available"`
	Locked    uint64 `json:"locked"`
}

// Balance is a snapshot of one principal's custodial holdings, keyed by asset
// identifier. The reserve currency appears under ReserveAsset.
type Balance struct {
	Principal string           `json:"principal"`
	Assets    map[string]Funds `json:"assets"`
}
