package storage

import "launchpool/internal/model"

// TradeSink receives committed trades for durable journaling. The in-memory
// engine is authoritative; sinks are write-behind and must tolerate replays.
type TradeSink interface {
	PutTradeBatch(trades []model.Trade) error
}

// PoolSink receives pool snapshots after state-changing operations.
type PoolSink interface {
	PutPool(pool model.Pool) error
}

// DepositSink receives deposit records as the reconciler credits them.
type DepositSink interface {
	PutDeposit(record model.DepositRecord) error
}
