package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"launchpool/internal/curve"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/storage"
)

// Config holds engine tunables. Zero values fall back to the defaults below.
type Config struct {
	// MinInitialReserve is the smallest reserve-currency liquidity a creator
	// may seed a pool with, in smallest units.
	MinInitialReserve uint64
	// GraduationThreshold is the market cap, in reserve smallest units, at
	// which a pool leaves Active.
	GraduationThreshold uint64
}

const (
	defaultMinInitialReserve   = 1_0000_0000
	defaultGraduationThreshold = 85_0000_0000
)

// TransferSubmitter hands a withdrawal off to the external payment rail.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, destination, assetID string, amount uint64) (string, error)
}

// Engine owns the pools, the trade log, and the wiring between the pricing
// curve and the balance ledger. All trading state lives in memory; sinks are
// write-behind journals.
type Engine struct {
	cfg      Config
	balances *ledger.Ledger
	pools    *PoolStore
	trades   *tradeLog
	monitor  *GraduationMonitor
	rail     TransferSubmitter
	journal  storage.TradeSink
	poolSink storage.PoolSink
	logger   *zap.Logger
}

// New builds an Engine. rail, journal, and poolSink may be nil; the matching
// features degrade (withdrawals rejected, no durable journal).
func New(cfg Config, balances *ledger.Ledger, rail TransferSubmitter, journal storage.TradeSink, poolSink storage.PoolSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinInitialReserve == 0 {
		cfg.MinInitialReserve = defaultMinInitialReserve
	}
	if cfg.GraduationThreshold == 0 {
		cfg.GraduationThreshold = defaultGraduationThreshold
	}

	return &Engine{
		cfg:      cfg,
		balances: balances,
		pools:    NewPoolStore(),
		trades:   newTradeLog(),
		monitor:  NewGraduationMonitor(cfg.GraduationThreshold, logger),
		rail:     rail,
		journal:  journal,
		poolSink: poolSink,
		logger:   logger,
	}
}

// Ledger exposes the balance book for the reconciler and API.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.balances
}

// CreatePool seeds a new bonding curve for an asset. The creator's reserve
// currency funds the initial liquidity; the initial asset amount is minted
// onto the curve and fixes the asset's total supply.
func (e *Engine) CreatePool(creator, assetID string, initialICP, initialAssets uint64) (model.Pool, error) {
	if assetID == "" {
		return model.Pool{}, fmt.Errorf("asset id is required")
	}
	if assetID == model.ReserveAsset {
		// A pool keyed by the reserve currency would put both trade legs on
		// the same ledger account.
		return model.Pool{}, fmt.Errorf("%w: asset id %s is the reserve currency", curve.ErrInvalidAmount, assetID)
	}
	if creator == "" {
		return model.Pool{}, fmt.Errorf("creator is required")
	}
	if initialICP < e.cfg.MinInitialReserve {
		return model.Pool{}, fmt.Errorf("%w: initial reserve %d below minimum %d", curve.ErrInvalidAmount, initialICP, e.cfg.MinInitialReserve)
	}
	if initialAssets == 0 {
		return model.Pool{}, fmt.Errorf("%w: initial asset amount must be positive", curve.ErrInvalidAmount)
	}

	pool := model.Pool{
		AssetID:      assetID,
		ReserveICP:   initialICP,
		ReserveAsset: initialAssets,
		AssetSupply:  initialAssets,
		Status:       model.PoolActive,
		Creator:      creator,
		CreatedAt:    time.Now().UTC(),
	}

	err := e.pools.Create(pool, func() error {
		return e.balances.Debit(creator, model.ReserveAsset, initialICP)
	})
	if err != nil {
		return model.Pool{}, err
	}

	e.logger.Info("pool created",
		zap.String("asset_id", assetID),
		zap.String("creator", creator),
		zap.Uint64("icp_reserve", initialICP),
		zap.Uint64("asset_reserve", initialAssets),
	)
	e.flushPool(pool)
	return pool, nil
}

// GetPool returns a snapshot of one pool.
func (e *Engine) GetPool(assetID string) (model.Pool, error) {
	return e.pools.Get(assetID)
}

// ListPools returns pool snapshots in creation order.
func (e *Engine) ListPools(offset, limit int) []model.Pool {
	return e.pools.List(offset, limit)
}

// Balance returns the principal's custodial balances.
func (e *Engine) Balance(principal string) model.Balance {
	return e.balances.Balance(principal)
}

// ListTrades returns up to limit most recent trades for a pool, newest first.
func (e *Engine) ListTrades(assetID string, limit int) []model.Trade {
	return e.trades.recent(assetID, limit)
}

// Withdraw locks the funds, hands the transfer to the external rail, and
// burns the locked amount once the rail accepted it. A rail failure unlocks
// the funds; the debit is never silently lost.
func (e *Engine) Withdraw(ctx context.Context, principal, assetID string, amount uint64, destination string) (model.TransferRef, error) {
	if e.rail == nil {
		return model.TransferRef{}, ErrRailUnavailable
	}
	if amount == 0 {
		return model.TransferRef{}, fmt.Errorf("%w: amount must be positive", curve.ErrInvalidAmount)
	}

	if err := e.balances.Lock(principal, assetID, amount); err != nil {
		return model.TransferRef{}, err
	}

	ref, err := e.rail.SubmitTransfer(ctx, destination, assetID, amount)
	if err != nil {
		if unlockErr := e.balances.Unlock(principal, assetID, amount); unlockErr != nil {
			e.logger.Error("unlock after failed transfer", zap.String("principal", principal), zap.Error(unlockErr))
		}
		return model.TransferRef{}, fmt.Errorf("submit transfer: %w", err)
	}

	if err := e.balances.DebitLocked(principal, assetID, amount); err != nil {
		e.logger.Error("debit locked after transfer", zap.String("principal", principal), zap.Error(err))
	}

	e.logger.Info("withdrawal submitted",
		zap.String("principal", principal),
		zap.String("asset_id", assetID),
		zap.Uint64("amount", amount),
		zap.String("ref", ref),
	)

	return model.TransferRef{
		Principal:   principal,
		AssetID:     assetID,
		Amount:      amount,
		Destination: destination,
		Ref:         ref,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) flushTrade(trade model.Trade) {
	if e.journal == nil {
		return
	}
	if err := e.journal.PutTradeBatch([]model.Trade{trade}); err != nil {
		e.logger.Warn("journal trade", zap.Uint64("sequence", trade.Sequence), zap.Error(err))
	}
}

func (e *Engine) flushPool(pool model.Pool) {
	if e.poolSink == nil {
		return
	}
	if err := e.poolSink.PutPool(pool); err != nil {
		e.logger.Warn("persist pool", zap.String("asset_id", pool.AssetID), zap.Error(err))
	}
}

// tradeLog is the append-only trade history with a global sequence.
type tradeLog struct {
	mu     sync.Mutex
	seq    uint64
	byPool map[string][]model.Trade
}

func newTradeLog() *tradeLog {
	return &tradeLog{byPool: make(map[string][]model.Trade)}
}

// record assigns the next sequence id and appends the trade.
func (t *tradeLog) record(trade *model.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	trade.Sequence = t.seq
	t.byPool[trade.AssetID] = append(t.byPool[trade.AssetID], *trade)
}

func (t *tradeLog) recent(assetID string, limit int) []model.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.byPool[assetID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}

	out := make([]model.Trade, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out
}
