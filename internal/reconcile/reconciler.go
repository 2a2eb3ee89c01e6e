package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"launchpool/internal/model"
	"launchpool/internal/rail"
	"launchpool/internal/storage"
)

// RailSource is the slice of the payment rail the reconciler reads.
// Implemented by rail.Client.
type RailSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	ReserveTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]rail.Transfer, error)
}

// Config holds runtime settings for the reconciler.
type Config struct {
	FromBlock    uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// Interval between polling passes; zero means run a single pass.
	Interval time.Duration
}

// Reconciler bridges the external payment rail into ledger credits. It scans
// Transfer events into registered deposit addresses, credits each exactly
// once, and checkpoints its progress. A failed pass leaves the deposit
// records unmodified and is safe to retry.
type Reconciler struct {
	cfg      Config
	source   RailSource
	book     *rail.AddressBook
	deposits *DepositStore
	state    StateStore
	sink     storage.DepositSink
	logger   *zap.Logger
}

// New builds a Reconciler. state and sink may be nil (no resume, no durable
// deposit journal).
func New(cfg Config, source RailSource, book *rail.AddressBook, deposits *DepositStore, state StateStore, sink storage.DepositSink, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:      cfg,
		source:   source,
		book:     book,
		deposits: deposits,
		state:    state,
		sink:     sink,
		logger:   logger,
	}
}

// Run executes reconciliation passes until the context is canceled. With a
// zero interval it runs one pass and returns.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("rail source is nil")
	}
	if r.deposits == nil {
		return fmt.Errorf("deposit store is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	for {
		if err := r.RunPass(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A failed pass is retried on the next tick; nothing was
			// half-credited.
			r.logger.Warn("reconcile pass failed", zap.Error(err))
		}

		if r.cfg.Interval == 0 {
			return nil
		}

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunPass scans the rail from the checkpoint (or configured start) to the
// current head and credits every new transfer into a known deposit address.
func (r *Reconciler) RunPass(ctx context.Context) error {
	latest, err := r.latestWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	from := r.cfg.FromBlock
	if r.state != nil {
		last, ok, err := r.state.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
		}
	}

	if from > latest {
		r.logger.Debug("nothing to reconcile", zap.Uint64("from", from), zap.Uint64("latest", latest))
		return nil
	}

	ranges, err := SplitRange(from, latest, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		transfers, err := r.transfersWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("fetch transfers %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		credited := 0
		for _, transfer := range transfers {
			principal, ok := r.book.Principal(transfer.To)
			if !ok {
				continue
			}

			rec := model.DepositRecord{
				TxID:        transfer.DedupKey(),
				Principal:   principal,
				Amount:      transfer.Amount,
				BlockNumber: transfer.BlockNumber,
				CreditedAt:  time.Now().UTC(),
			}

			fresh, err := r.deposits.CreditOnce(rec)
			if err != nil {
				return fmt.Errorf("credit deposit %s: %w", rec.TxID, err)
			}
			if !fresh {
				continue
			}
			credited++

			r.logger.Info("deposit credited",
				zap.String("tx_id", rec.TxID),
				zap.String("principal", principal),
				zap.Uint64("amount", rec.Amount),
				zap.Uint64("block", rec.BlockNumber),
			)

			if r.sink != nil {
				if err := r.sink.PutDeposit(rec); err != nil {
					r.logger.Warn("persist deposit", zap.String("tx_id", rec.TxID), zap.Error(err))
				}
			}
		}

		if r.state != nil {
			if err := r.state.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Debug("batch reconciled",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("transfers", len(transfers)),
			zap.Int("credited", credited),
		)
	}

	return nil
}

func (r *Reconciler) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.source.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return latest, err
}

func (r *Reconciler) transfersWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]rail.Transfer, error) {
	var transfers []rail.Transfer
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		transfers, err = r.source.ReserveTransfers(ctx, fromBlock, toBlock)
		if err != nil {
			r.logger.Warn("transfer fetch failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return transfers, err
}
