package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"launchpool/internal/model"
)

// Store provides Postgres persistence for pools, trades, and deposits. The
// in-memory engine stays authoritative; the store is a write-behind journal,
// so every insert tolerates replays via ON CONFLICT.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool snapshots.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				asset_id, icp_reserve, asset_reserve, asset_supply,
				trade_count, icp_volume, status, creator, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (asset_id)
			DO UPDATE SET
				icp_reserve = EXCLUDED.icp_reserve,
				asset_reserve = EXCLUDED.asset_reserve,
				asset_supply = EXCLUDED.asset_supply,
				trade_count = EXCLUDED.trade_count,
				icp_volume = EXCLUDED.icp_volume,
				status = EXCLUDED.status,
				updated_at = now()
		`,
			pool.AssetID,
			int64(pool.ReserveICP),
			int64(pool.ReserveAsset),
			int64(pool.AssetSupply),
			int64(pool.TradeCount),
			int64(pool.VolumeICP),
			string(pool.Status),
			pool.Creator,
			pool.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertTrades appends committed trades. Sequence is the primary key, so a
// replayed batch is a no-op.
func (s *Store) InsertTrades(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, trade := range trades {
		batch.Queue(`
			INSERT INTO trades (
				sequence, asset_id, principal, direction, amount_in,
				amount_out, fee, price_impact_bps, executed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (sequence) DO NOTHING
		`,
			int64(trade.Sequence),
			trade.AssetID,
			trade.Principal,
			string(trade.Direction),
			int64(trade.AmountIn),
			int64(trade.AmountOut),
			int64(trade.Fee),
			int64(trade.PriceImpactBps),
			trade.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertDeposit records one credited rail transfer. tx_id is the dedup key.
func (s *Store) InsertDeposit(ctx context.Context, rec model.DepositRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deposits (tx_id, principal, amount, block_number, credited_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_id) DO NOTHING
	`,
		rec.TxID,
		rec.Principal,
		int64(rec.Amount),
		int64(rec.BlockNumber),
		rec.CreditedAt,
	)
	return err
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM engine_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engine_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, block)
	return err
}

// PutTradeBatch implements storage.TradeSink.
func (s *Store) PutTradeBatch(trades []model.Trade) error {
	return s.InsertTrades(context.Background(), trades)
}

// PutPool implements storage.PoolSink.
func (s *Store) PutPool(pool model.Pool) error {
	return s.UpsertPools(context.Background(), []model.Pool{pool})
}

// PutDeposit implements storage.DepositSink.
func (s *Store) PutDeposit(rec model.DepositRecord) error {
	return s.InsertDeposit(context.Background(), rec)
}

// StateStore adapts the store to the reconciler's checkpoint interface under
// a fixed state name.
type StateStore struct {
	store *Store
	name  string
}

func NewStateStore(store *Store, name string) *StateStore {
	return &StateStore{store: store, name: name}
}

func (s *StateStore) Load(ctx context.Context) (uint64, bool, error) {
	return s.store.LoadState(ctx, s.name)
}

func (s *StateStore) Save(ctx context.Context, block uint64) error {
	return s.store.SaveState(ctx, s.name, block)
}
