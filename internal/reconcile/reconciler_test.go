package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/rail"
)

type fakeRail struct {
	latest    uint64
	transfers []rail.Transfer
	calls     int
	failUntil int
}

func (f *fakeRail) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeRail) ReserveTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]rail.Transfer, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, errors.New("rail unreachable")
	}
	out := make([]rail.Transfer, 0)
	for _, transfer := range f.transfers {
		if transfer.BlockNumber >= fromBlock && transfer.BlockNumber <= toBlock {
			out = append(out, transfer)
		}
	}
	return out, nil
}

type memState struct {
	block uint64
	set   bool
}

func (s *memState) Load(ctx context.Context) (uint64, bool, error) { return s.block, s.set, nil }
func (s *memState) Save(ctx context.Context, block uint64) error {
	s.block, s.set = block, true
	return nil
}

func newTestReconciler(source RailSource, book *rail.AddressBook, balances *ledger.Ledger, state StateStore) *Reconciler {
	cfg := Config{FromBlock: 1, BatchSize: 100, MaxRetries: 3, RetryBackoff: time.Millisecond}
	return New(cfg, source, book, NewDepositStore(balances), state, nil, nil)
}

func TestReconcileCreditsDeposits(t *testing.T) {
	book := rail.NewAddressBook()
	aliceAddr := book.Assign("alice")

	source := &fakeRail{
		latest: 10,
		transfers: []rail.Transfer{
			{TxHash: "0xaaa", LogIndex: 0, BlockNumber: 3, To: aliceAddr, Amount: 5_00000000},
			{TxHash: "0xbbb", LogIndex: 1, BlockNumber: 7, To: rail.DepositAddress("stranger"), Amount: 1},
		},
	}

	balances := ledger.New()
	r := newTestReconciler(source, book, balances, &memState{})

	if err := r.RunPass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	funds := balances.Funds("alice", model.ReserveAsset)
	if funds.Available != 5_00000000 {
		t.Fatalf("deposit not credited: %+v", funds)
	}

	// The unregistered address must be ignored, not misattributed.
	if recs := r.deposits.Records(); len(recs) != 1 || recs[0].TxID != "0xaaa:0" {
		t.Fatalf("records mismatch: %+v", recs)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	book := rail.NewAddressBook()
	aliceAddr := book.Assign("alice")

	source := &fakeRail{
		latest: 10,
		transfers: []rail.Transfer{
			{TxHash: "0xaaa", LogIndex: 0, BlockNumber: 3, To: aliceAddr, Amount: 2_00000000},
		},
	}

	balances := ledger.New()
	// No state store: every pass rescans the full history.
	r := newTestReconciler(source, book, balances, nil)

	for i := 0; i < 3; i++ {
		if err := r.RunPass(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	funds := balances.Funds("alice", model.ReserveAsset)
	if funds.Available != 2_00000000 {
		t.Fatalf("replayed history double-credited: %+v", funds)
	}
}

func TestReconcileResumesFromCheckpoint(t *testing.T) {
	book := rail.NewAddressBook()
	aliceAddr := book.Assign("alice")

	source := &fakeRail{
		latest: 20,
		transfers: []rail.Transfer{
			{TxHash: "0xold", LogIndex: 0, BlockNumber: 4, To: aliceAddr, Amount: 100},
			{TxHash: "0xnew", LogIndex: 0, BlockNumber: 15, To: aliceAddr, Amount: 7},
		},
	}

	balances := ledger.New()
	state := &memState{block: 10, set: true}
	r := newTestReconciler(source, book, balances, state)

	if err := r.RunPass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	// Only the post-checkpoint transfer is credited.
	if funds := balances.Funds("alice", model.ReserveAsset); funds.Available != 7 {
		t.Fatalf("checkpoint not honored: %+v", funds)
	}
	if state.block != 20 {
		t.Fatalf("checkpoint not advanced: %d", state.block)
	}
}

func TestReconcileRetriesTransientFailures(t *testing.T) {
	book := rail.NewAddressBook()
	aliceAddr := book.Assign("alice")

	source := &fakeRail{
		latest:    5,
		failUntil: 2,
		transfers: []rail.Transfer{
			{TxHash: "0xaaa", LogIndex: 0, BlockNumber: 2, To: aliceAddr, Amount: 9},
		},
	}

	balances := ledger.New()
	r := newTestReconciler(source, book, balances, &memState{})

	if err := r.RunPass(context.Background()); err != nil {
		t.Fatalf("pass should survive transient failures: %v", err)
	}
	if funds := balances.Funds("alice", model.ReserveAsset); funds.Available != 9 {
		t.Fatalf("deposit lost across retries: %+v", funds)
	}
}

func TestCreditOnce(t *testing.T) {
	balances := ledger.New()
	deposits := NewDepositStore(balances)

	rec := model.DepositRecord{TxID: "0xaaa:0", Principal: "alice", Amount: 10}
	fresh, err := deposits.CreditOnce(rec)
	if err != nil || !fresh {
		t.Fatalf("first credit: fresh=%v err=%v", fresh, err)
	}

	fresh, err = deposits.CreditOnce(rec)
	if err != nil || fresh {
		t.Fatalf("second credit should be a no-op: fresh=%v err=%v", fresh, err)
	}

	if funds := balances.Funds("alice", model.ReserveAsset); funds.Available != 10 {
		t.Fatalf("balance mismatch: %+v", funds)
	}
	if !deposits.Seen("0xaaa:0") {
		t.Fatalf("record missing")
	}
}
