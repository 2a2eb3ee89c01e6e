package reconcile

import (
	"sort"
	"sync"

	"launchpool/internal/ledger"
	"launchpool/internal/model"
)

// DepositStore pairs the ledger credit with the deposit record insert in one
// critical section. That pair is the reconciler's idempotency guarantee: two
// passes over the same rail history can never credit a transfer twice.
type DepositStore struct {
	mu       sync.Mutex
	balances *ledger.Ledger
	byTx     map[string]model.DepositRecord
}

func NewDepositStore(balances *ledger.Ledger) *DepositStore {
	return &DepositStore{
		balances: balances,
		byTx:     make(map[string]model.DepositRecord),
	}
}

// CreditOnce credits the ledger and records the deposit atomically. Returns
// false without touching anything when the transfer was already credited.
func (s *DepositStore) CreditOnce(rec model.DepositRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTx[rec.TxID]; ok {
		return false, nil
	}
	if err := s.balances.Credit(rec.Principal, model.ReserveAsset, rec.Amount); err != nil {
		return false, err
	}
	s.byTx[rec.TxID] = rec
	return true, nil
}

// Seen reports whether a rail transaction has already been credited.
func (s *DepositStore) Seen(txID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byTx[txID]
	return ok
}

// Records returns all deposit records ordered by rail transaction id.
func (s *DepositStore) Records() []model.DepositRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DepositRecord, 0, len(s.byTx))
	for _, rec := range s.byTx {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out
}
