package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"launchpool/internal/model"
)

// ErrInsufficientBalance rejects debits and locks that exceed the available
// funds of an account.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger is the custodial balance book. Accounts are created lazily on first
// touch and never deleted; all mutations for one principal are serialized by
// that principal's account lock, so concurrent trades and withdrawals cannot
// double-spend available funds.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

type account struct {
	mu    sync.Mutex
	funds map[string]*model.Funds
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

// Credit adds amount to the principal's available balance for asset.
func (l *Ledger) Credit(principal, asset string, amount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	funds := acct.fundsFor(asset)
	if funds.Available > math.MaxUint64-amount {
		return fmt.Errorf("credit %s/%s: balance overflow", principal, asset)
	}
	funds.Available += amount
	return nil
}

// Debit removes amount from the principal's available balance for asset.
func (l *Ledger) Debit(principal, asset string, amount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	funds := acct.fundsFor(asset)
	if funds.Available < amount {
		return fmt.Errorf("%w: %s/%s has %d, need %d", ErrInsufficientBalance, principal, asset, funds.Available, amount)
	}
	funds.Available -= amount
	return nil
}

// Settle debits one asset and credits another for the same principal in a
// single atomic step. On any failure nothing is mutated. The trade executor
// uses this so a committed trade can never leave a half-applied balance.
func (l *Ledger) Settle(principal, debitAsset string, debitAmount uint64, creditAsset string, creditAmount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	debit := acct.fundsFor(debitAsset)
	credit := acct.fundsFor(creditAsset)
	if debit.Available < debitAmount {
		return fmt.Errorf("%w: %s/%s has %d, need %d", ErrInsufficientBalance, principal, debitAsset, debit.Available, debitAmount)
	}
	if credit.Available > math.MaxUint64-creditAmount {
		return fmt.Errorf("settle %s/%s: balance overflow", principal, creditAsset)
	}

	debit.Available -= debitAmount
	credit.Available += creditAmount
	return nil
}

// Lock moves amount from available to locked, reserving it for an in-flight
// withdrawal.
func (l *Ledger) Lock(principal, asset string, amount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	funds := acct.fundsFor(asset)
	if funds.Available < amount {
		return fmt.Errorf("%w: %s/%s has %d, need %d", ErrInsufficientBalance, principal, asset, funds.Available, amount)
	}
	funds.Available -= amount
	funds.Locked += amount
	return nil
}

// Unlock returns previously locked funds to available, used when the external
// transfer for a withdrawal fails.
func (l *Ledger) Unlock(principal, asset string, amount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	funds := acct.fundsFor(asset)
	if funds.Locked < amount {
		return fmt.Errorf("unlock %s/%s: locked %d < %d", principal, asset, funds.Locked, amount)
	}
	funds.Locked -= amount
	funds.Available += amount
	return nil
}

// DebitLocked burns locked funds once the external transfer they were
// reserved for has been handed off.
func (l *Ledger) DebitLocked(principal, asset string, amount uint64) error {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	funds := acct.fundsFor(asset)
	if funds.Locked < amount {
		return fmt.Errorf("debit locked %s/%s: locked %d < %d", principal, asset, funds.Locked, amount)
	}
	funds.Locked -= amount
	return nil
}

// Funds returns a snapshot of one asset balance.
func (l *Ledger) Funds(principal, asset string) model.Funds {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if funds, ok := acct.funds[asset]; ok {
		return *funds
	}
	return model.Funds{}
}

// Balance returns a snapshot of all asset balances for a principal.
func (l *Ledger) Balance(principal string) model.Balance {
	acct := l.account(principal)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := model.Balance{Principal: principal, Assets: make(map[string]model.Funds, len(acct.funds))}
	for asset, funds := range acct.funds {
		out.Assets[asset] = *funds
	}
	return out
}

// Principals returns all known principals in stable order.
func (l *Ledger) Principals() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.accounts))
	for principal := range l.accounts {
		out = append(out, principal)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) account(principal string) *account {
	l.mu.RLock()
	acct, ok := l.accounts[principal]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[principal]; ok {
		return acct
	}
	acct = &account{funds: make(map[string]*model.Funds)}
	l.accounts[principal] = acct
	return acct
}

func (a *account) fundsFor(asset string) *model.Funds {
	funds, ok := a.funds[asset]
	if !ok {
		funds = &model.Funds{}
		a.funds[asset] = funds
	}
	return funds
}
