package rail

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// depositDomain namespaces deposit address derivation so a principal's
// address never collides with any other key material.
const depositDomain = "launchpool/deposit/v1"

// DepositAddress derives the deterministic rail address that credits a
// principal. The same principal always maps to the same address, so the
// derivation needs no storage to be repeated.
func DepositAddress(principal string) common.Address {
	digest := crypto.Keccak256([]byte(depositDomain), []byte(principal))
	return common.BytesToAddress(digest[12:])
}

// AddressBook maps rail deposit addresses back to principals. The reconciler
// can only attribute transfers whose principal has been registered here.
type AddressBook struct {
	mu     sync.RWMutex
	byAddr map[common.Address]string
}

func NewAddressBook() *AddressBook {
	return &AddressBook{byAddr: make(map[common.Address]string)}
}

// Assign registers the principal and returns their deposit address.
// Idempotent: repeated calls return the same address.
func (b *AddressBook) Assign(principal string) common.Address {
	addr := DepositAddress(principal)
	b.mu.Lock()
	b.byAddr[addr] = principal
	b.mu.Unlock()
	return addr
}

// Principal resolves a deposit address to its owner.
func (b *AddressBook) Principal(addr common.Address) (string, bool) {
	b.mu.RLock()
	principal, ok := b.byAddr[addr]
	b.mu.RUnlock()
	return principal, ok
}

// Principals returns the registered principals in stable order.
func (b *AddressBook) Principals() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.byAddr))
	for _, principal := range b.byAddr {
		out = append(out, principal)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}
