// internal/bank/bank.go
package bank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
)

// ErrInsufficientFunds is returned when a debit exceeds the account balance.
// No leg of the containing batch is applied.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

// ErrInvalidTransfer is returned for zero-account or nil-amount legs.
var ErrInvalidTransfer = errors.New("bank: invalid transfer")

// Transfer is a single debit/credit leg.
type Transfer struct {
	From   domain.Account
	To     domain.Account
	Amount *uint256.Int
}

// Bank is the native-currency account store. It stands in for the runtime's
// transfer primitive: calls are synchronous and a batch either applies every
// leg or none, which lets the ledger commit fee and pooled-fund legs
// atomically with its own state update.
type Bank struct {
	mu       sync.Mutex
	balances map[domain.Account]*uint256.Int
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{balances: make(map[domain.Account]*uint256.Int)}
}

// Mint credits an account out of thin air. Used to fund test and simulation
// accounts; the trading path never mints.
func (b *Bank) Mint(account domain.Account, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(account, amount)
}

// Balance returns a copy of the account's balance.
func (b *Bank) Balance(account domain.Account) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

// Apply executes the batch atomically: every leg is validated against the
// balances that would result from the preceding legs, and nothing is written
// unless the whole batch clears. Zero-amount legs are skipped.
func (b *Bank) Apply(transfers ...Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Dry-run against a scratch view before touching real balances.
	scratch := make(map[domain.Account]*uint256.Int)
	view := func(a domain.Account) *uint256.Int {
		if v, ok := scratch[a]; ok {
			return v
		}
		v := uint256.NewInt(0)
		if cur, ok := b.balances[a]; ok {
			v.Set(cur)
		}
		scratch[a] = v
		return v
	}

	for _, t := range transfers {
		if t.Amount == nil || t.From.IsZero() || t.To.IsZero() {
			return ErrInvalidTransfer
		}
		if t.Amount.IsZero() {
			continue
		}
		from := view(t.From)
		if from.Lt(t.Amount) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, from.Dec(), t.Amount.Dec())
		}
		from.Sub(from, t.Amount)
		to := view(t.To)
		to.Add(to, t.Amount)
	}

	for account, balance := range scratch {
		if balance.IsZero() {
			delete(b.balances, account)
		} else {
			b.balances[account] = balance
		}
	}
	return nil
}

func (b *Bank) credit(account domain.Account, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	if bal, ok := b.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	b.balances[account] = new(uint256.Int).Set(amount)
}
