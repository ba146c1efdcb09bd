// internal/ledger/errors.go
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidAmount rejects zero-amount trades and transfers before any
	// state is touched.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")

	// ErrNotInitialized is returned for operations against a ledger that has
	// not received its launch parameters yet.
	ErrNotInitialized = errors.New("ledger: launch not initialized")

	// ErrAlreadyInitialized is returned when Initialize is delivered twice.
	ErrAlreadyInitialized = errors.New("ledger: launch already initialized")

	// ErrGraduated is the terminal-state error: once a launch graduates,
	// buy and sell are permanently disabled.
	ErrGraduated = errors.New("ledger: launch graduated, curve trading closed")
)

// InsufficientBalanceError reports a debit that exceeds the holder's balance.
type InsufficientBalanceError struct {
	Have *uint256.Int
	Need *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance: have %s, need %s", e.Have.Dec(), e.Need.Dec())
}

// InsufficientAllowanceError reports a transferFrom beyond the approved
// allowance.
type InsufficientAllowanceError struct {
	Have *uint256.Int
	Need *uint256.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient allowance: have %s, need %s", e.Have.Dec(), e.Need.Dec())
}

// ExceedsMaxSupplyError reports a buy that would cross the supply cap.
type ExceedsMaxSupplyError struct {
	Current *uint256.Int
	Adding  *uint256.Int
	Max     *uint256.Int
}

func (e *ExceedsMaxSupplyError) Error() string {
	return fmt.Sprintf("ledger: would exceed max supply: current %s, adding %s, max %s",
		e.Current.Dec(), e.Adding.Dec(), e.Max.Dec())
}

// SlippageExceededError aborts a trade whose curve-computed value moved past
// the caller-supplied bound.
type SlippageExceededError struct {
	Buy    bool
	Quoted *uint256.Int
	Limit  *uint256.Int
}

func (e *SlippageExceededError) Error() string {
	if e.Buy {
		return fmt.Sprintf("ledger: slippage exceeded: cost %s, max allowed %s", e.Quoted.Dec(), e.Limit.Dec())
	}
	return fmt.Sprintf("ledger: slippage exceeded: return %s, min required %s", e.Quoted.Dec(), e.Limit.Dec())
}
