// internal/pool/state.go
package pool

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
)

var (
	// ErrPoolLocked is the permanent answer to AddLiquidity: graduated
	// liquidity is locked forever.
	ErrPoolLocked = errors.New("pool: liquidity is locked permanently")

	// ErrInvalidAmount rejects zero-amount swaps.
	ErrInvalidAmount = errors.New("pool: amount must be greater than zero")

	// ErrInsufficientLiquidity is returned when a swap would drain the
	// output reserve.
	ErrInsufficientLiquidity = errors.New("pool: insufficient liquidity")
)

// ratioPrecision scales the initial currency/token ratio so integer division
// keeps six decimal places.
var ratioPrecision = uint256.NewInt(1_000_000)

// NotFoundError reports a swap against an unknown pool.
type NotFoundError struct {
	PoolID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pool: pool %s not found", e.PoolID)
}

// Pool is a locked constant-product liquidity pool for one graduated launch.
type Pool struct {
	ID              string
	LaunchID        string
	TokenReserve    *uint256.Int
	CurrencyReserve *uint256.Int
	// InitialRatio is currency per token at creation, scaled by 1e6.
	InitialRatio *uint256.Int
	CreatedAt    time.Time
	Locked       bool
	SwapCount    uint64
	// TVL is valued as twice the currency side.
	TVL *uint256.Int
}

func (p *Pool) clone() *Pool {
	cp := *p
	cp.TokenReserve = new(uint256.Int).Set(p.TokenReserve)
	cp.CurrencyReserve = new(uint256.Int).Set(p.CurrencyReserve)
	cp.InitialRatio = new(uint256.Int).Set(p.InitialRatio)
	cp.TVL = new(uint256.Int).Set(p.TVL)
	return &cp
}

// SwapResult describes an executed swap.
type SwapResult struct {
	PoolID    string
	TokenIn   bool
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// State holds all pools. Only the actor goroutine touches it.
type State struct {
	pools map[string]*Pool
	// byLaunch is the idempotency index: one pool per graduated launch.
	byLaunch   map[string]string
	totalPools uint64
	totalTVL   *uint256.Int
}

// NewState returns an empty pool registry.
func NewState() *State {
	return &State{
		pools:    make(map[string]*Pool),
		byLaunch: make(map[string]string),
		totalTVL: uint256.NewInt(0),
	}
}

// PoolID derives the deterministic pool id for a launch. Determinism keeps
// duplicate graduation messages convergent.
func PoolID(launchID string) string {
	return "pool-" + launchID
}

// CreatePool materializes the pool for a graduated launch. If the launch
// already has a pool the existing one is returned with created=false; the
// caller re-acks instead of erroring.
func (s *State) CreatePool(launchID string, tokenSupply, raised *uint256.Int, now time.Time) (*Pool, bool, error) {
	if tokenSupply == nil || tokenSupply.IsZero() || raised == nil || raised.IsZero() {
		return nil, false, ErrInvalidAmount
	}

	if id, ok := s.byLaunch[launchID]; ok {
		return s.pools[id], false, nil
	}

	ratio, overflow := new(uint256.Int).MulDivOverflow(raised, ratioPrecision, tokenSupply)
	if overflow {
		return nil, false, curve.ErrAmountOverflow
	}
	tvl, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(2), raised)
	if overflow {
		return nil, false, curve.ErrAmountOverflow
	}

	p := &Pool{
		ID:              PoolID(launchID),
		LaunchID:        launchID,
		TokenReserve:    new(uint256.Int).Set(tokenSupply),
		CurrencyReserve: new(uint256.Int).Set(raised),
		InitialRatio:    ratio,
		CreatedAt:       now,
		Locked:          true,
		TVL:             tvl,
	}
	s.pools[p.ID] = p
	s.byLaunch[launchID] = p.ID
	s.totalPools++
	s.totalTVL.Add(s.totalTVL, tvl)
	return p, true, nil
}

// Swap trades against the constant product x*y=k. tokenIn selects the
// direction: true swaps tokens for currency, false the reverse. The product
// of reserves never decreases.
func (s *State) Swap(poolID string, tokenIn bool, amountIn, minAmountOut *uint256.Int) (*SwapResult, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, ok := s.pools[poolID]
	if !ok {
		return nil, &NotFoundError{PoolID: poolID}
	}

	reserveIn, reserveOut := p.TokenReserve, p.CurrencyReserve
	if !tokenIn {
		reserveIn, reserveOut = p.CurrencyReserve, p.TokenReserve
	}

	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, curve.ErrAmountOverflow
	}
	// out = in * reserveOut / (reserveIn + in), truncating in the pool's
	// favor.
	amountOut, overflow := new(uint256.Int).MulDivOverflow(amountIn, reserveOut, newReserveIn)
	if overflow {
		return nil, curve.ErrAmountOverflow
	}
	if amountOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return nil, &SlippageError{Quoted: amountOut, Limit: new(uint256.Int).Set(minAmountOut)}
	}

	reserveIn.Set(newReserveIn)
	reserveOut.Sub(reserveOut, amountOut)
	p.SwapCount++

	return &SwapResult{
		PoolID:    poolID,
		TokenIn:   tokenIn,
		AmountIn:  new(uint256.Int).Set(amountIn),
		AmountOut: new(uint256.Int).Set(amountOut),
	}, nil
}

// SlippageError aborts a swap whose output fell below the caller's minimum.
type SlippageError struct {
	Quoted *uint256.Int
	Limit  *uint256.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("pool: slippage exceeded: out %s, min required %s", e.Quoted.Dec(), e.Limit.Dec())
}

// Pool returns a copy of the pool, if it exists.
func (s *State) Pool(poolID string) (*Pool, bool) {
	p, ok := s.pools[poolID]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// PoolByLaunch returns a copy of the launch's pool, if it graduated.
func (s *State) PoolByLaunch(launchID string) (*Pool, bool) {
	id, ok := s.byLaunch[launchID]
	if !ok {
		return nil, false
	}
	return s.pools[id].clone(), true
}

// Pools returns a page of pools ordered by creation time.
func (s *State) Pools(offset, limit int) []*Pool {
	if limit <= 0 {
		return nil
	}
	all := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		all = append(all, p)
	}
	// Map order is random; creation time with pool id tiebreak gives a
	// stable listing.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if offset < 0 || offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*Pool, 0, end-offset)
	for _, p := range all[offset:end] {
		out = append(out, p.clone())
	}
	return out
}

// TotalPools returns the number of pools ever created.
func (s *State) TotalPools() uint64 { return s.totalPools }

// TotalTVL returns the sum of pool TVLs at creation.
func (s *State) TotalTVL() *uint256.Int { return new(uint256.Int).Set(s.totalTVL) }

// SpotPrice returns the pool's current currency-per-token price, scaled by
// 1e6.
func (s *State) SpotPrice(poolID string) (*uint256.Int, error) {
	p, ok := s.pools[poolID]
	if !ok {
		return nil, &NotFoundError{PoolID: poolID}
	}
	if p.TokenReserve.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	price, overflow := new(uint256.Int).MulDivOverflow(p.CurrencyReserve, ratioPrecision, p.TokenReserve)
	if overflow {
		return nil, curve.ErrAmountOverflow
	}
	return price, nil
}
