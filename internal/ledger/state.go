// internal/ledger/state.go
package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/fairlaunch/internal/bank"
	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/domain"
)

// Status is the launch lifecycle: Uninitialized -> Active -> Graduated.
// Graduated is terminal.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusGraduated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusActive:
		return "active"
	case StatusGraduated:
		return "graduated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// allowanceKey is the composite map key for (owner, spender) approvals.
type allowanceKey struct {
	Owner   domain.Account
	Spender domain.Account
}

// Receipt describes a committed trade.
type Receipt struct {
	Trade domain.Trade
	// Fee is the creator's cut, already transferred.
	Fee *uint256.Int
	// GraduationTriggered is set on the buy that filled the supply cap.
	GraduationTriggered bool
}

// State holds everything a single launch owns. It is only ever touched by the
// actor's processing goroutine, so no field needs locking.
type State struct {
	launchID string
	creator  domain.Account
	treasury domain.Account
	metadata domain.TokenMetadata
	curve    domain.CurveConfig

	status        Status
	currentSupply *uint256.Int
	totalRaised   *uint256.Int
	createdAt     time.Time
	poolID        string

	balances   map[domain.Account]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	positions  map[domain.Account]*domain.Position
	trades     []domain.Trade

	holderCount uint64
	tradeCount  uint64
}

// NewState returns an empty, uninitialized ledger state.
func NewState() *State {
	return &State{
		currentSupply: uint256.NewInt(0),
		totalRaised:   uint256.NewInt(0),
		balances:      make(map[domain.Account]*uint256.Int),
		allowances:    make(map[allowanceKey]*uint256.Int),
		positions:     make(map[domain.Account]*domain.Position),
	}
}

// TreasuryAccount is the account that custodies a launch's pooled curve funds.
func TreasuryAccount(launchID string) domain.Account {
	return domain.Account{Chain: launchID, Owner: "treasury"}
}

// Initialize installs the launch parameters. Exactly-once: a second call
// fails with ErrAlreadyInitialized and changes nothing.
func (s *State) Initialize(launchID string, creator domain.Account, metadata domain.TokenMetadata, cfg domain.CurveConfig, now time.Time) error {
	if s.status != StatusUninitialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.launchID = launchID
	s.creator = creator
	s.treasury = TreasuryAccount(launchID)
	s.metadata = metadata
	s.curve = cfg.Clone()
	s.createdAt = now
	s.status = StatusActive
	return nil
}

// Buy mints amount tokens to trader at the curve price. The creator fee and
// the pooled remainder move through the bank in one atomic batch; ledger
// state mutates only after the batch clears, so a failed transfer leaves no
// trace.
func (s *State) Buy(trader domain.Account, amount, maxCost *uint256.Int, now time.Time, funds *bank.Bank) (*Receipt, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := s.requireActive(); err != nil {
		return nil, err
	}

	cost, err := curve.BuyCost(s.currentSupply, amount, s.curve.K, s.curve.Scale)
	if err != nil {
		return nil, err
	}
	if maxCost != nil && cost.Gt(maxCost) {
		return nil, &SlippageExceededError{Buy: true, Quoted: cost, Limit: new(uint256.Int).Set(maxCost)}
	}

	newSupply, overflow := new(uint256.Int).AddOverflow(s.currentSupply, amount)
	if overflow {
		return nil, curve.ErrAmountOverflow
	}
	if newSupply.Gt(s.curve.MaxSupply) {
		return nil, &ExceedsMaxSupplyError{
			Current: new(uint256.Int).Set(s.currentSupply),
			Adding:  new(uint256.Int).Set(amount),
			Max:     new(uint256.Int).Set(s.curve.MaxSupply),
		}
	}

	fee := curve.Fee(cost, s.curve.CreatorFeeBps)
	pooled := new(uint256.Int).Sub(cost, fee)
	if err := funds.Apply(
		bank.Transfer{From: trader, To: s.creator, Amount: fee},
		bank.Transfer{From: trader, To: s.treasury, Amount: pooled},
	); err != nil {
		return nil, err
	}

	s.currentSupply.Set(newSupply)
	s.totalRaised.Add(s.totalRaised, cost)
	s.creditBalance(trader, amount)

	trade := s.recordTrade(trader, true, amount, cost, now)

	receipt := &Receipt{Trade: trade, Fee: fee}
	if !s.currentSupply.Lt(s.curve.MaxSupply) {
		s.status = StatusGraduated
		receipt.GraduationTriggered = true
	}
	return receipt, nil
}

// Sell burns amount tokens from trader and pays out the curve return minus
// the creator fee, both legs from the treasury in one atomic batch.
func (s *State) Sell(trader domain.Account, amount, minReturn *uint256.Int, now time.Time, funds *bank.Bank) (*Receipt, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := s.requireActive(); err != nil {
		return nil, err
	}

	balance := s.balanceOf(trader)
	if balance.Lt(amount) {
		return nil, &InsufficientBalanceError{Have: balance, Need: new(uint256.Int).Set(amount)}
	}

	ret, err := curve.SellReturn(s.currentSupply, amount, s.curve.K, s.curve.Scale)
	if err != nil {
		return nil, err
	}
	if minReturn != nil && ret.Lt(minReturn) {
		return nil, &SlippageExceededError{Buy: false, Quoted: ret, Limit: new(uint256.Int).Set(minReturn)}
	}

	// Fee comes out of the gross curve return; the seller receives the rest.
	fee := curve.Fee(ret, s.curve.CreatorFeeBps)
	net := new(uint256.Int).Sub(ret, fee)
	if err := funds.Apply(
		bank.Transfer{From: s.treasury, To: s.creator, Amount: fee},
		bank.Transfer{From: s.treasury, To: trader, Amount: net},
	); err != nil {
		return nil, err
	}

	s.currentSupply.Sub(s.currentSupply, amount)
	if s.totalRaised.Lt(ret) {
		s.totalRaised.Clear()
	} else {
		s.totalRaised.Sub(s.totalRaised, ret)
	}
	s.debitBalance(trader, amount)

	trade := s.recordTrade(trader, false, amount, ret, now)
	return &Receipt{Trade: trade, Fee: fee}, nil
}

// Approve sets (not adds to) the spender's allowance over owner's tokens.
func (s *State) Approve(owner, spender domain.Account, amount *uint256.Int) error {
	if s.status == StatusUninitialized {
		return ErrNotInitialized
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	key := allowanceKey{Owner: owner, Spender: spender}
	if amount.IsZero() {
		delete(s.allowances, key)
		return nil
	}
	s.allowances[key] = new(uint256.Int).Set(amount)
	return nil
}

// TransferFrom moves tokens from `from` to `to` on behalf of spender,
// consuming allowance. Balances and allowance either all change or none do.
func (s *State) TransferFrom(spender, from, to domain.Account, amount *uint256.Int) error {
	if s.status == StatusUninitialized {
		return ErrNotInitialized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	key := allowanceKey{Owner: from, Spender: spender}
	allowance, ok := s.allowances[key]
	if !ok || allowance.Lt(amount) {
		have := uint256.NewInt(0)
		if ok {
			have.Set(allowance)
		}
		return &InsufficientAllowanceError{Have: have, Need: new(uint256.Int).Set(amount)}
	}

	balance := s.balanceOf(from)
	if balance.Lt(amount) {
		return &InsufficientBalanceError{Have: balance, Need: new(uint256.Int).Set(amount)}
	}

	allowance.Sub(allowance, amount)
	if allowance.IsZero() {
		delete(s.allowances, key)
	}
	s.debitBalance(from, amount)
	s.creditBalance(to, amount)
	return nil
}

// Graduate is the manual trigger. Idempotent: returns false without error if
// the launch already graduated. A curve with nothing bought yet cannot
// graduate.
func (s *State) Graduate() (bool, error) {
	switch s.status {
	case StatusUninitialized:
		return false, ErrNotInitialized
	case StatusGraduated:
		return false, nil
	}
	if s.currentSupply.IsZero() || s.totalRaised.IsZero() {
		return false, ErrInvalidAmount
	}
	s.status = StatusGraduated
	return true, nil
}

// ApplyPoolCreated records the pool acknowledgement. Safe to deliver more
// than once.
func (s *State) ApplyPoolCreated(poolID string) {
	if s.poolID == "" {
		s.poolID = poolID
	}
	if s.status == StatusActive {
		s.status = StatusGraduated
	}
}

func (s *State) requireActive() error {
	switch s.status {
	case StatusUninitialized:
		return ErrNotInitialized
	case StatusGraduated:
		return ErrGraduated
	}
	return nil
}

func (s *State) balanceOf(account domain.Account) *uint256.Int {
	if bal, ok := s.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

// creditBalance adds to a holder's balance, bumping the holder count on a
// zero -> nonzero transition.
func (s *State) creditBalance(account domain.Account, amount *uint256.Int) {
	if bal, ok := s.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	s.balances[account] = new(uint256.Int).Set(amount)
	s.holderCount++
}

// debitBalance subtracts from a holder's balance, dropping the entry and the
// holder count when it reaches zero. The caller has already checked funds.
func (s *State) debitBalance(account domain.Account, amount *uint256.Int) {
	bal := s.balances[account]
	bal.Sub(bal, amount)
	if bal.IsZero() {
		delete(s.balances, account)
		s.holderCount--
	}
}

// recordTrade appends the trade, bumps the counter and updates the trader's
// position. Trade ids are "{unix_micros}-{count}": unique and totally ordered
// within a launch.
func (s *State) recordTrade(trader domain.Account, isBuy bool, amount, value *uint256.Int, now time.Time) domain.Trade {
	price, err := curve.Price(s.currentSupply, s.curve.K, s.curve.Scale)
	if err != nil {
		// Supply fit the curve a moment ago; spot price display degrades to
		// zero rather than failing a committed trade.
		price = uint256.NewInt(0)
	}

	trade := domain.Trade{
		ID:             fmt.Sprintf("%d-%d", now.UnixMicro(), s.tradeCount),
		LaunchID:       s.launchID,
		Trader:         trader,
		IsBuy:          isBuy,
		TokenAmount:    new(uint256.Int).Set(amount),
		CurrencyAmount: new(uint256.Int).Set(value),
		Price:          price,
		Timestamp:      now,
	}
	s.trades = append(s.trades, trade)
	s.tradeCount++

	pos, ok := s.positions[trader]
	if !ok {
		pos = &domain.Position{
			LaunchID:      s.launchID,
			Balance:       uint256.NewInt(0),
			TotalInvested: uint256.NewInt(0),
		}
		s.positions[trader] = pos
	}
	pos.Balance = s.balanceOf(trader)
	if isBuy {
		pos.TotalInvested.Add(pos.TotalInvested, value)
	} else if pos.TotalInvested.Lt(value) {
		pos.TotalInvested.Clear()
	} else {
		pos.TotalInvested.Sub(pos.TotalInvested, value)
	}
	pos.TradeCount++

	return trade
}

// --- read accessors, all returning copies ---

func (s *State) LaunchID() string               { return s.launchID }
func (s *State) Creator() domain.Account        { return s.creator }
func (s *State) Metadata() domain.TokenMetadata { return s.metadata }
func (s *State) Curve() domain.CurveConfig      { return s.curve.Clone() }
func (s *State) Status() Status                 { return s.status }
func (s *State) PoolID() string                 { return s.poolID }
func (s *State) HolderCount() uint64            { return s.holderCount }
func (s *State) TradeCount() uint64             { return s.tradeCount }
func (s *State) CreatedAt() time.Time           { return s.createdAt }

func (s *State) CurrentSupply() *uint256.Int {
	return new(uint256.Int).Set(s.currentSupply)
}

func (s *State) TotalRaised() *uint256.Int {
	return new(uint256.Int).Set(s.totalRaised)
}

func (s *State) Balance(account domain.Account) *uint256.Int {
	return s.balanceOf(account)
}

func (s *State) Allowance(owner, spender domain.Account) *uint256.Int {
	if a, ok := s.allowances[allowanceKey{Owner: owner, Spender: spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return uint256.NewInt(0)
}

func (s *State) Position(account domain.Account) (domain.Position, bool) {
	pos, ok := s.positions[account]
	if !ok {
		return domain.Position{}, false
	}
	return domain.Position{
		LaunchID:      pos.LaunchID,
		Balance:       new(uint256.Int).Set(pos.Balance),
		TotalInvested: new(uint256.Int).Set(pos.TotalInvested),
		TradeCount:    pos.TradeCount,
	}, true
}

// Trades returns a page of the trade log in execution order.
func (s *State) Trades(offset, limit int) []domain.Trade {
	if offset < 0 || offset >= len(s.trades) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(s.trades) {
		end = len(s.trades)
	}
	out := make([]domain.Trade, end-offset)
	copy(out, s.trades[offset:end])
	return out
}

// RecentTrades returns up to limit most recent trades, newest first.
func (s *State) RecentTrades(limit int) []domain.Trade {
	if limit <= 0 || len(s.trades) == 0 {
		return nil
	}
	if limit > len(s.trades) {
		limit = len(s.trades)
	}
	out := make([]domain.Trade, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.trades[len(s.trades)-1-i]
	}
	return out
}
