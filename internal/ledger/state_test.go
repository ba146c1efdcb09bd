// internal/ledger/state_test.go
package ledger

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/fairlaunch/internal/bank"
	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/domain"
)

var (
	creator = domain.Account{Chain: "main", Owner: "creator"}
	trader  = domain.Account{Chain: "main", Owner: "trader"}
	other   = domain.Account{Chain: "main", Owner: "other"}
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// testCurve keeps the numbers small and exact: F(s) = s^3, price = 3s^2,
// 10% creator fee, cap at 10 tokens.
func testCurve() domain.CurveConfig {
	return domain.CurveConfig{
		K:             u(3),
		Scale:         u(1),
		TargetRaise:   u(1000),
		MaxSupply:     u(10),
		CreatorFeeBps: 1000,
	}
}

func newActiveState(t *testing.T) (*State, *bank.Bank) {
	t.Helper()
	s := NewState()
	require.NoError(t, s.Initialize("launch-1", creator, domain.TokenMetadata{Name: "Test", Symbol: "TST"}, testCurve(), time.Unix(1_700_000_000, 0)))
	funds := bank.New()
	funds.Mint(trader, u(10_000))
	funds.Mint(other, u(10_000))
	return s, funds
}

func TestInitialize_ExactlyOnce(t *testing.T) {
	s := NewState()
	cfg := testCurve()
	now := time.Now()

	require.NoError(t, s.Initialize("launch-1", creator, domain.TokenMetadata{Name: "Test", Symbol: "TST"}, cfg, now))
	assert.Equal(t, StatusActive, s.Status())

	err := s.Initialize("launch-1", creator, domain.TokenMetadata{Name: "Test", Symbol: "TST"}, cfg, now)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestBuy_TransfersAndMints(t *testing.T) {
	s, funds := newActiveState(t)

	receipt, err := s.Buy(trader, u(7), nil, time.Unix(1_700_000_100, 0), funds)
	require.NoError(t, err)

	// cost = F(7) - F(0) = 343, fee = 10% = 34, pooled = 309.
	assert.Equal(t, uint64(343), receipt.Trade.CurrencyAmount.Uint64())
	assert.Equal(t, uint64(34), receipt.Fee.Uint64())
	assert.False(t, receipt.GraduationTriggered)

	assert.Equal(t, uint64(7), s.CurrentSupply().Uint64())
	assert.Equal(t, uint64(343), s.TotalRaised().Uint64())
	assert.Equal(t, uint64(7), s.Balance(trader).Uint64())
	assert.Equal(t, uint64(1), s.HolderCount())

	assert.Equal(t, uint64(10_000-343), funds.Balance(trader).Uint64())
	assert.Equal(t, uint64(34), funds.Balance(creator).Uint64())
	assert.Equal(t, uint64(309), funds.Balance(TreasuryAccount("launch-1")).Uint64())

	// Spot price after the trade: 3 * 7^2.
	assert.Equal(t, uint64(147), receipt.Trade.Price.Uint64())
}

func TestBuy_SlippageProtection(t *testing.T) {
	s, funds := newActiveState(t)

	_, err := s.Buy(trader, u(7), u(342), time.Now(), funds)
	var slip *SlippageExceededError
	require.ErrorAs(t, err, &slip)
	assert.True(t, slip.Buy)
	assert.Equal(t, uint64(343), slip.Quoted.Uint64())

	// Nothing moved.
	assert.True(t, s.CurrentSupply().IsZero())
	assert.Equal(t, uint64(10_000), funds.Balance(trader).Uint64())
}

func TestBuy_ExceedsMaxSupply(t *testing.T) {
	s, funds := newActiveState(t)

	_, err := s.Buy(trader, u(11), nil, time.Now(), funds)
	var exceeds *ExceedsMaxSupplyError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, s.CurrentSupply().IsZero())
}

func TestBuy_InsufficientFundsLeavesNoTrace(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Initialize("launch-1", creator, domain.TokenMetadata{Name: "Test", Symbol: "TST"}, testCurve(), time.Now()))
	funds := bank.New()
	funds.Mint(trader, u(10)) // cost of 7 tokens is 343

	_, err := s.Buy(trader, u(7), nil, time.Now(), funds)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	assert.True(t, s.CurrentSupply().IsZero())
	assert.True(t, s.TotalRaised().IsZero())
	assert.Equal(t, uint64(0), s.TradeCount())
	assert.Equal(t, uint64(10), funds.Balance(trader).Uint64())
}

func TestBuy_ZeroAmount(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(0), nil, time.Now(), funds)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBuy_TriggersGraduationAtCap(t *testing.T) {
	s, funds := newActiveState(t)

	receipt, err := s.Buy(trader, u(10), nil, time.Now(), funds)
	require.NoError(t, err)
	assert.True(t, receipt.GraduationTriggered)
	assert.Equal(t, StatusGraduated, s.Status())

	// Terminal: curve trading is closed for good.
	_, err = s.Buy(trader, u(1), nil, time.Now(), funds)
	require.ErrorIs(t, err, ErrGraduated)
	_, err = s.Sell(trader, u(1), nil, time.Now(), funds)
	require.ErrorIs(t, err, ErrGraduated)
}

func TestSell_TransfersAndBurns(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(7), nil, time.Unix(1_700_000_100, 0), funds)
	require.NoError(t, err)

	receipt, err := s.Sell(trader, u(2), nil, time.Unix(1_700_000_200, 0), funds)
	require.NoError(t, err)

	// return = F(7) - F(5) = 343 - 125 = 218, fee = 21, net = 197.
	assert.Equal(t, uint64(218), receipt.Trade.CurrencyAmount.Uint64())
	assert.Equal(t, uint64(21), receipt.Fee.Uint64())

	assert.Equal(t, uint64(5), s.CurrentSupply().Uint64())
	assert.Equal(t, uint64(343-218), s.TotalRaised().Uint64())
	assert.Equal(t, uint64(5), s.Balance(trader).Uint64())

	assert.Equal(t, uint64(10_000-343+197), funds.Balance(trader).Uint64())
	assert.Equal(t, uint64(34+21), funds.Balance(creator).Uint64())
	assert.Equal(t, uint64(309-218), funds.Balance(TreasuryAccount("launch-1")).Uint64())
}

func TestSell_InsufficientBalance(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(3), nil, time.Now(), funds)
	require.NoError(t, err)

	_, err = s.Sell(trader, u(4), nil, time.Now(), funds)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(3), insufficient.Have.Uint64())
}

func TestSell_SlippageProtection(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(7), nil, time.Now(), funds)
	require.NoError(t, err)

	_, err = s.Sell(trader, u(2), u(219), time.Now(), funds)
	var slip *SlippageExceededError
	require.ErrorAs(t, err, &slip)
	assert.False(t, slip.Buy)
	assert.Equal(t, uint64(7), s.CurrentSupply().Uint64())
}

func TestBuyThenSell_RoundtripLosesFee(t *testing.T) {
	s, funds := newActiveState(t)

	// A holder who stays in keeps the treasury funded through the roundtrip:
	// buy 5 pools 125 - 12 = 113.
	_, err := s.Buy(other, u(5), nil, time.Unix(1_700_000_100, 0), funds)
	require.NoError(t, err)

	buy, err := s.Buy(trader, u(2), nil, time.Unix(1_700_000_200, 0), funds)
	require.NoError(t, err)
	sell, err := s.Sell(trader, u(2), nil, time.Unix(1_700_000_300, 0), funds)
	require.NoError(t, err)

	// Same amount over the same supply range: gross return equals gross cost
	// (F(7)-F(5) = 218 both ways), so with a nonzero fee the roundtrip always
	// nets less than it cost.
	assert.Equal(t, buy.Trade.CurrencyAmount.Dec(), sell.Trade.CurrencyAmount.Dec())
	assert.Equal(t, uint64(218), buy.Trade.CurrencyAmount.Uint64())
	require.True(t, sell.Fee.Sign() > 0)
	net := new(uint256.Int).Sub(sell.Trade.CurrencyAmount, sell.Fee)
	assert.True(t, net.Lt(buy.Trade.CurrencyAmount))

	// The trader is down exactly the sell-side fee; the creator collected the
	// fee on every leg: 12 + 21 + 21.
	assert.Equal(t, uint64(10_000-21), funds.Balance(trader).Uint64())
	assert.Equal(t, uint64(54), funds.Balance(creator).Uint64())
}

func TestSell_FullExitExceedsTreasury(t *testing.T) {
	s, funds := newActiveState(t)

	_, err := s.Buy(trader, u(7), nil, time.Unix(1_700_000_100, 0), funds)
	require.NoError(t, err)

	// The treasury pooled cost minus fee (309) but a full exit owes the gross
	// return plus the fee leg (343), so a sole holder cannot unwind
	// completely. The batch aborts atomically.
	_, err = s.Sell(trader, u(7), nil, time.Unix(1_700_000_200, 0), funds)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	assert.Equal(t, uint64(7), s.CurrentSupply().Uint64())
	assert.Equal(t, uint64(343), s.TotalRaised().Uint64())
	assert.Equal(t, uint64(7), s.Balance(trader).Uint64())
	assert.Equal(t, uint64(1), s.TradeCount())
	assert.Equal(t, uint64(309), funds.Balance(TreasuryAccount("launch-1")).Uint64())
	assert.Equal(t, uint64(10_000-343), funds.Balance(trader).Uint64())
}

func TestHolderCount_Transitions(t *testing.T) {
	s, funds := newActiveState(t)

	_, err := s.Buy(trader, u(3), nil, time.Now(), funds)
	require.NoError(t, err)
	_, err = s.Buy(other, u(2), nil, time.Now(), funds)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.HolderCount())

	// Selling down to zero removes the holder.
	_, err = s.Sell(other, u(2), nil, time.Now(), funds)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.HolderCount())
	assert.True(t, s.Balance(other).IsZero())
}

func TestApprove_OverwritesAndClears(t *testing.T) {
	s, _ := newActiveState(t)

	require.NoError(t, s.Approve(trader, other, u(100)))
	assert.Equal(t, uint64(100), s.Allowance(trader, other).Uint64())

	// Approve replaces, never accumulates.
	require.NoError(t, s.Approve(trader, other, u(40)))
	assert.Equal(t, uint64(40), s.Allowance(trader, other).Uint64())

	require.NoError(t, s.Approve(trader, other, u(0)))
	assert.True(t, s.Allowance(trader, other).IsZero())
}

func TestAllowance_DirectionalKeys(t *testing.T) {
	s, _ := newActiveState(t)
	require.NoError(t, s.Approve(trader, other, u(100)))

	// (owner, spender) is ordered; the reverse pair stays empty.
	assert.True(t, s.Allowance(other, trader).IsZero())
}

func TestTransferFrom(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(5), nil, time.Now(), funds)
	require.NoError(t, err)
	require.NoError(t, s.Approve(trader, other, u(3)))

	require.NoError(t, s.TransferFrom(other, trader, other, u(2)))

	assert.Equal(t, uint64(3), s.Balance(trader).Uint64())
	assert.Equal(t, uint64(2), s.Balance(other).Uint64())
	assert.Equal(t, uint64(1), s.Allowance(trader, other).Uint64())
	assert.Equal(t, uint64(2), s.HolderCount())
}

func TestTransferFrom_InsufficientAllowance(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(5), nil, time.Now(), funds)
	require.NoError(t, err)
	require.NoError(t, s.Approve(trader, other, u(1)))

	err = s.TransferFrom(other, trader, other, u(2))
	var insufficient *InsufficientAllowanceError
	require.ErrorAs(t, err, &insufficient)

	// No balance or allowance change.
	assert.Equal(t, uint64(5), s.Balance(trader).Uint64())
	assert.Equal(t, uint64(1), s.Allowance(trader, other).Uint64())
}

func TestTransferFrom_InsufficientBalance(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(2), nil, time.Now(), funds)
	require.NoError(t, err)
	require.NoError(t, s.Approve(trader, other, u(10)))

	err = s.TransferFrom(other, trader, other, u(3))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(10), s.Allowance(trader, other).Uint64())
}

func TestTransferFrom_WorksAfterGraduation(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(10), nil, time.Now(), funds)
	require.NoError(t, err)
	require.Equal(t, StatusGraduated, s.Status())

	// Approvals and transfers stay available so pool custody can move
	// tokens.
	require.NoError(t, s.Approve(trader, other, u(4)))
	require.NoError(t, s.TransferFrom(other, trader, other, u(4)))
	assert.Equal(t, uint64(4), s.Balance(other).Uint64())
}

func TestTradeIDs_UniqueAndOrdered(t *testing.T) {
	s, funds := newActiveState(t)
	now := time.Unix(1_700_000_000, 0)

	// Same timestamp: the trade counter disambiguates.
	_, err := s.Buy(trader, u(1), nil, now, funds)
	require.NoError(t, err)
	_, err = s.Buy(trader, u(1), nil, now, funds)
	require.NoError(t, err)

	trades := s.Trades(0, 10)
	require.Len(t, trades, 2)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
	assert.Less(t, trades[0].ID, trades[1].ID)
}

func TestPositions_TrackInvestment(t *testing.T) {
	s, funds := newActiveState(t)

	_, err := s.Buy(trader, u(7), nil, time.Now(), funds)
	require.NoError(t, err)
	_, err = s.Sell(trader, u(2), nil, time.Now(), funds)
	require.NoError(t, err)

	pos, ok := s.Position(trader)
	require.True(t, ok)
	assert.Equal(t, uint64(5), pos.Balance.Uint64())
	// invested 343, recouped 218.
	assert.Equal(t, uint64(125), pos.TotalInvested.Uint64())
	assert.Equal(t, uint64(2), pos.TradeCount)
}

func TestGraduate_Manual(t *testing.T) {
	s, funds := newActiveState(t)

	// Nothing bought yet: nothing to graduate.
	_, err := s.Graduate()
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.Buy(trader, u(5), nil, time.Now(), funds)
	require.NoError(t, err)

	changed, err := s.Graduate()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusGraduated, s.Status())

	// Idempotent.
	changed, err = s.Graduate()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestApplyPoolCreated_Idempotent(t *testing.T) {
	s, funds := newActiveState(t)
	_, err := s.Buy(trader, u(10), nil, time.Now(), funds)
	require.NoError(t, err)

	s.ApplyPoolCreated("pool-launch-1")
	s.ApplyPoolCreated("pool-other")
	assert.Equal(t, "pool-launch-1", s.PoolID())
}

func TestOperations_RequireInitialization(t *testing.T) {
	s := NewState()
	funds := bank.New()

	_, err := s.Buy(trader, u(1), nil, time.Now(), funds)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Sell(trader, u(1), nil, time.Now(), funds)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, s.Approve(trader, other, u(1)), ErrNotInitialized)
	require.ErrorIs(t, s.TransferFrom(other, trader, other, u(1)), ErrNotInitialized)
}

func TestBuyCostMatchesCurvePackage(t *testing.T) {
	s, funds := newActiveState(t)
	cfg := testCurve()

	want, err := curve.BuyCost(u(0), u(4), cfg.K, cfg.Scale)
	require.NoError(t, err)

	receipt, err := s.Buy(trader, u(4), nil, time.Now(), funds)
	require.NoError(t, err)
	assert.Equal(t, want.Dec(), receipt.Trade.CurrencyAmount.Dec())
}
