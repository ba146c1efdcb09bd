// internal/curve/curve.go
package curve

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when an intermediate curve term does not fit
// in 256 bits. It is fatal to the single operation, never to the actor.
var ErrAmountOverflow = errors.New("curve: amount overflow")

// BpsDenominator is the basis-point scale used for fee math (10000 = 100%).
var BpsDenominator = uint256.NewInt(10000)

var three = uint256.NewInt(3)

// Price returns the spot price at the given supply:
//
//	price = k * (supply / scale)^2
//
// computed as ((k*supply)/scale)*supply/scale so that intermediate magnitude
// stays bounded and precision is lost low-order first (truncation, not
// rounding).
func Price(supply, k, scale *uint256.Int) (*uint256.Int, error) {
	if supply.IsZero() || scale.IsZero() {
		return uint256.NewInt(0), nil
	}

	t, overflow := new(uint256.Int).MulOverflow(k, supply)
	if overflow {
		return nil, ErrAmountOverflow
	}
	t.Div(t, scale)

	t, overflow = t.MulOverflow(t, supply)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return t.Div(t, scale), nil
}

// integral evaluates the antiderivative of the price function:
//
//	F(s) = k * s^3 / (3 * scale^2)
//
// The caller guarantees scale is nonzero.
func integral(s, k, scale *uint256.Int) (*uint256.Int, error) {
	scaleSquared, overflow := new(uint256.Int).MulOverflow(scale, scale)
	if overflow {
		return nil, ErrAmountOverflow
	}
	denom, overflow := new(uint256.Int).MulOverflow(three, scaleSquared)
	if overflow {
		return nil, ErrAmountOverflow
	}

	n := new(uint256.Int).Set(s)
	for i := 0; i < 2; i++ {
		var of bool
		n, of = n.MulOverflow(n, s)
		if of {
			return nil, ErrAmountOverflow
		}
	}
	n, overflow = n.MulOverflow(n, k)
	if overflow {
		return nil, ErrAmountOverflow
	}

	return n.Div(n, denom), nil
}

// BuyCost returns the cost of minting amount tokens starting from the given
// supply: F(supply+amount) - F(supply). Cost is additive across consecutive
// buys, so splitting an order never changes the total.
func BuyCost(supply, amount, k, scale *uint256.Int) (*uint256.Int, error) {
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return nil, ErrAmountOverflow
	}

	integralNew, err := integral(newSupply, k, scale)
	if err != nil {
		return nil, err
	}
	integralOld, err := integral(supply, k, scale)
	if err != nil {
		return nil, err
	}

	return integralNew.Sub(integralNew, integralOld), nil
}

// SellReturn returns the proceeds of burning amount tokens at the given
// supply: F(supply) - F(supply-amount). Selling more than the circulating
// supply returns zero rather than an error.
func SellReturn(supply, amount, k, scale *uint256.Int) (*uint256.Int, error) {
	if amount.Gt(supply) {
		return uint256.NewInt(0), nil
	}

	newSupply := new(uint256.Int).Sub(supply, amount)

	integralOld, err := integral(supply, k, scale)
	if err != nil {
		return nil, err
	}
	integralNew, err := integral(newSupply, k, scale)
	if err != nil {
		return nil, err
	}

	return integralOld.Sub(integralOld, integralNew), nil
}

// Fee returns amount * bps / 10000, using a 512-bit intermediate so the
// product cannot overflow.
func Fee(amount *uint256.Int, bps uint16) *uint256.Int {
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(bps)), BpsDenominator)
	return fee
}
