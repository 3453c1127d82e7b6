package curve

import (
	"errors"
	"math/big"
)

var (
	ErrNegativeInput = errors.New("curve: negative supply or amount")
	// ErrDomain is returned when the requested supply exceeds the range the
	// curve is defined on (e.g. past an asymptote cap).
	ErrDomain        = errors.New("curve: supply outside curve domain")
	ErrInvalidParams = errors.New("curve: invalid parameters")
)

// PriceCurve prices topic tokens as a deterministic function of circulating
// supply. Cost returns the pay-token amount for minting delta tokens on top of
// base supply; the same figure is the proceeds for burning delta tokens down
// to base. Implementations must be strictly increasing in both arguments and
// must evaluate Cost(base, 0) to zero.
//
// Every implementation here prices through a cumulative integer function
// F(supply) and returns F(base+delta) - F(base). That makes pricing exactly
// additive across consecutive trades: the floor-division dust of a buy is
// returned in full by the matching sell, so a round trip can never extract
// value from the pool.
type PriceCurve interface {
	Cost(base, delta *big.Int) (*big.Int, error)
}

func checkInputs(base, delta *big.Int) error {
	if base == nil || delta == nil {
		return ErrNegativeInput
	}
	if base.Sign() < 0 || delta.Sign() < 0 {
		return ErrNegativeInput
	}
	return nil
}
