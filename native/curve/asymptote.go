package curve

import "math/big"

// Asymptote prices tokens along F(s) = scale * s / (cap - s). The marginal
// price diverges as supply approaches cap, so circulating supply can never
// reach it; the pool's pay-token intake is bounded only by that approach.
type Asymptote struct {
	cap   *big.Int
	scale *big.Int
}

// NewAsymptote constructs the curve. Both parameters must be positive and the
// scale must be at least the cap: the real-valued increment per token is
// scale*cap/((cap-s)(cap-s-1)) > 1 under that bound, so every unit costs at
// least one pay-token unit after flooring. A smaller scale would let whole
// buys round to zero at low supply and mint tokens for free.
func NewAsymptote(cap, scale *big.Int) (*Asymptote, error) {
	if cap == nil || scale == nil {
		return nil, ErrInvalidParams
	}
	if cap.Sign() <= 0 || scale.Sign() <= 0 {
		return nil, ErrInvalidParams
	}
	if scale.Cmp(cap) < 0 {
		return nil, ErrInvalidParams
	}
	return &Asymptote{
		cap:   new(big.Int).Set(cap),
		scale: new(big.Int).Set(scale),
	}, nil
}

// Cap returns the supply asymptote.
func (a *Asymptote) Cap() *big.Int {
	return new(big.Int).Set(a.cap)
}

func (a *Asymptote) cumulative(supply *big.Int) *big.Int {
	value := new(big.Int).Mul(a.scale, supply)
	remaining := new(big.Int).Sub(a.cap, supply)
	return value.Quo(value, remaining)
}

// Cost implements PriceCurve. ErrDomain is returned when base+delta would
// reach or exceed the cap.
func (a *Asymptote) Cost(base, delta *big.Int) (*big.Int, error) {
	if err := checkInputs(base, delta); err != nil {
		return nil, err
	}
	if delta.Sign() == 0 {
		return big.NewInt(0), nil
	}
	total := new(big.Int).Add(base, delta)
	if total.Cmp(a.cap) >= 0 {
		return nil, ErrDomain
	}
	upper := a.cumulative(total)
	lower := a.cumulative(base)
	return upper.Sub(upper, lower), nil
}
