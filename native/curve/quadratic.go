package curve

import "math/big"

// Quadratic prices tokens along F(s) = numerator * s^2 / denominator, so the
// marginal price grows linearly with supply. Parameters are fixed at market
// creation.
type Quadratic struct {
	numerator   *big.Int
	denominator *big.Int
}

// NewQuadratic constructs the curve. Both parameters must be positive and the
// numerator must be at least the denominator: the cumulative differences then
// advance by numerator*(2s+1) >= denominator per token, so every unit costs at
// least one pay-token unit after flooring and the cost stays strictly
// increasing in both base and delta. A flatter ratio would let whole buys
// round to zero and mint tokens for free.
func NewQuadratic(numerator, denominator *big.Int) (*Quadratic, error) {
	if numerator == nil || denominator == nil {
		return nil, ErrInvalidParams
	}
	if numerator.Sign() <= 0 || denominator.Sign() <= 0 {
		return nil, ErrInvalidParams
	}
	if numerator.Cmp(denominator) < 0 {
		return nil, ErrInvalidParams
	}
	return &Quadratic{
		numerator:   new(big.Int).Set(numerator),
		denominator: new(big.Int).Set(denominator),
	}, nil
}

func (q *Quadratic) cumulative(supply *big.Int) *big.Int {
	value := new(big.Int).Mul(supply, supply)
	value.Mul(value, q.numerator)
	return value.Quo(value, q.denominator)
}

// Cost implements PriceCurve.
func (q *Quadratic) Cost(base, delta *big.Int) (*big.Int, error) {
	if err := checkInputs(base, delta); err != nil {
		return nil, err
	}
	if delta.Sign() == 0 {
		return big.NewInt(0), nil
	}
	upper := q.cumulative(new(big.Int).Add(base, delta))
	lower := q.cumulative(base)
	return upper.Sub(upper, lower), nil
}
