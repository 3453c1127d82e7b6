package market

import (
	"math/big"

	"curvemarket/native/position"
	"curvemarket/native/token"
)

// TotalSupply returns the circulating supply of a topic token.
func (e *Engine) TotalSupply(tid string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	tid = token.NormalizeTID(tid)
	if err := e.requireToken(tid); err != nil {
		return nil, err
	}
	return e.tokens.TotalSupply(tid)
}

// BalanceOf returns an address's free topic-token balance.
func (e *Engine) BalanceOf(tid string, addr [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	tid = token.NormalizeTID(tid)
	if err := e.requireToken(tid); err != nil {
		return nil, err
	}
	return e.tokens.BalanceOf(tid, addr)
}

// GetPayTokenAmount quotes the curve value of delta tokens on top of base
// supply, before fees. Both buy and sell quotes reduce to this: a buy of
// delta at supply s costs GetPayTokenAmount(s, delta), a sell of delta pays
// GetPayTokenAmount(s-delta, delta).
func (e *Engine) GetPayTokenAmount(base, delta *big.Int) (*big.Int, error) {
	if e == nil || e.curve == nil {
		return nil, ErrNilState
	}
	return e.cost(base, delta)
}

// PositionInfo returns a copy of the position record, reporting absence
// without an error.
func (e *Engine) PositionInfo(positionID uint64) (*position.Position, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	pos, ok, err := e.positions.Get(positionID)
	if err != nil || !ok {
		return nil, false, err
	}
	return pos.Clone(), true, nil
}

// PositionsOf enumerates the live position ids owned by the address.
func (e *Engine) PositionsOf(owner [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.positions.PositionsOf(owner)
}

// Approve grants or clears an operator's settlement rights over a position.
// Only the current owner may approve; a zero operator clears the grant.
func (e *Engine) Approve(caller [20]byte, positionID uint64, operator [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.settle.Exit()
	return e.positions.Approve(caller, positionID, operator)
}
