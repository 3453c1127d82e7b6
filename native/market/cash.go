package market

import (
	"math/big"

	"curvemarket/core/events"
)

// cashQuote values settling amount collateral out of a position at the
// current market price. The sell side is priced like a Sell, charging both
// sell fees; the mortgage advance for the settled slice, valued from the
// position's running base, is clawed back before anything reaches the owner.
type cashQuote struct {
	payout *big.Int
	nftFee *big.Int
	appFee *big.Int
}

func (e *Engine) cashValue(posAmount, amount, supply *big.Int) (cashQuote, error) {
	proceeds, err := e.cost(new(big.Int).Sub(supply, amount), amount)
	if err != nil {
		return cashQuote{}, err
	}
	mortValue, err := e.cost(new(big.Int).Sub(posAmount, amount), amount)
	if err != nil {
		return cashQuote{}, err
	}
	quote := cashQuote{
		nftFee: feeAmount(proceeds, e.policy.NFTOwnerSellFee),
		appFee: feeAmount(proceeds, e.policy.AppOwnerSellFee),
	}
	quote.payout = new(big.Int).Sub(proceeds, quote.nftFee)
	quote.payout.Sub(quote.payout, quote.appFee)
	quote.payout.Sub(quote.payout, mortValue)
	return quote, nil
}

// Cash settles amount collateral out of a position at market price: the
// tokens are sold back into the curve, the sell fees and the outstanding
// mortgage advance are deducted, and the surplus is paid to the position
// owner. Cash refuses positions under water; use ForceCash to close those.
func (e *Engine) Cash(caller [20]byte, positionID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return nil, err
	}
	supply, err := e.cashChecks(pos.TID, pos.Amount, amount)
	if err != nil {
		return nil, err
	}
	quote, err := e.cashValue(pos.Amount, amount, supply)
	if err != nil {
		return nil, err
	}
	if quote.payout.Sign() < 0 {
		return nil, ErrCash
	}
	if err := e.closeCollateral(pos.TID, positionID, amount); err != nil {
		return nil, err
	}
	if err := e.payCashFees(pos.TID, quote); err != nil {
		return nil, err
	}
	if err := e.pay.Transfer(e.vault, pos.Owner, quote.payout); err != nil {
		return nil, err
	}
	e.emit(events.MarketCash{TID: pos.TID, Caller: caller, PositionID: positionID, Amount: amount, Payout: quote.payout, UserProfit: true})
	e.observeOp("cash")
	return quote.payout, nil
}

// ForceCash settles a position regardless of sign. A surplus is paid to the
// position owner exactly as Cash would; a deficit is collected from the
// caller before the position is touched. The absolute settled amount and
// whether the owner profited are returned.
func (e *Engine) ForceCash(caller [20]byte, positionID uint64, amount, value *big.Int) (*big.Int, bool, error) {
	if err := e.begin(); err != nil {
		return nil, false, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return nil, false, err
	}
	supply, err := e.cashChecks(pos.TID, pos.Amount, amount)
	if err != nil {
		return nil, false, err
	}
	quote, err := e.cashValue(pos.Amount, amount, supply)
	if err != nil {
		return nil, false, err
	}
	userProfit := quote.payout.Sign() >= 0
	required := big.NewInt(0)
	if !userProfit {
		required = new(big.Int).Neg(quote.payout)
	}
	if err := e.collect(caller, value, required); err != nil {
		return nil, false, err
	}
	if err := e.closeCollateral(pos.TID, positionID, amount); err != nil {
		return nil, false, err
	}
	if err := e.payCashFees(pos.TID, quote); err != nil {
		return nil, false, err
	}
	if userProfit {
		if err := e.pay.Transfer(e.vault, pos.Owner, quote.payout); err != nil {
			return nil, false, err
		}
	}
	if err := e.refundExcess(caller, value, required); err != nil {
		return nil, false, err
	}
	settled := new(big.Int).Abs(quote.payout)
	e.emit(events.MarketCash{TID: pos.TID, Caller: caller, PositionID: positionID, Amount: amount, Payout: settled, Forced: true, UserProfit: userProfit})
	e.observeOp("force_cash")
	return settled, userProfit, nil
}

// Split carves amount collateral out of a position into a fresh position
// owned by the caller. No curve valuation and no fees apply; the donor
// position must keep a positive amount, so a full split is rejected.
func (e *Engine) Split(caller [20]byte, positionID uint64, amount *big.Int) (uint64, error) {
	if err := e.begin(); err != nil {
		return 0, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(pos.Amount) >= 0 {
		return 0, ErrAmount
	}
	if _, err := e.positions.Remove(positionID, amount); err != nil {
		return 0, err
	}
	newID, err := e.positions.Mint(caller, pos.TID, amount)
	if err != nil {
		return 0, err
	}
	e.emit(events.MarketSplit{TID: pos.TID, Caller: caller, PositionID: positionID, NewPositionID: newID, Amount: amount})
	e.observeOp("split")
	return newID, nil
}

// cashChecks validates the settle amount against the position and resolves
// the current supply.
func (e *Engine) cashChecks(tid string, posAmount, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(posAmount) > 0 {
		return nil, ErrTokenAmount
	}
	supply, err := e.tokens.TotalSupply(tid)
	if err != nil {
		return nil, err
	}
	if supply.Cmp(amount) < 0 {
		return nil, ErrTokenAmount
	}
	return supply, nil
}

// closeCollateral burns the settled collateral out of the vault and shrinks
// the position, burning the record when it reaches zero.
func (e *Engine) closeCollateral(tid string, positionID uint64, amount *big.Int) error {
	if err := e.tokens.Burn(tid, e.vault, amount); err != nil {
		return err
	}
	_, err := e.positions.Remove(positionID, amount)
	return err
}

func (e *Engine) payCashFees(tid string, quote cashQuote) error {
	if err := e.payShareFee(tid, FeeKindNFTOwnerSell, quote.nftFee); err != nil {
		return err
	}
	return e.payFixedFee(tid, FeeKindAppOwnerSell, e.policy.AppOwnerRecipient, quote.appFee)
}
