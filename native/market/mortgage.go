package market

import (
	"math/big"

	"curvemarket/core/events"
	"curvemarket/native/position"
	"curvemarket/native/token"
)

// MortgageNew locks amount tokens from the owner's free balance into a fresh
// position and advances the curve value of the collateral, minus the mortgage
// fees, as a payout. The new position id and the net payout are returned.
//
// The collateral is valued from the position's own base, which starts at
// zero: payout = curve(0, amount). Growing the same position later continues
// from that running base, so locking in two steps always pays the same as
// locking once.
func (e *Engine) MortgageNew(owner [20]byte, tid string, amount *big.Int) (uint64, *big.Int, error) {
	if err := e.begin(); err != nil {
		return 0, nil, err
	}
	defer e.settle.Exit()

	tid = token.NormalizeTID(tid)
	if amount == nil || amount.Sign() <= 0 {
		return 0, nil, ErrAmount
	}
	if err := e.requireToken(tid); err != nil {
		return 0, nil, err
	}
	payout, platFee, appFee, err := e.mortgageValue(big.NewInt(0), amount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.lockCollateral(tid, owner, amount); err != nil {
		return 0, nil, err
	}
	id, err := e.positions.Mint(owner, tid, amount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.settleMortgage(tid, owner, payout, platFee, appFee); err != nil {
		return 0, nil, err
	}
	e.emit(events.MarketMortgage{TID: tid, Owner: owner, PositionID: id, Amount: amount, Payout: payout})
	e.observeOp("mortgage_new")
	return id, payout, nil
}

// MortgageAdd locks amount tokens from the caller's free balance into an
// existing position. The caller must own or be approved on the position; the
// collateral is valued on top of the position's running base.
func (e *Engine) MortgageAdd(caller [20]byte, positionID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmount
	}
	payout, platFee, appFee, err := e.mortgageValue(pos.Amount, amount)
	if err != nil {
		return nil, err
	}
	if err := e.lockCollateral(pos.TID, caller, amount); err != nil {
		return nil, err
	}
	if err := e.positions.Add(positionID, amount); err != nil {
		return nil, err
	}
	if err := e.settleMortgage(pos.TID, caller, payout, platFee, appFee); err != nil {
		return nil, err
	}
	e.emit(events.MarketMortgage{TID: pos.TID, Owner: caller, PositionID: positionID, Amount: amount, Payout: payout})
	e.observeOp("mortgage_add")
	return payout, nil
}

// MultiplyNew opens a leveraged position in one settlement: the engine buys
// amount tokens straight into the vault and immediately mortgages them into a
// fresh position owned by the caller. The caller pays only the difference
// between the buy total and the mortgage payout, plus the fees of both legs.
//
// At zero supply with zero fees the two legs cancel exactly and the position
// costs nothing to open.
func (e *Engine) MultiplyNew(owner [20]byte, tid string, amount, value *big.Int) (uint64, *big.Int, error) {
	if err := e.begin(); err != nil {
		return 0, nil, err
	}
	defer e.settle.Exit()

	tid = token.NormalizeTID(tid)
	if amount == nil || amount.Sign() <= 0 {
		return 0, nil, ErrAmount
	}
	if err := e.requireToken(tid); err != nil {
		return 0, nil, err
	}
	required, fees, err := e.multiplyQuote(tid, big.NewInt(0), amount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.collect(owner, value, required); err != nil {
		return 0, nil, err
	}
	if err := e.tokens.Mint(tid, e.vault, amount); err != nil {
		return 0, nil, err
	}
	id, err := e.positions.Mint(owner, tid, amount)
	if err != nil {
		return 0, nil, err
	}
	if err := e.payMultiplyFees(tid, fees); err != nil {
		return 0, nil, err
	}
	if err := e.refundExcess(owner, value, required); err != nil {
		return 0, nil, err
	}
	e.emit(events.MarketMultiply{TID: tid, Owner: owner, PositionID: id, Amount: amount, PayTotal: required})
	e.observeOp("multiply_new")
	return id, required, nil
}

// MultiplyAdd grows an existing leveraged position the same way MultiplyNew
// opens one. The caller must own or be approved on the position.
func (e *Engine) MultiplyAdd(caller [20]byte, positionID uint64, amount, value *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmount
	}
	required, fees, err := e.multiplyQuote(pos.TID, pos.Amount, amount)
	if err != nil {
		return nil, err
	}
	if err := e.collect(caller, value, required); err != nil {
		return nil, err
	}
	if err := e.tokens.Mint(pos.TID, e.vault, amount); err != nil {
		return nil, err
	}
	if err := e.positions.Add(positionID, amount); err != nil {
		return nil, err
	}
	if err := e.payMultiplyFees(pos.TID, fees); err != nil {
		return nil, err
	}
	if err := e.refundExcess(caller, value, required); err != nil {
		return nil, err
	}
	e.emit(events.MarketMultiply{TID: pos.TID, Owner: caller, PositionID: positionID, Amount: amount, PayTotal: required})
	e.observeOp("multiply_add")
	return required, nil
}

// Redeem buys collateral back out of a position: the caller pays the current
// curve price for amount tokens and the tokens move from the vault into the
// position owner's free balance. No fees apply. The pay cost is returned.
func (e *Engine) Redeem(caller [20]byte, positionID uint64, amount, value *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	pos, err := e.authorizedPosition(caller, positionID)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(pos.Amount) > 0 {
		return nil, ErrAmount
	}
	supply, err := e.tokens.TotalSupply(pos.TID)
	if err != nil {
		return nil, err
	}
	if supply.Cmp(amount) < 0 {
		return nil, ErrAmount
	}
	cost, err := e.cost(new(big.Int).Sub(supply, amount), amount)
	if err != nil {
		return nil, err
	}
	if err := e.collect(caller, value, cost); err != nil {
		return nil, err
	}
	if _, err := e.positions.Remove(positionID, amount); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(pos.TID, e.vault, pos.Owner, amount); err != nil {
		return nil, err
	}
	if err := e.refundExcess(caller, value, cost); err != nil {
		return nil, err
	}
	e.emit(events.MarketRedeem{TID: pos.TID, Caller: caller, PositionID: positionID, Amount: amount, PayCost: cost})
	e.observeOp("redeem")
	return cost, nil
}

// multiplyFees carries the four fee legs of a multiply settlement.
type multiplyFees struct {
	buyApp   *big.Int
	buyNFT   *big.Int
	mortPlat *big.Int
	mortApp  *big.Int
}

// multiplyQuote prices one multiply leg pair: a buy on top of the current
// supply and a mortgage on top of the position base. The net requirement is
// buyCost + buy fees + mortgage fees - mortgage payout; the buy cost never
// undercuts the mortgage payout because the supply already includes the
// position's collateral.
func (e *Engine) multiplyQuote(tid string, positionBase, amount *big.Int) (*big.Int, multiplyFees, error) {
	supply, err := e.tokens.TotalSupply(tid)
	if err != nil {
		return nil, multiplyFees{}, err
	}
	buyCost, err := e.cost(supply, amount)
	if err != nil {
		return nil, multiplyFees{}, err
	}
	mortPayout, err := e.cost(positionBase, amount)
	if err != nil {
		return nil, multiplyFees{}, err
	}
	fees := multiplyFees{
		buyApp:   feeAmount(buyCost, e.policy.AppOwnerBuyFee),
		buyNFT:   feeAmount(buyCost, e.policy.NFTOwnerBuyFee),
		mortPlat: feeAmount(mortPayout, e.policy.PlatformMortgageFee),
		mortApp:  feeAmount(mortPayout, e.policy.AppOwnerMortgageFee),
	}
	required := new(big.Int).Add(buyCost, fees.buyApp)
	required.Add(required, fees.buyNFT)
	required.Add(required, fees.mortPlat)
	required.Add(required, fees.mortApp)
	required.Sub(required, mortPayout)
	if required.Sign() < 0 {
		required.SetInt64(0)
	}
	return required, fees, nil
}

func (e *Engine) payMultiplyFees(tid string, fees multiplyFees) error {
	if err := e.payFixedFee(tid, FeeKindAppOwnerBuy, e.policy.AppOwnerRecipient, fees.buyApp); err != nil {
		return err
	}
	if err := e.payShareFee(tid, FeeKindNFTOwnerBuy, fees.buyNFT); err != nil {
		return err
	}
	if err := e.payFixedFee(tid, FeeKindPlatformMortgage, e.policy.PlatformRecipient, fees.mortPlat); err != nil {
		return err
	}
	return e.payFixedFee(tid, FeeKindAppOwnerMortgage, e.policy.AppOwnerRecipient, fees.mortApp)
}

// mortgageValue prices amount collateral on top of the position base and
// splits off the mortgage fees. The net payout and both fee legs are
// returned.
func (e *Engine) mortgageValue(positionBase, amount *big.Int) (payout, platFee, appFee *big.Int, err error) {
	gross, err := e.cost(positionBase, amount)
	if err != nil {
		return nil, nil, nil, err
	}
	platFee = feeAmount(gross, e.policy.PlatformMortgageFee)
	appFee = feeAmount(gross, e.policy.AppOwnerMortgageFee)
	payout = new(big.Int).Sub(gross, platFee)
	payout.Sub(payout, appFee)
	return payout, platFee, appFee, nil
}

// lockCollateral moves amount tokens from the holder's free balance into the
// vault, surfacing shortfalls as ErrAmount.
func (e *Engine) lockCollateral(tid string, holder [20]byte, amount *big.Int) error {
	balance, err := e.tokens.BalanceOf(tid, holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrAmount
	}
	return e.tokens.Transfer(tid, holder, e.vault, amount)
}

// settleMortgage pays the mortgage fees and the net payout out of the vault.
func (e *Engine) settleMortgage(tid string, recipient [20]byte, payout, platFee, appFee *big.Int) error {
	if err := e.payFixedFee(tid, FeeKindPlatformMortgage, e.policy.PlatformRecipient, platFee); err != nil {
		return err
	}
	if err := e.payFixedFee(tid, FeeKindAppOwnerMortgage, e.policy.AppOwnerRecipient, appFee); err != nil {
		return err
	}
	return e.pay.Transfer(e.vault, recipient, payout)
}

// authorizedPosition loads the position and enforces owner-or-approved
// access for the caller.
func (e *Engine) authorizedPosition(caller [20]byte, positionID uint64) (*position.Position, error) {
	pos, ok, err := e.positions.Get(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, position.ErrNotFound
	}
	allowed, err := e.positions.IsApprovedOrOwner(caller, positionID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrAccessOwner
	}
	return pos, nil
}
