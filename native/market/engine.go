package market

import (
	"fmt"
	"math/big"

	"curvemarket/core/events"
	"curvemarket/native/common"
	"curvemarket/native/curve"
	"curvemarket/native/feeshare"
	"curvemarket/native/paytoken"
	"curvemarket/native/position"
	"curvemarket/native/token"
)

const moduleName = "market"

// TokenLedger is the fungible topic-token collaborator. Mint, Burn and
// Transfer are reserved for the engine; the market vault address holds the
// collateral backing every open position.
type TokenLedger interface {
	Create(tid string) (*token.Metadata, error)
	Exists(tid string) (bool, error)
	TotalSupply(tid string) (*big.Int, error)
	BalanceOf(tid string, addr [20]byte) (*big.Int, error)
	Mint(tid string, to [20]byte, amount *big.Int) error
	Burn(tid string, from [20]byte, amount *big.Int) error
	Transfer(tid string, from, to [20]byte, amount *big.Int) error
}

// PositionBook is the collateral-position collaborator.
type PositionBook interface {
	Mint(owner [20]byte, tid string, amount *big.Int) (uint64, error)
	Get(id uint64) (*position.Position, bool, error)
	Add(id uint64, amount *big.Int) error
	Remove(id uint64, amount *big.Int) (*big.Int, error)
	Approve(caller [20]byte, id uint64, operator [20]byte) error
	IsApprovedOrOwner(operator [20]byte, id uint64) (bool, error)
	PositionsOf(owner [20]byte) ([]uint64, error)
}

// FeeShares resolves the per-tid NFT-owner fee fan-out lists.
type FeeShares interface {
	Create(tid string, entries []feeshare.Entry) error
	Shares(tid string) ([]feeshare.Entry, error)
}

// Metrics receives operation and fee observations. A nil recorder disables
// instrumentation.
type Metrics interface {
	ObserveOp(op string)
	ObserveFee(kind string, amount *big.Int)
}

// Engine prices topic tokens on a bonding curve and settles every trade,
// mortgage and position operation against the market vault. The curve, fee
// policy and pay token are fixed at construction; ledgers and ambient
// collaborators are wired through setters before first use.
//
// Every operation follows the same settlement order: checks, payment
// collection, internal state mutation, outbound transfers, events. State is
// never mutated before the caller's payment is secured.
type Engine struct {
	curve  curve.PriceCurve
	policy FeePolicy
	pay    paytoken.PayToken
	vault  [20]byte

	tokens    TokenLedger
	positions PositionBook
	shares    FeeShares

	emitter events.Emitter
	pauses  common.PauseView
	metrics Metrics
	settle  common.SettleGuard
}

// NewEngine constructs a market over the given curve, fee policy and pay
// token. The vault address holds collected payments and locked collateral.
func NewEngine(priceCurve curve.PriceCurve, policy FeePolicy, pay paytoken.PayToken, vault [20]byte) (*Engine, error) {
	if priceCurve == nil {
		return nil, fmt.Errorf("market engine: price curve required")
	}
	if pay == nil {
		return nil, fmt.Errorf("market engine: pay token required")
	}
	if vault == zeroAddress {
		return nil, fmt.Errorf("market engine: vault address required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{curve: priceCurve, policy: policy, pay: pay, vault: vault, emitter: events.NoopEmitter{}}, nil
}

// SetLedgers wires the token, position and fee-share collaborators.
func (e *Engine) SetLedgers(tokens TokenLedger, positions PositionBook, shares FeeShares) {
	if e == nil {
		return
	}
	e.tokens = tokens
	e.positions = positions
	e.shares = shares
}

// SetEmitter wires the event emitter used for settlement telemetry.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted before every operation.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetMetrics wires the metrics recorder.
func (e *Engine) SetMetrics(m Metrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// Vault returns the market vault address.
func (e *Engine) Vault() [20]byte {
	if e == nil {
		return zeroAddress
	}
	return e.vault
}

// Policy returns a copy of the fee policy.
func (e *Engine) Policy() FeePolicy {
	if e == nil {
		return FeePolicy{}
	}
	return e.policy
}

func (e *Engine) ready() error {
	if e == nil || e.curve == nil || e.pay == nil || e.tokens == nil || e.positions == nil || e.shares == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) begin() error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.settle.Enter()
}

func (e *Engine) emit(event events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func (e *Engine) observeOp(op string) {
	if e.metrics != nil {
		e.metrics.ObserveOp(op)
	}
}

// cost prices delta tokens on top of base supply, mapping curve domain and
// overflow failures onto ErrAmount.
func (e *Engine) cost(base, delta *big.Int) (*big.Int, error) {
	amount, err := e.curve.Cost(base, delta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmount, err)
	}
	return amount, nil
}

// collect secures the caller's payment before any state is mutated. On the
// native pay token the attached value must cover the requirement and is moved
// to the vault in full; the excess is refunded after settlement. On
// allowance-gated tokens no value may be attached and the requirement is
// pulled via TransferFrom with the vault acting as spender.
func (e *Engine) collect(payer [20]byte, value, required *big.Int) error {
	if e.pay.Native() {
		attached := big.NewInt(0)
		if value != nil {
			attached = value
		}
		if attached.Sign() < 0 || attached.Cmp(required) < 0 {
			return ErrValue
		}
		return e.pay.Transfer(payer, e.vault, attached)
	}
	if value != nil && value.Sign() != 0 {
		return ErrValue
	}
	if required.Sign() > 0 {
		return e.pay.TransferFrom(e.vault, payer, e.vault, required)
	}
	return nil
}

// refundExcess returns the unspent part of an attached native value. It is a
// no-op for allowance-gated pay tokens, where collect pulls the exact amount.
func (e *Engine) refundExcess(payer [20]byte, value, required *big.Int) error {
	if !e.pay.Native() || value == nil {
		return nil
	}
	excess := new(big.Int).Sub(value, required)
	if excess.Sign() <= 0 {
		return nil
	}
	return e.pay.Transfer(e.vault, payer, excess)
}

// payFixedFee routes a fee from the vault to a fixed recipient.
func (e *Engine) payFixedFee(tid, kind string, recipient [20]byte, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if recipient == zeroAddress {
		return fmt.Errorf("%w: %s", ErrFeeRecipient, kind)
	}
	if err := e.pay.Transfer(e.vault, recipient, amount); err != nil {
		return err
	}
	e.emit(events.MarketFeePaid{TID: tid, Kind: kind, Recipient: recipient, Amount: amount})
	if e.metrics != nil {
		e.metrics.ObserveFee(kind, amount)
	}
	return nil
}

// payShareFee fans the NFT-owner fee out across the tid's share list.
func (e *Engine) payShareFee(tid, kind string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	entries, err := e.shares.Shares(tid)
	if err != nil {
		return err
	}
	split, err := feeshare.SplitFee(entries, amount)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		if split[i].Sign() <= 0 {
			continue
		}
		if err := e.pay.Transfer(e.vault, entry.Owner, split[i]); err != nil {
			return err
		}
		e.emit(events.MarketFeePaid{TID: tid, Kind: kind, Recipient: entry.Owner, Amount: split[i]})
	}
	if e.metrics != nil {
		e.metrics.ObserveFee(kind, amount)
	}
	return nil
}

// CreateToken registers a new topic token together with its immutable
// NFT-owner fee-share list. The share list is validated before the token is
// created so a rejected list leaves no state behind.
func (e *Engine) CreateToken(tid string, sharesList []feeshare.Entry) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.settle.Exit()

	tid = token.NormalizeTID(tid)
	if err := feeshare.ValidateEntries(sharesList); err != nil {
		return err
	}
	if _, err := e.tokens.Create(tid); err != nil {
		return err
	}
	if err := e.shares.Create(tid, sharesList); err != nil {
		return err
	}
	e.emit(events.MarketTokenCreated{TID: tid, ShareCount: len(sharesList)})
	e.observeOp("create_token")
	return nil
}

// Buy mints amount tokens to the buyer against the curve. The buyer pays the
// curve cost plus the buy-side fees; with the native pay token the attached
// value must cover the total and the excess is refunded. The total charge is
// returned.
func (e *Engine) Buy(buyer [20]byte, tid string, amount, value *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	tid = token.NormalizeTID(tid)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmount
	}
	if err := e.requireToken(tid); err != nil {
		return nil, err
	}
	supply, err := e.tokens.TotalSupply(tid)
	if err != nil {
		return nil, err
	}
	cost, err := e.cost(supply, amount)
	if err != nil {
		return nil, err
	}
	appFee := feeAmount(cost, e.policy.AppOwnerBuyFee)
	nftFee := feeAmount(cost, e.policy.NFTOwnerBuyFee)
	required := new(big.Int).Add(cost, appFee)
	required.Add(required, nftFee)

	if err := e.collect(buyer, value, required); err != nil {
		return nil, err
	}
	if err := e.tokens.Mint(tid, buyer, amount); err != nil {
		return nil, err
	}
	if err := e.payFixedFee(tid, FeeKindAppOwnerBuy, e.policy.AppOwnerRecipient, appFee); err != nil {
		return nil, err
	}
	if err := e.payShareFee(tid, FeeKindNFTOwnerBuy, nftFee); err != nil {
		return nil, err
	}
	if err := e.refundExcess(buyer, value, required); err != nil {
		return nil, err
	}
	e.emit(events.MarketBuy{TID: tid, Buyer: buyer, Amount: amount, PayTotal: required})
	e.observeOp("buy")
	return required, nil
}

// Sell burns amount tokens from the seller's free balance and pays out the
// curve proceeds minus the sell-side fees. The net payout is returned.
func (e *Engine) Sell(seller [20]byte, tid string, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.settle.Exit()

	tid = token.NormalizeTID(tid)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmount
	}
	if err := e.requireToken(tid); err != nil {
		return nil, err
	}
	supply, err := e.tokens.TotalSupply(tid)
	if err != nil {
		return nil, err
	}
	if supply.Cmp(amount) < 0 {
		return nil, ErrAmount
	}
	balance, err := e.tokens.BalanceOf(tid, seller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrAmount
	}
	proceeds, err := e.cost(new(big.Int).Sub(supply, amount), amount)
	if err != nil {
		return nil, err
	}
	appFee := feeAmount(proceeds, e.policy.AppOwnerSellFee)
	nftFee := feeAmount(proceeds, e.policy.NFTOwnerSellFee)
	payout := new(big.Int).Sub(proceeds, appFee)
	payout.Sub(payout, nftFee)

	if err := e.tokens.Burn(tid, seller, amount); err != nil {
		return nil, err
	}
	if err := e.payFixedFee(tid, FeeKindAppOwnerSell, e.policy.AppOwnerRecipient, appFee); err != nil {
		return nil, err
	}
	if err := e.payShareFee(tid, FeeKindNFTOwnerSell, nftFee); err != nil {
		return nil, err
	}
	if err := e.pay.Transfer(e.vault, seller, payout); err != nil {
		return nil, err
	}
	e.emit(events.MarketSell{TID: tid, Seller: seller, Amount: amount, Payout: payout})
	e.observeOp("sell")
	return payout, nil
}

func (e *Engine) requireToken(tid string) error {
	exists, err := e.tokens.Exists(tid)
	if err != nil {
		return err
	}
	if !exists {
		return ErrTokenUnknown
	}
	return nil
}
