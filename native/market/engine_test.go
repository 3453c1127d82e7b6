package market

import (
	"errors"
	"math/big"
	"testing"

	"curvemarket/core/events"
	"curvemarket/native/common"
	"curvemarket/native/curve"
	"curvemarket/native/feeshare"
	"curvemarket/native/paytoken"
	"curvemarket/native/position"
	"curvemarket/native/token"
	"curvemarket/state"
	"curvemarket/storage"
)

const testTID = "topic-1"

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

var (
	vaultAddr = addr(0xEE)
	appOwner  = addr(0xA0)
	platform  = addr(0xB0)
	shareOne  = addr(0xC1)
	shareTwo  = addr(0xC2)
)

type captureEmitter struct {
	seen []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) { c.seen = append(c.seen, ev) }

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

type harness struct {
	engine    *Engine
	tokens    *token.Ledger
	positions *position.Registry
	accounts  *paytoken.StoreAccounts
	pay       paytoken.PayToken
	emitter   *captureEmitter
	pauses    pauseMap
}

func zeroFees() FeePolicy { return FeePolicy{} }

// tradeFees charges 10% app and 5% nft on both trade sides, plus 2%/3%
// mortgage fees.
func tradeFees() FeePolicy {
	return FeePolicy{
		AppOwnerBuyFee:      10_000,
		NFTOwnerBuyFee:      5_000,
		AppOwnerSellFee:     10_000,
		NFTOwnerSellFee:     5_000,
		AppOwnerMortgageFee: 2_000,
		PlatformMortgageFee: 3_000,
		AppOwnerRecipient:   appOwner,
		PlatformRecipient:   platform,
	}
}

func defaultShares() []feeshare.Entry {
	return []feeshare.Entry{
		{Owner: shareOne, Percent: 10_000},
		{Owner: shareTwo, Percent: 90_000},
	}
}

// newHarness builds an engine over the quadratic curve F(s) = s^2 and a
// native pay token, with the test topic already created. Round numbers fall
// out of that curve: buying delta at base costs (base+delta)^2 - base^2.
func newHarness(t *testing.T, policy FeePolicy) *harness {
	t.Helper()
	store := state.NewKVStore(storage.NewMemDB())
	accounts := paytoken.NewStoreAccounts(store)
	return buildHarness(t, policy, paytoken.NewNative(accounts), store, accounts)
}

func buildHarness(t *testing.T, policy FeePolicy, pay paytoken.PayToken, store *state.KVStore, accounts *paytoken.StoreAccounts) *harness {
	t.Helper()
	quad, err := curve.NewQuadratic(big.NewInt(1), big.NewInt(1))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	engine, err := NewEngine(quad, policy, pay, vaultAddr)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	h := &harness{
		engine:    engine,
		tokens:    token.NewLedger(store),
		positions: position.NewRegistry(store),
		accounts:  accounts,
		pay:       pay,
		emitter:   &captureEmitter{},
		pauses:    pauseMap{},
	}
	engine.SetLedgers(h.tokens, h.positions, feeshare.NewRegistry(store))
	engine.SetEmitter(h.emitter)
	engine.SetPauses(h.pauses)
	if err := engine.CreateToken(testTID, defaultShares()); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return h
}

func (h *harness) fund(t *testing.T, owner [20]byte, amount int64) {
	t.Helper()
	acc, err := h.accounts.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Balance = new(big.Int).Add(acc.Balance, big.NewInt(amount))
	if err := h.accounts.PutAccount(owner, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func (h *harness) payBalance(t *testing.T, owner [20]byte) *big.Int {
	t.Helper()
	balance, err := h.pay.BalanceOf(owner)
	if err != nil {
		t.Fatalf("pay balance: %v", err)
	}
	return balance
}

func (h *harness) tokenBalance(t *testing.T, owner [20]byte) *big.Int {
	t.Helper()
	balance, err := h.tokens.BalanceOf(testTID, owner)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return balance
}

func (h *harness) supply(t *testing.T) *big.Int {
	t.Helper()
	supply, err := h.tokens.TotalSupply(testTID)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	return supply
}

func wantAmount(t *testing.T, got *big.Int, want int64, label string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: expected %d, got %s", label, want, got)
	}
}

func TestCreateTokenValidatesShares(t *testing.T) {
	h := newHarness(t, zeroFees())

	bad := []feeshare.Entry{{Owner: shareOne, Percent: 50_000}}
	if err := h.engine.CreateToken("topic-2", bad); !errors.Is(err, feeshare.ErrPercentSum) {
		t.Fatalf("expected ErrPercentSum, got %v", err)
	}
	exists, err := h.tokens.Exists("topic-2")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("rejected share list must not create the token")
	}

	if err := h.engine.CreateToken(testTID, defaultShares()); !errors.Is(err, token.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestBuySellRoundTripConservesValue(t *testing.T) {
	h := newHarness(t, zeroFees())
	buyer := addr(1)
	h.fund(t, buyer, 10_000)

	total, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(100))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	wantAmount(t, total, 100, "first buy total")
	wantAmount(t, h.tokenBalance(t, buyer), 10, "buyer tokens")
	wantAmount(t, h.supply(t), 10, "supply")
	wantAmount(t, h.payBalance(t, vaultAddr), 100, "vault pay")
	wantAmount(t, h.payBalance(t, buyer), 9_900, "buyer pay")

	// Second buy prices on top of the grown supply; the excess value comes
	// straight back.
	total, err = h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(350))
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	wantAmount(t, total, 300, "second buy total")
	wantAmount(t, h.payBalance(t, buyer), 9_600, "buyer pay after refund")

	payout, err := h.engine.Sell(buyer, testTID, big.NewInt(20))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	wantAmount(t, payout, 400, "sell payout")
	wantAmount(t, h.supply(t), 0, "supply drained")
	wantAmount(t, h.payBalance(t, buyer), 10_000, "buyer made whole")
	wantAmount(t, h.payBalance(t, vaultAddr), 0, "vault drained")
}

func TestBuyFeeRouting(t *testing.T) {
	h := newHarness(t, tradeFees())
	buyer := addr(1)
	h.fund(t, buyer, 1_000)

	// Cost 100, app fee 10, nft fee 5: the 10%/90% share split of 5 floors to
	// 0 and 4, with the dust unit landing on the last entry.
	total, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(115))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	wantAmount(t, total, 115, "buy total")
	wantAmount(t, h.payBalance(t, appOwner), 10, "app owner fee")
	wantAmount(t, h.payBalance(t, shareOne), 0, "first share")
	wantAmount(t, h.payBalance(t, shareTwo), 5, "last share absorbs dust")
	wantAmount(t, h.payBalance(t, vaultAddr), 100, "vault keeps curve cost only")

	var feeEvents int
	for _, ev := range h.emitter.seen {
		if ev.EventType() == events.TypeMarketFeePaid {
			feeEvents++
		}
	}
	if feeEvents != 2 {
		t.Fatalf("expected 2 fee events (zero splits suppressed), got %d", feeEvents)
	}
}

func TestBuyFeeSharesSplitOneToNine(t *testing.T) {
	h := newHarness(t, tradeFees())
	buyer := addr(1)
	h.fund(t, buyer, 2_000_000)

	// Cost 1_000_000, nft fee 50_000: the 10%/90% holders land on exactly
	// 5_000 and 45_000 with no dust.
	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(1_000), big.NewInt(1_150_000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	wantAmount(t, h.tokenBalance(t, buyer), 1_000, "minted balance")
	wantAmount(t, h.supply(t), 1_000, "total supply")
	first := h.payBalance(t, shareOne)
	second := h.payBalance(t, shareTwo)
	wantAmount(t, first, 5_000, "10 percent share")
	wantAmount(t, second, 45_000, "90 percent share")
	if new(big.Int).Mul(first, big.NewInt(9)).Cmp(second) != 0 {
		t.Fatalf("share deltas not in ratio 1:9: %s vs %s", first, second)
	}
	wantAmount(t, new(big.Int).Add(first, second), 50_000, "nft fee fully distributed")
}

func TestSellFeesComeOutOfProceeds(t *testing.T) {
	h := newHarness(t, tradeFees())
	buyer := addr(1)
	h.fund(t, buyer, 1_000)

	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(115)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	payout, err := h.engine.Sell(buyer, testTID, big.NewInt(10))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// Proceeds 100 minus 10% app and 5% nft.
	wantAmount(t, payout, 85, "net payout")
	wantAmount(t, h.payBalance(t, appOwner), 20, "app owner fees both sides")
	wantAmount(t, h.supply(t), 0, "supply drained")
}

func TestBuyNeverMintsForFree(t *testing.T) {
	h := newHarness(t, zeroFees())
	buyer := addr(1)
	h.fund(t, buyer, 1_000)

	// Even the very first token on a fresh topic carries a positive charge;
	// a zero attached value must be rejected rather than minting for nothing.
	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(31), nil); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for free mint attempt, got %v", err)
	}
	wantAmount(t, h.supply(t), 0, "no free mint")

	total, err := h.engine.Buy(buyer, testTID, big.NewInt(1), big.NewInt(10))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if total.Sign() <= 0 {
		t.Fatalf("first token must cost a positive amount, got %s", total)
	}
}

func TestBuyRejectsShortValue(t *testing.T) {
	h := newHarness(t, zeroFees())
	buyer := addr(1)
	h.fund(t, buyer, 1_000)

	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(99)); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue, got %v", err)
	}
	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), nil); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for nil value, got %v", err)
	}
	wantAmount(t, h.supply(t), 0, "no mint on rejected buy")
	wantAmount(t, h.payBalance(t, buyer), 1_000, "no charge on rejected buy")
}

func TestSellRejectsOverdraw(t *testing.T) {
	h := newHarness(t, zeroFees())
	seller := addr(1)
	h.fund(t, seller, 1_000)

	if _, err := h.engine.Sell(seller, testTID, big.NewInt(1)); !errors.Is(err, ErrAmount) {
		t.Fatalf("expected ErrAmount, got %v", err)
	}
	if _, err := h.engine.Sell(seller, "missing", big.NewInt(1)); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected ErrTokenUnknown, got %v", err)
	}
	if _, err := h.engine.Buy(seller, testTID, big.NewInt(10), big.NewInt(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := h.engine.Sell(seller, testTID, big.NewInt(11)); !errors.Is(err, ErrAmount) {
		t.Fatalf("expected ErrAmount on overdraw, got %v", err)
	}
}

func TestERC20SettlementPath(t *testing.T) {
	store := state.NewKVStore(storage.NewMemDB())
	erc20 := paytoken.NewERC20(store)
	h := buildHarness(t, zeroFees(), erc20, store, nil)
	buyer := addr(1)
	if err := erc20.Mint(buyer, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Attached value is a native-token concept.
	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(100)); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for attached value, got %v", err)
	}
	// Without an allowance the pull fails before any state changes.
	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), nil); !errors.Is(err, paytoken.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	wantAmount(t, h.supply(t), 0, "no mint without allowance")

	if err := erc20.Approve(buyer, vaultAddr, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	total, err := h.engine.Buy(buyer, testTID, big.NewInt(10), nil)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	wantAmount(t, total, 100, "buy total")
	balance, err := erc20.BalanceOf(vaultAddr)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	wantAmount(t, balance, 100, "vault pulled exactly the cost")
}

func TestPauseGuard(t *testing.T) {
	h := newHarness(t, zeroFees())
	h.pauses[moduleName] = true

	if _, err := h.engine.Buy(addr(1), testTID, big.NewInt(1), big.NewInt(10)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := h.engine.CreateToken("topic-2", defaultShares()); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := h.engine.Approve(addr(1), 1, addr(2)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on approve, got %v", err)
	}
}

type reentrantEmitter struct {
	engine *Engine
	buyer  [20]byte
	err    error
	fired  bool
}

func (r *reentrantEmitter) Emit(events.Event) {
	if r.fired {
		return
	}
	r.fired = true
	_, r.err = r.engine.Buy(r.buyer, testTID, big.NewInt(1), big.NewInt(1_000))
}

func TestReentryGuard(t *testing.T) {
	h := newHarness(t, zeroFees())
	buyer := addr(1)
	h.fund(t, buyer, 10_000)

	hook := &reentrantEmitter{engine: h.engine, buyer: buyer}
	h.engine.SetEmitter(hook)

	if _, err := h.engine.Buy(buyer, testTID, big.NewInt(10), big.NewInt(100)); err != nil {
		t.Fatalf("outer buy: %v", err)
	}
	if !hook.fired {
		t.Fatalf("emitter hook never ran")
	}
	if !errors.Is(hook.err, common.ErrReentry) {
		t.Fatalf("expected ErrReentry from nested call, got %v", hook.err)
	}
}

func TestPolicyValidation(t *testing.T) {
	quad, err := curve.NewQuadratic(big.NewInt(1), big.NewInt(1))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	store := state.NewKVStore(storage.NewMemDB())
	pay := paytoken.NewNative(paytoken.NewStoreAccounts(store))

	over := FeePolicy{AppOwnerBuyFee: FeeDenominator + 1, AppOwnerRecipient: appOwner}
	if _, err := NewEngine(quad, over, pay, vaultAddr); !errors.Is(err, ErrFeeRate) {
		t.Fatalf("expected ErrFeeRate, got %v", err)
	}
	missing := FeePolicy{AppOwnerBuyFee: 1_000}
	if _, err := NewEngine(quad, missing, pay, vaultAddr); !errors.Is(err, ErrFeeRecipient) {
		t.Fatalf("expected ErrFeeRecipient, got %v", err)
	}
}
