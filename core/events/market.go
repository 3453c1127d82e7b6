package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"curvemarket/core/types"
)

const (
	// TypeMarketTokenCreated is emitted when a market issues a new topic token.
	TypeMarketTokenCreated = "market.token_created"
	// TypeMarketBuy is emitted whenever tokens are minted against the curve.
	TypeMarketBuy = "market.buy"
	// TypeMarketSell is emitted whenever tokens are burned back into the curve.
	TypeMarketSell = "market.sell"
	// TypeMarketMortgage is emitted when collateral is locked into a position.
	TypeMarketMortgage = "market.mortgage"
	// TypeMarketMultiply is emitted when a leveraged position is opened or grown.
	TypeMarketMultiply = "market.multiply"
	// TypeMarketRedeem is emitted when collateral is bought back out of a position.
	TypeMarketRedeem = "market.redeem"
	// TypeMarketCash is emitted when a position is settled at market price.
	TypeMarketCash = "market.cash"
	// TypeMarketForceCash is emitted when a position is force-closed.
	TypeMarketForceCash = "market.force_cash"
	// TypeMarketSplit is emitted when collateral is carved into a new position.
	TypeMarketSplit = "market.split"
	// TypeMarketFeePaid is emitted for every fee transfer routed by the engine.
	TypeMarketFeePaid = "market.fee_paid"
)

func addrString(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return "0x" + hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type MarketTokenCreated struct {
	TID        string
	ShareCount int
}

func (MarketTokenCreated) EventType() string { return TypeMarketTokenCreated }

func (e MarketTokenCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketTokenCreated,
		Attributes: map[string]string{
			"tid":        strings.TrimSpace(e.TID),
			"shareCount": strconv.Itoa(e.ShareCount),
		},
	}
}

type MarketBuy struct {
	TID      string
	Buyer    [20]byte
	Amount   *big.Int
	PayTotal *big.Int
}

func (MarketBuy) EventType() string { return TypeMarketBuy }

func (e MarketBuy) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketBuy,
		Attributes: map[string]string{
			"tid":      strings.TrimSpace(e.TID),
			"buyer":    addrString(e.Buyer),
			"amount":   amountString(e.Amount),
			"payTotal": amountString(e.PayTotal),
		},
	}
}

type MarketSell struct {
	TID    string
	Seller [20]byte
	Amount *big.Int
	Payout *big.Int
}

func (MarketSell) EventType() string { return TypeMarketSell }

func (e MarketSell) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketSell,
		Attributes: map[string]string{
			"tid":    strings.TrimSpace(e.TID),
			"seller": addrString(e.Seller),
			"amount": amountString(e.Amount),
			"payout": amountString(e.Payout),
		},
	}
}

type MarketMortgage struct {
	TID        string
	Owner      [20]byte
	PositionID uint64
	Amount     *big.Int
	Payout     *big.Int
}

func (MarketMortgage) EventType() string { return TypeMarketMortgage }

func (e MarketMortgage) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketMortgage,
		Attributes: map[string]string{
			"tid":        strings.TrimSpace(e.TID),
			"owner":      addrString(e.Owner),
			"positionId": strconv.FormatUint(e.PositionID, 10),
			"amount":     amountString(e.Amount),
			"payout":     amountString(e.Payout),
		},
	}
}

type MarketMultiply struct {
	TID        string
	Owner      [20]byte
	PositionID uint64
	Amount     *big.Int
	PayTotal   *big.Int
}

func (MarketMultiply) EventType() string { return TypeMarketMultiply }

func (e MarketMultiply) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketMultiply,
		Attributes: map[string]string{
			"tid":        strings.TrimSpace(e.TID),
			"owner":      addrString(e.Owner),
			"positionId": strconv.FormatUint(e.PositionID, 10),
			"amount":     amountString(e.Amount),
			"payTotal":   amountString(e.PayTotal),
		},
	}
}

type MarketRedeem struct {
	TID        string
	Caller     [20]byte
	PositionID uint64
	Amount     *big.Int
	PayCost    *big.Int
}

func (MarketRedeem) EventType() string { return TypeMarketRedeem }

func (e MarketRedeem) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketRedeem,
		Attributes: map[string]string{
			"tid":        strings.TrimSpace(e.TID),
			"caller":     addrString(e.Caller),
			"positionId": strconv.FormatUint(e.PositionID, 10),
			"amount":     amountString(e.Amount),
			"payCost":    amountString(e.PayCost),
		},
	}
}

type MarketCash struct {
	TID        string
	Caller     [20]byte
	PositionID uint64
	Amount     *big.Int
	Payout     *big.Int
	Forced     bool
	UserProfit bool
}

func (e MarketCash) EventType() string {
	if e.Forced {
		return TypeMarketForceCash
	}
	return TypeMarketCash
}

func (e MarketCash) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"tid":        strings.TrimSpace(e.TID),
			"caller":     addrString(e.Caller),
			"positionId": strconv.FormatUint(e.PositionID, 10),
			"amount":     amountString(e.Amount),
			"payout":     amountString(e.Payout),
			"userProfit": strconv.FormatBool(e.UserProfit),
		},
	}
}

type MarketSplit struct {
	TID           string
	Caller        [20]byte
	PositionID    uint64
	NewPositionID uint64
	Amount        *big.Int
}

func (MarketSplit) EventType() string { return TypeMarketSplit }

func (e MarketSplit) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketSplit,
		Attributes: map[string]string{
			"tid":           strings.TrimSpace(e.TID),
			"caller":        addrString(e.Caller),
			"positionId":    strconv.FormatUint(e.PositionID, 10),
			"newPositionId": strconv.FormatUint(e.NewPositionID, 10),
			"amount":        amountString(e.Amount),
		},
	}
}

type MarketFeePaid struct {
	TID       string
	Kind      string
	Recipient [20]byte
	Amount    *big.Int
}

func (MarketFeePaid) EventType() string { return TypeMarketFeePaid }

func (e MarketFeePaid) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketFeePaid,
		Attributes: map[string]string{
			"tid":       strings.TrimSpace(e.TID),
			"kind":      strings.TrimSpace(e.Kind),
			"recipient": addrString(e.Recipient),
			"amount":    amountString(e.Amount),
		},
	}
}
