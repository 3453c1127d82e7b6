package market

import (
	"errors"
	"fmt"
	"math/big"
)

// FeeDenominator is the fixed denominator for all fee rates. A rate of 1_000
// therefore charges 1%.
const FeeDenominator = 100_000

var feeDenominator = big.NewInt(FeeDenominator)

var zeroAddress [20]byte

// Fee kinds reported on fee events and metrics.
const (
	FeeKindAppOwnerBuy      = "app_owner_buy"
	FeeKindAppOwnerSell     = "app_owner_sell"
	FeeKindAppOwnerMortgage = "app_owner_mortgage"
	FeeKindNFTOwnerBuy      = "nft_owner_buy"
	FeeKindNFTOwnerSell     = "nft_owner_sell"
	FeeKindPlatformMortgage = "platform_mortgage"
)

// FeePolicy fixes the market's fee rates and recipients at construction time.
// All rates are parts of FeeDenominator and are charged on the curve valuation
// of the operation they apply to: buy fees are added on top of the buyer's
// cost, sell and mortgage fees are deducted from the payout.
type FeePolicy struct {
	AppOwnerBuyFee      uint64
	AppOwnerSellFee     uint64
	AppOwnerMortgageFee uint64
	NFTOwnerBuyFee      uint64
	NFTOwnerSellFee     uint64
	PlatformMortgageFee uint64

	// AppOwnerRecipient receives all app-owner fees. PlatformRecipient
	// receives the platform mortgage fee. NFT-owner fees fan out through the
	// per-token fee share table instead.
	AppOwnerRecipient [20]byte
	PlatformRecipient [20]byte
}

var (
	ErrFeeRate = errors.New("market engine: fee rate exceeds denominator")
)

// Validate checks the policy is internally consistent: no rate exceeds the
// denominator, sell-side deductions cannot exceed the proceeds they are taken
// from, and every non-zero fixed-recipient fee names a recipient.
func (p FeePolicy) Validate() error {
	rates := map[string]uint64{
		FeeKindAppOwnerBuy:      p.AppOwnerBuyFee,
		FeeKindAppOwnerSell:     p.AppOwnerSellFee,
		FeeKindAppOwnerMortgage: p.AppOwnerMortgageFee,
		FeeKindNFTOwnerBuy:      p.NFTOwnerBuyFee,
		FeeKindNFTOwnerSell:     p.NFTOwnerSellFee,
		FeeKindPlatformMortgage: p.PlatformMortgageFee,
	}
	for kind, rate := range rates {
		if rate > FeeDenominator {
			return fmt.Errorf("%w: %s", ErrFeeRate, kind)
		}
	}
	if p.AppOwnerSellFee+p.NFTOwnerSellFee > FeeDenominator {
		return fmt.Errorf("%w: combined sell fees", ErrFeeRate)
	}
	if p.AppOwnerMortgageFee+p.PlatformMortgageFee > FeeDenominator {
		return fmt.Errorf("%w: combined mortgage fees", ErrFeeRate)
	}
	appFees := p.AppOwnerBuyFee + p.AppOwnerSellFee + p.AppOwnerMortgageFee
	if appFees > 0 && p.AppOwnerRecipient == zeroAddress {
		return fmt.Errorf("%w: app owner", ErrFeeRecipient)
	}
	if p.PlatformMortgageFee > 0 && p.PlatformRecipient == zeroAddress {
		return fmt.Errorf("%w: platform", ErrFeeRecipient)
	}
	return nil
}

// feeAmount computes rate/FeeDenominator of base, rounded down. Rounding down
// keeps every fee at most its nominal share, so a sell payout can never go
// negative from rounding alone.
func feeAmount(base *big.Int, rate uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || rate == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(base, new(big.Int).SetUint64(rate))
	return fee.Quo(fee, feeDenominator)
}
