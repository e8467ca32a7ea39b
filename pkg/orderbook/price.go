package orderbook

import (
	"math/big"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

const (
	DefaultExchangeRate     = 1000
	DefaultToleranceDivisor = 20
)

// PriceRule accepts a pair when the secondary amount is within Rate*native/Divisor of Rate*native.
// The tolerance is truncated, so it errs tight at small amounts.
type PriceRule struct {
	Rate    *big.Int
	Divisor *big.Int
}

// DefaultPriceRule returns 1 native = 1000 secondary with a 5% band.
func DefaultPriceRule() PriceRule {
	return PriceRule{
		Rate:    big.NewInt(DefaultExchangeRate),
		Divisor: big.NewInt(DefaultToleranceDivisor),
	}
}

// Accepts reports whether secondary is within tolerance of native*Rate.
func (p PriceRule) Accepts(native, secondary *big.Int) bool {
	expected := new(big.Int).Mul(native, p.Rate)
	tolerance := new(big.Int).Quo(expected, p.Divisor)
	diff := new(big.Int).Sub(expected, secondary)
	return diff.Abs(diff).Cmp(tolerance) <= 0
}

// Matches reports whether a and b form a tradable pair: inverse tokens, one side native, amounts within tolerance.
func (p PriceRule) Matches(a, b *models.Intent) bool {
	if !models.IsInversePair(a, b) {
		return false
	}

	nativeSide, secondarySide := a, b
	switch {
	case a.IsNativeIn():
	case b.IsNativeIn():
		nativeSide, secondarySide = b, a
	default:
		return false
	}

	native, ok := models.ParseAmount(nativeSide.AmountIn)
	if !ok {
		return false
	}
	secondary, ok := models.ParseAmount(secondarySide.AmountIn)
	if !ok {
		return false
	}
	return p.Accepts(native, secondary)
}
