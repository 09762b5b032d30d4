package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MathOperation selects the operation CalculateUSDT applies.
type MathOperation int

const (
	Add MathOperation = iota
	Subtract
	Multiply
	Divide
)

// usdtPrecision is the number of fractional digits the exchange uses for
// USDT amounts.
const usdtPrecision = 8

// divisionPrecision is the working precision for intermediate quotients,
// comfortably above anything the exchange accepts.
const divisionPrecision = 24

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// NormalizeDecimal strips trailing fractional zeros and expands any positive
// exponent into plain integer-scaled form, so that representations like
// 60.470000 and 60.47 compare equal without caller-side handling.
// Idempotent: NormalizeDecimal(NormalizeDecimal(d)) == NormalizeDecimal(d).
func NormalizeDecimal(d decimal.Decimal) decimal.Decimal {
	// String renders plain notation with trailing fractional zeros
	// trimmed, so a single round trip resolves positive exponents and
	// strips zeros at once. Parsing our own String output cannot fail.
	normalized, _ := decimal.NewFromString(d.String())
	return normalized
}

// CalculateOrderVolume computes how much of the asset an order can buy:
// assetBalance / orderPrice. When fractions are not allowed the volume is
// floored to a whole number; otherwise it is truncated, never rounded, to
// requiredPrecision digits. Truncation is deliberate: the order must never
// request more volume than the balance covers.
func CalculateOrderVolume(
	assetBalance decimal.Decimal,
	orderPrice decimal.Decimal,
	volumeFractionAllowed bool,
	requiredPrecision int,
) decimal.Decimal {
	volume := assetBalance.DivRound(orderPrice, divisionPrecision)
	if !volumeFractionAllowed {
		return volume.Floor()
	}
	return volume.Truncate(int32(requiredPrecision))
}

// CalculateUSDT applies the operation to the two values and truncates the
// result to the exchange's 8-digit USDT precision. All monetary composition
// goes through here so derived amounts carry a consistent precision.
func CalculateUSDT(a, b decimal.Decimal, operation MathOperation) decimal.Decimal {
	var result decimal.Decimal
	switch operation {
	case Add:
		result = a.Add(b)
	case Subtract:
		result = a.Sub(b)
	case Multiply:
		result = a.Mul(b)
	case Divide:
		result = a.DivRound(b, divisionPrecision)
	}
	return result.Truncate(usdtPrecision)
}

// IsolatedToTabdealSymbol converts an isolated margin symbol to the pair
// notation used by the transfer endpoints: BTCUSDT becomes BTC_USDT.
// The input must be a validated isolated symbol ending in USDT.
func IsolatedToTabdealSymbol(isolatedSymbol string) string {
	return strings.TrimSuffix(isolatedSymbol, "USDT") + "_USDT"
}

// CalculateSLTPPrices derives the stop-loss and take-profit trigger prices
// from the break-even price. The percent inputs are equity-percent: on a
// leveraged position a price move multiplies into an equity move, so they
// are divided by the leverage to obtain the actual price distance.
//
// For BUY the stop-loss sits below break-even and the take-profit above;
// for SELL the signs invert. SELL additionally uses marginLevel-1 as the
// effective leverage, matching the exchange's margin-level semantics for
// short positions: one unit of the level is the trader's own collateral.
//
// Outputs are rounded to priceRequiredPrecision digits unless
// priceFractionAllowed is set, in which case they are returned free-form.
func CalculateSLTPPrices(
	marginLevel decimal.Decimal,
	orderSide OrderSide,
	breakEvenPoint decimal.Decimal,
	stopLossPercent decimal.Decimal,
	takeProfitPercent decimal.Decimal,
	priceRequiredPrecision int,
	priceFractionAllowed bool,
) (stopLossPrice, takeProfitPrice decimal.Decimal) {
	effectiveLevel := marginLevel
	if orderSide == Sell && marginLevel.GreaterThan(one) {
		effectiveLevel = marginLevel.Sub(one)
	}

	scale := effectiveLevel.Mul(hundred)
	stopLossDelta := breakEvenPoint.Mul(stopLossPercent).DivRound(scale, divisionPrecision)
	takeProfitDelta := breakEvenPoint.Mul(takeProfitPercent).DivRound(scale, divisionPrecision)

	if orderSide == Buy {
		stopLossPrice = breakEvenPoint.Sub(stopLossDelta)
		takeProfitPrice = breakEvenPoint.Add(takeProfitDelta)
	} else {
		stopLossPrice = breakEvenPoint.Add(stopLossDelta)
		takeProfitPrice = breakEvenPoint.Sub(takeProfitDelta)
	}

	if !priceFractionAllowed {
		stopLossPrice = stopLossPrice.Round(int32(priceRequiredPrecision))
		takeProfitPrice = takeProfitPrice.Round(int32(priceRequiredPrecision))
	}
	return stopLossPrice, takeProfitPrice
}
