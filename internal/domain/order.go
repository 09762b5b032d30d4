package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a margin order, using the exchange's wire
// numbering.
type OrderSide int

const (
	Buy  OrderSide = 1
	Sell OrderSide = 2
)

func (s OrderSide) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// OrderState is the lifecycle state of an order as reported by the exchange.
type OrderState int

const (
	OrderStateUnknown         OrderState = 0
	OrderStateActive          OrderState = 1
	OrderStatePartiallyFilled OrderState = 2
	OrderStateCanceled        OrderState = 3
	OrderStateFilled          OrderState = 4
)

func (s OrderState) String() string {
	switch s {
	case OrderStateActive:
		return "active"
	case OrderStatePartiallyFilled:
		return "partially-filled"
	case OrderStateCanceled:
		return "canceled"
	case OrderStateFilled:
		return "filled"
	}
	return "unknown"
}

// MaxMarginLevel caps the leverage an order may request.
var MaxMarginLevel = decimal.NewFromInt(60)

// MarginOrder describes one isolated margin trade to run: what to buy or
// sell, with how much collateral, at what leverage, and how far from
// break-even the protective triggers sit.
type MarginOrder struct {
	// IsolatedSymbol is the exchange's isolated pair notation, e.g.
	// BTCUSDT.
	IsolatedSymbol string
	// OrderPrice is the limit price the order is placed at.
	OrderPrice decimal.Decimal
	OrderSide  OrderSide
	// MarginLevel is the leverage multiplier, 1 < level <= MaxMarginLevel.
	MarginLevel decimal.Decimal
	// DepositAmount is the USDT collateral moved into the margin asset
	// before placement.
	DepositAmount decimal.Decimal
	// StopLossPercent and TakeProfitPercent are equity-percent distances
	// from break-even; leverage scales them down to price distances.
	StopLossPercent   decimal.Decimal
	TakeProfitPercent decimal.Decimal
	// VolumeFractionAllowed permits fractional order volume; when set,
	// VolumePrecision may further cap the fractional digits.
	VolumeFractionAllowed bool
	VolumePrecision       int
}

// Validate checks the order parameters that can be rejected without talking
// to the exchange.
func (o *MarginOrder) Validate() error {
	if o.IsolatedSymbol == "" {
		return fmt.Errorf("isolated symbol is empty")
	}
	if !strings.HasSuffix(o.IsolatedSymbol, "USDT") {
		return fmt.Errorf("isolated symbol %q must end in USDT", o.IsolatedSymbol)
	}
	if o.OrderSide != Buy && o.OrderSide != Sell {
		return fmt.Errorf("invalid order side %d", int(o.OrderSide))
	}
	if !o.OrderPrice.IsPositive() {
		return fmt.Errorf("order price %s must be positive", o.OrderPrice)
	}
	if !o.DepositAmount.IsPositive() {
		return fmt.Errorf("deposit amount %s must be positive", o.DepositAmount)
	}
	if o.MarginLevel.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("margin level %s must be greater than 1", o.MarginLevel)
	}
	if o.MarginLevel.GreaterThan(MaxMarginLevel) {
		return fmt.Errorf("margin level %s exceeds maximum %s", o.MarginLevel, MaxMarginLevel)
	}
	if o.StopLossPercent.IsNegative() || o.TakeProfitPercent.IsNegative() {
		return fmt.Errorf("stop-loss and take-profit percents must not be negative")
	}
	if o.VolumePrecision < 0 {
		return fmt.Errorf("volume precision %d must not be negative", o.VolumePrecision)
	}
	return nil
}
