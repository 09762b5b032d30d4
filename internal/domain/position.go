package domain

import "github.com/shopspring/decimal"

// OpenPosition is one entry of the exchange's open margin orders list.
// The exchange owns the lifecycle: an entry appears when an order is placed
// and disappears when the position closes, whatever the reason. Absence from
// the list is the only closure signal available.
type OpenPosition struct {
	// AssetID is the isolated margin account id the order belongs to.
	AssetID int64
	PairID  int64
	// BreakEvenPoint is the price at which the leveraged position's
	// profit and loss is exactly zero.
	BreakEvenPoint decimal.Decimal
	State          OrderState
}

// PositionStatus is the result of probing the open orders list for an asset.
// Closure is inferred from absence, so a failed query must stay
// distinguishable from a genuine not-found.
type PositionStatus int

const (
	PositionUnknown PositionStatus = iota
	PositionOpen
	PositionNotFound
)

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "open"
	case PositionNotFound:
		return "not-found"
	}
	return "unknown"
}
