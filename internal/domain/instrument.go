package domain

// PrecisionRequirements holds the per-symbol decimal precisions the exchange
// enforces on order volume and price.
type PrecisionRequirements struct {
	// VolumePrecision is the number of fractional digits allowed in the
	// order volume.
	VolumePrecision int
	// PricePrecision is the number of fractional digits allowed in the
	// order price. Zero is a sentinel: it means the exchange accepts
	// free-form fractional price ticks for the symbol, not that prices
	// must be integers.
	PricePrecision int
}

// PriceFractionAllowed reports whether the symbol accepts free-form
// fractional prices. See the PricePrecision sentinel.
func (p PrecisionRequirements) PriceFractionAllowed() bool {
	return p.PricePrecision == 0
}
