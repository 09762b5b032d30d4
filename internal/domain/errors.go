package domain

import "errors"

// Errors the exchange accessors report. They are part of the accessor
// contract: the trade lifecycle branches on some of them, so they live here
// rather than in the transport package.
var (
	// ErrAuthorization is returned on HTTP 401: the authorization key is
	// invalid or expired.
	ErrAuthorization = errors.New("authorization key invalid or expired")

	// ErrMarketNotFound is returned when the exchange does not recognize
	// the requested symbol or market.
	ErrMarketNotFound = errors.New("market not found")

	// ErrMarginNotActive is returned when the symbol exists but isolated
	// margin trading is not enabled for it.
	ErrMarginNotActive = errors.New("margin trading not active for symbol")

	// ErrOrderNotFoundInActiveOrders is returned by the fill check when the
	// order has vanished from the active orders list before ever filling.
	ErrOrderNotFoundInActiveOrders = errors.New("order not found in active margin orders")

	// ErrMarginPositionNotFound is returned when attaching SL/TP to an
	// asset that has no open margin position.
	ErrMarginPositionNotFound = errors.New("margin position not found")

	// ErrTransferOverBalance is returned when a wallet to margin transfer
	// asks for more than the wallet holds.
	ErrTransferOverBalance = errors.New("transfer amount over account balance")

	// ErrTransferFromMarginNotPossible is returned when a margin to wallet
	// transfer cannot be performed, e.g. the amount exceeds the free margin
	// balance.
	ErrTransferFromMarginNotPossible = errors.New("transfer from margin asset to wallet not possible")

	// ErrOrderInvalid is returned when the exchange rejects an order
	// placement outright.
	ErrOrderInvalid = errors.New("order is invalid")

	// ErrRequestedParametersInvalid is returned when the exchange rejects
	// the request parameters of a read.
	ErrRequestedParametersInvalid = errors.New("requested parameters invalid")
)
