package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarginExchange defines the interface for interacting with the exchange's
// isolated margin API. Every call is a single request/response round trip;
// the trade lifecycle composes them into a workflow.
type MarginExchange interface {
	// HasActiveOrder reports whether the isolated symbol already has an
	// active margin order. Returns ErrMarketNotFound for unknown symbols.
	HasActiveOrder(ctx context.Context, isolatedSymbol string) (bool, error)
	// IsTradeable reports whether the symbol can be margin traded right
	// now: borrow, transfer and margin must all be active and the pair
	// must resolve.
	IsTradeable(ctx context.Context, isolatedSymbol string) (bool, error)
	// AssetID resolves the isolated margin account id for a symbol.
	AssetID(ctx context.Context, isolatedSymbol string) (int64, error)
	// AssetBalance returns the USDT balance held inside the isolated
	// margin asset.
	AssetBalance(ctx context.Context, isolatedSymbol string) (decimal.Decimal, error)
	// WalletUSDTBalance returns the USDT balance of the main wallet.
	WalletUSDTBalance(ctx context.Context) (decimal.Decimal, error)
	// PrecisionRequirements returns the volume/price precisions the
	// exchange enforces for the symbol.
	PrecisionRequirements(ctx context.Context, isolatedSymbol string) (PrecisionRequirements, error)
	// AllOpenOrders lists every open isolated margin position of the
	// account.
	AllOpenOrders(ctx context.Context) ([]OpenPosition, error)
	// BreakEvenPrice returns the zero-PnL price of the open position held
	// by the given margin asset.
	BreakEvenPrice(ctx context.Context, assetID int64) (decimal.Decimal, error)
	// OrderFilled reports whether the symbol's active order has fully
	// filled. Returns ErrOrderNotFoundInActiveOrders once the order has
	// vanished from the active list without filling.
	OrderFilled(ctx context.Context, isolatedSymbol string) (bool, error)

	// TransferToMargin moves USDT from the main wallet into the isolated
	// margin asset. Fails with ErrTransferOverBalance when the wallet
	// holds less than amount.
	TransferToMargin(ctx context.Context, amount decimal.Decimal, isolatedSymbol string) error
	// TransferFromMargin moves USDT from the isolated margin asset back
	// to the main wallet.
	TransferFromMargin(ctx context.Context, amount decimal.Decimal, isolatedSymbol string) error
	// OpenMarginOrder submits the order and returns the exchange-assigned
	// order id.
	OpenMarginOrder(ctx context.Context, order *MarginOrder) (int64, error)
	// SetStopLossTakeProfit attaches SL/TP trigger prices to the asset's
	// open position.
	SetStopLossTakeProfit(ctx context.Context, assetID int64, stopLossPrice, takeProfitPrice decimal.Decimal) error
}
