package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/vitos/tabdeal_margin/internal/domain"
	"go.uber.org/zap"
)

// DefaultBaseURL is the production Tabdeal API host.
const DefaultBaseURL = "https://api.etctabdeal.org"

const (
	marginAssetDetailsURI  = "/margin/margin-account-v2/"
	allMarginOpenOrdersURI = "/margin/margin-open-orders/"
	openMarginOrderURI     = "/margin/order/"
	setSLTPURI             = "/margin/set-sl-tp/"
	transferToMarginURI    = "/margin/deposit-transfer/"
	transferFromMarginURI  = "/margin/withdraw-transfer/"
	walletBalanceURI       = "/r/wallet/"
	ordersHistoryURI       = "/r/orders-history/"
	accountPreferencesURI  = "/r/account-preferences/"
)

const (
	isolatedMarginGenre = "IsolatedMargin"
	// usdtMarketID selects the USDT entry of the wallet details endpoint.
	usdtMarketID = "428"
	// authKeyInvalidityThreshold stops the keep-alive loop after this many
	// consecutive failed validations.
	authKeyInvalidityThreshold = 3

	requestTimeout = 10 * time.Second
)

// TabdealAdapter talks to the Tabdeal isolated margin REST API. One adapter
// holds one authenticated HTTP session; it is safe for concurrent use and
// carries no per-trade state, so independent trades can share it.
type TabdealAdapter struct {
	client *resty.Client
	logger *zap.Logger
}

// NewTabdealAdapter builds an adapter authenticated with the account's user
// hash and authorization key. Pass DefaultBaseURL outside of tests.
func NewTabdealAdapter(userHash, authorizationKey, baseURL string, logger *zap.Logger) *TabdealAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("user-hash", userHash).
		SetHeader("Authorization", authorizationKey)

	return &TabdealAdapter{
		client: client,
		logger: logger,
	}
}

// getJSON performs a GET and decodes the 200 response body into out.
func (a *TabdealAdapter) getJSON(ctx context.Context, uri string, queries map[string]string, out any) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(queries).
		Get(uri)
	if err != nil {
		return fmt.Errorf("GET %s: %w", uri, err)
	}
	if resp.StatusCode() != 200 {
		a.logger.Warn("server rejected request",
			zap.String("uri", uri),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()))
		return mapResponseError(resp.StatusCode(), string(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding %s response: %w", uri, err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and returns the raw 200 response.
func (a *TabdealAdapter) postJSON(ctx context.Context, uri string, body any) ([]byte, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(uri)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", uri, err)
	}
	if resp.StatusCode() != 200 {
		a.logger.Warn("server rejected request",
			zap.String("uri", uri),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()))
		return nil, mapResponseError(resp.StatusCode(), string(resp.Body()))
	}
	return resp.Body(), nil
}

// assetDetails fetches the isolated margin account details for a symbol.
func (a *TabdealAdapter) assetDetails(ctx context.Context, isolatedSymbol string) (*marginAssetDetails, error) {
	queries := map[string]string{
		"pair_symbol":   isolatedSymbol,
		"account_genre": isolatedMarginGenre,
	}
	var details marginAssetDetails
	if err := a.getJSON(ctx, marginAssetDetailsURI, queries, &details); err != nil {
		return nil, err
	}
	a.logger.Debug("fetched margin asset details",
		zap.String("symbol", isolatedSymbol),
		zap.Int64("asset_id", details.ID))
	return &details, nil
}

// AssetID resolves the isolated margin account id for a symbol.
func (a *TabdealAdapter) AssetID(ctx context.Context, isolatedSymbol string) (int64, error) {
	details, err := a.assetDetails(ctx, isolatedSymbol)
	if err != nil {
		return 0, err
	}
	return details.ID, nil
}

// IsTradeable reports whether the symbol can be margin traded: borrowing,
// transfers and margin must all be active and the pair must resolve.
func (a *TabdealAdapter) IsTradeable(ctx context.Context, isolatedSymbol string) (bool, error) {
	details, err := a.assetDetails(ctx, isolatedSymbol)
	if err != nil {
		return false, err
	}
	tradeable := details.BorrowActive &&
		details.TransferActive &&
		details.MarginActive &&
		details.Pair.ID > 0
	if !tradeable {
		a.logger.Debug("symbol not tradeable",
			zap.String("symbol", isolatedSymbol),
			zap.Bool("borrow_active", details.BorrowActive),
			zap.Bool("transfer_active", details.TransferActive),
			zap.Bool("margin_active", details.MarginActive),
			zap.Int64("pair_id", details.Pair.ID))
	}
	return tradeable, nil
}

// PrecisionRequirements returns the volume/price precisions the exchange
// enforces for the symbol.
func (a *TabdealAdapter) PrecisionRequirements(ctx context.Context, isolatedSymbol string) (domain.PrecisionRequirements, error) {
	details, err := a.assetDetails(ctx, isolatedSymbol)
	if err != nil {
		return domain.PrecisionRequirements{}, err
	}
	return domain.PrecisionRequirements{
		VolumePrecision: details.FirstCurrencyPrecision,
		PricePrecision:  details.PricePrecision,
	}, nil
}

// AssetBalance returns the USDT balance held inside the margin asset.
func (a *TabdealAdapter) AssetBalance(ctx context.Context, isolatedSymbol string) (decimal.Decimal, error) {
	details, err := a.assetDetails(ctx, isolatedSymbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return domain.NormalizeDecimal(details.SecondCurrencyBalance), nil
}

// AllOpenOrders lists every open isolated margin position of the account.
func (a *TabdealAdapter) AllOpenOrders(ctx context.Context) ([]domain.OpenPosition, error) {
	var raw []marginOpenOrder
	if err := a.getJSON(ctx, allMarginOpenOrdersURI, nil, &raw); err != nil {
		return nil, err
	}
	positions := make([]domain.OpenPosition, 0, len(raw))
	for _, o := range raw {
		positions = append(positions, o.toDomain())
	}
	a.logger.Debug("fetched open margin orders", zap.Int("count", len(positions)))
	return positions, nil
}

// HasActiveOrder reports whether the symbol's margin asset currently appears
// in the open orders list.
func (a *TabdealAdapter) HasActiveOrder(ctx context.Context, isolatedSymbol string) (bool, error) {
	assetID, err := a.AssetID(ctx, isolatedSymbol)
	if err != nil {
		return false, err
	}
	positions, err := a.AllOpenOrders(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.AssetID == assetID {
			return true, nil
		}
	}
	return false, nil
}

// BreakEvenPrice returns the zero-PnL price of the asset's open position.
func (a *TabdealAdapter) BreakEvenPrice(ctx context.Context, assetID int64) (decimal.Decimal, error) {
	positions, err := a.AllOpenOrders(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	for _, p := range positions {
		if p.AssetID == assetID {
			a.logger.Debug("break-even price found",
				zap.Int64("asset_id", assetID),
				zap.String("break_even", p.BreakEvenPoint.String()))
			return p.BreakEvenPoint, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("asset %d: %w", assetID, domain.ErrMarginPositionNotFound)
}

// OrderFilled reports whether the symbol's active order has fully filled.
// Once the order has vanished from the active list without filling, it
// returns domain.ErrOrderNotFoundInActiveOrders.
func (a *TabdealAdapter) OrderFilled(ctx context.Context, isolatedSymbol string) (bool, error) {
	assetID, err := a.AssetID(ctx, isolatedSymbol)
	if err != nil {
		return false, err
	}
	positions, err := a.AllOpenOrders(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.AssetID == assetID {
			return p.State == domain.OrderStateFilled, nil
		}
	}
	return false, fmt.Errorf("%s: %w", isolatedSymbol, domain.ErrOrderNotFoundInActiveOrders)
}

// WalletUSDTBalance returns the USDT balance of the main wallet.
func (a *TabdealAdapter) WalletUSDTBalance(ctx context.Context) (decimal.Decimal, error) {
	a.logger.Debug("fetching wallet USDT balance")
	var details walletDetails
	queries := map[string]string{"market_id": usdtMarketID}
	if err := a.getJSON(ctx, walletBalanceURI, queries, &details); err != nil {
		return decimal.Decimal{}, err
	}
	balance := domain.NormalizeDecimal(details.TetherUS)
	a.logger.Debug("wallet balance retrieved", zap.String("usdt", balance.String()))
	return balance, nil
}

// TransferToMargin moves USDT from the main wallet into the isolated margin
// asset. The deposit endpoint addresses the pair in Tabdeal notation.
func (a *TabdealAdapter) TransferToMargin(ctx context.Context, amount decimal.Decimal, isolatedSymbol string) error {
	a.logger.Debug("transferring USDT from wallet to margin asset",
		zap.String("symbol", isolatedSymbol),
		zap.String("amount", amount.String()))
	body := transferToMarginRequest{
		Amount:                 0,
		CurrencySymbol:         "USDT",
		TransferAmountFromMain: amount,
		PairSymbol:             domain.IsolatedToTabdealSymbol(isolatedSymbol),
	}
	if _, err := a.postJSON(ctx, transferToMarginURI, body); err != nil {
		return err
	}
	a.logger.Info("transfer to margin asset successful",
		zap.String("symbol", isolatedSymbol),
		zap.String("amount", amount.String()))
	return nil
}

// TransferFromMargin moves USDT from the isolated margin asset back to the
// main wallet. The withdraw endpoint takes the isolated symbol as-is.
func (a *TabdealAdapter) TransferFromMargin(ctx context.Context, amount decimal.Decimal, isolatedSymbol string) error {
	a.logger.Debug("transferring USDT from margin asset to wallet",
		zap.String("symbol", isolatedSymbol),
		zap.String("amount", amount.String()))
	body := transferFromMarginRequest{
		TransferDirection: "Out",
		Amount:            amount,
		CurrencySymbol:    "USDT",
		AccountGenre:      isolatedMarginGenre,
		OtherAccountGenre: "Main",
		PairSymbol:        isolatedSymbol,
	}
	if _, err := a.postJSON(ctx, transferFromMarginURI, body); err != nil {
		return err
	}
	a.logger.Info("transfer to wallet successful",
		zap.String("symbol", isolatedSymbol),
		zap.String("amount", amount.String()))
	return nil
}

// OpenMarginOrder submits the order and returns the exchange-assigned order
// id. The order volume is derived from the deposit and leverage at the
// symbol's reported precision, truncated so it never exceeds the balance the
// borrow covers.
func (a *TabdealAdapter) OpenMarginOrder(ctx context.Context, order *domain.MarginOrder) (int64, error) {
	details, err := a.assetDetails(ctx, order.IsolatedSymbol)
	if err != nil {
		return 0, err
	}

	volumePrecision := details.FirstCurrencyPrecision
	if !order.VolumeFractionAllowed {
		volumePrecision = 0
	} else if order.VolumePrecision > 0 && order.VolumePrecision < volumePrecision {
		volumePrecision = order.VolumePrecision
	}

	totalValue := domain.CalculateUSDT(order.DepositAmount, order.MarginLevel, domain.Multiply)
	volume := domain.CalculateOrderVolume(
		totalValue,
		order.OrderPrice,
		order.VolumeFractionAllowed,
		volumePrecision,
	)
	a.logger.Debug("computed order volume",
		zap.String("symbol", order.IsolatedSymbol),
		zap.String("total_value", totalValue.String()),
		zap.String("volume", volume.String()))

	body := openMarginOrderRequest{
		PairSymbol:   order.IsolatedSymbol,
		Amount:       volume,
		Price:        order.OrderPrice,
		Side:         int(order.OrderSide),
		MarginLevel:  order.MarginLevel,
		AccountGenre: isolatedMarginGenre,
	}
	raw, err := a.postJSON(ctx, openMarginOrderURI, body)
	if err != nil {
		return 0, err
	}
	var placed openMarginOrderResponse
	if err := json.Unmarshal(raw, &placed); err != nil {
		return 0, fmt.Errorf("decoding order placement response: %w", err)
	}
	a.logger.Info("margin order submitted",
		zap.String("symbol", order.IsolatedSymbol),
		zap.String("side", order.OrderSide.String()),
		zap.Int64("order_id", placed.ID))
	return placed.ID, nil
}

// SetStopLossTakeProfit attaches SL/TP trigger prices to the asset's open
// position.
func (a *TabdealAdapter) SetStopLossTakeProfit(ctx context.Context, assetID int64, stopLossPrice, takeProfitPrice decimal.Decimal) error {
	body := setSLTPRequest{
		TraderIsolatedMarginID: assetID,
		StopLossPrice:          stopLossPrice,
		TakeProfitPrice:        takeProfitPrice,
	}
	if _, err := a.postJSON(ctx, setSLTPURI, body); err != nil {
		return err
	}
	a.logger.Info("SL/TP set",
		zap.Int64("asset_id", assetID),
		zap.String("stop_loss", stopLossPrice.String()),
		zap.String("take_profit", takeProfitPrice.String()))
	return nil
}

// OrdersHistory returns the most recent maxHistory orders of the account,
// newest first.
func (a *TabdealAdapter) OrdersHistory(ctx context.Context, maxHistory int) ([]OrderHistoryEntry, error) {
	orders, err := a.ordersHistory(ctx, maxHistory)
	if err != nil {
		return nil, err
	}
	history := make([]OrderHistoryEntry, 0, len(orders))
	for _, o := range orders {
		history = append(history, o.toEntry())
	}
	return history, nil
}

// OrderState looks up the current state of an order by its id in the recent
// orders history.
func (a *TabdealAdapter) OrderState(ctx context.Context, orderID int64) (domain.OrderState, error) {
	a.logger.Debug("getting order state", zap.Int64("order_id", orderID))
	orders, err := a.ordersHistory(ctx, 500)
	if err != nil {
		return domain.OrderStateUnknown, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			state := domain.OrderState(o.State)
			a.logger.Debug("order state found",
				zap.Int64("order_id", orderID),
				zap.String("state", state.String()))
			return state, nil
		}
	}
	return domain.OrderStateUnknown, fmt.Errorf("order %d: %w", orderID, domain.ErrOrderNotFoundInActiveOrders)
}

func (a *TabdealAdapter) ordersHistory(ctx context.Context, maxHistory int) ([]historyOrder, error) {
	queries := map[string]string{
		"page_size":   strconv.Itoa(maxHistory),
		"ordering":    "created",
		"desc":        "true",
		"market_type": "All",
		"order_type":  "All",
	}
	var resp ordersHistoryResponse
	if err := a.getJSON(ctx, ordersHistoryURI, queries, &resp); err != nil {
		return nil, err
	}
	a.logger.Debug("retrieved orders history", zap.Int("count", len(resp.Orders)))
	return resp.Orders, nil
}

// IsAuthorizationKeyValid checks whether the session's authorization key is
// still accepted by the server.
func (a *TabdealAdapter) IsAuthorizationKeyValid(ctx context.Context) (bool, error) {
	var preferences map[string]any
	err := a.getJSON(ctx, accountPreferencesURI, nil, &preferences)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrAuthorization):
		return false, nil
	default:
		return false, err
	}
}

// KeepAlive periodically exercises the authorization key so the server does
// not expire it. The loop ends when ctx is canceled or once consecutive
// failed validations exceed authKeyInvalidityThreshold.
func (a *TabdealAdapter) KeepAlive(ctx context.Context, interval time.Duration) error {
	a.logger.Debug("authorization keep-alive started",
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFails := 0
	for consecutiveFails <= authKeyInvalidityThreshold {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		valid, err := a.IsAuthorizationKeyValid(ctx)
		if err != nil {
			return fmt.Errorf("keep-alive validation: %w", err)
		}
		if valid {
			consecutiveFails = 0
			a.logger.Debug("authorization key is still valid")
			continue
		}
		consecutiveFails++
		a.logger.Error("authorization key is invalid or expired",
			zap.Int("consecutive_fails", consecutiveFails))
	}
	return fmt.Errorf("authorization key failed validation %d times in a row: %w",
		consecutiveFails, domain.ErrAuthorization)
}
