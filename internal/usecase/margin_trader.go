package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/tabdeal_margin/internal/domain"
	"go.uber.org/zap"
)

const (
	// defaultSettleDelay gives the exchange time to register a freshly
	// placed order before the first fill check.
	defaultSettleDelay = 3 * time.Second
	// defaultPollInterval spaces the fill and close polls. Well above any
	// rate limit; staleness is bounded only by this interval.
	defaultPollInterval = 60 * time.Second
)

// MarginTrader drives one margin order through its whole lifecycle:
// validation, deposit, placement, fill polling, SL/TP protection, close
// polling and the optional final withdrawal. It holds no state across
// invocations; everything is re-derived from the exchange by polling.
type MarginTrader struct {
	exchange domain.MarginExchange
	logger   *zap.Logger

	// Poll timings are fields so tests can shrink them.
	settleDelay       time.Duration
	fillPollInterval  time.Duration
	closePollInterval time.Duration
}

func NewMarginTrader(exchange domain.MarginExchange, logger *zap.Logger) *MarginTrader {
	return &MarginTrader{
		exchange:          exchange,
		logger:            logger,
		settleDelay:       defaultSettleDelay,
		fillPollInterval:  defaultPollInterval,
		closePollInterval: defaultPollInterval,
	}
}

// Trade runs the full lifecycle for the order and blocks until the position
// is closed on the exchange.
//
// It returns (false, nil) for the two locally recovered outcomes: a failed
// precondition (duplicate active order, symbol not tradeable) and an order
// abandoned by the exchange before filling. Any other accessor failure is
// returned as an error; the caller must then treat the position state as
// unknown, since funds may be left deposited or an open position may be left
// unprotected.
//
// The context is threaded into every request and sleep, so a deadline or
// cancellation aborts the otherwise unbounded polling loops.
func (t *MarginTrader) Trade(ctx context.Context, order *domain.MarginOrder, withdrawAfterClose bool) (bool, error) {
	if err := order.Validate(); err != nil {
		return false, err
	}

	ok, err := t.validate(ctx, order)
	if err != nil || !ok {
		return false, err
	}

	orderID, err := t.depositAndOpen(ctx, order)
	if err != nil {
		return false, err
	}
	t.logger.Info("margin order placed",
		zap.String("symbol", order.IsolatedSymbol),
		zap.Int64("order_id", orderID))

	filled, err := t.awaitFill(ctx, order.IsolatedSymbol)
	if err != nil {
		return false, err
	}
	if !filled {
		// The order vanished from the active list before filling.
		// Pull whatever is left in the margin asset back to the wallet
		// and report the trade as unsuccessful.
		if err := t.withdrawAll(ctx, order.IsolatedSymbol); err != nil {
			return false, err
		}
		t.logger.Warn("order abandoned before fill, deposit returned to wallet",
			zap.String("symbol", order.IsolatedSymbol))
		return false, nil
	}

	assetID, err := t.exchange.AssetID(ctx, order.IsolatedSymbol)
	if err != nil {
		return false, err
	}

	if err := t.protect(ctx, order, assetID); err != nil {
		return false, err
	}

	if err := t.awaitClose(ctx, assetID); err != nil {
		return false, err
	}
	t.logger.Info("position closed",
		zap.String("symbol", order.IsolatedSymbol),
		zap.Int64("asset_id", assetID))

	if withdrawAfterClose {
		if err := t.withdrawAll(ctx, order.IsolatedSymbol); err != nil {
			return false, err
		}
	}
	return true, nil
}

// validate runs the precondition checks. A false return means the trade must
// not proceed; no side effects have happened yet.
func (t *MarginTrader) validate(ctx context.Context, order *domain.MarginOrder) (bool, error) {
	hasActive, err := t.exchange.HasActiveOrder(ctx, order.IsolatedSymbol)
	if err != nil {
		return false, fmt.Errorf("checking active orders for %s: %w", order.IsolatedSymbol, err)
	}
	if hasActive {
		// The exchange does not support stacking orders on one
		// isolated symbol.
		t.logger.Warn("symbol already has an active margin order",
			zap.String("symbol", order.IsolatedSymbol))
		return false, nil
	}

	tradeable, err := t.exchange.IsTradeable(ctx, order.IsolatedSymbol)
	if err != nil {
		return false, fmt.Errorf("checking tradeability of %s: %w", order.IsolatedSymbol, err)
	}
	if !tradeable {
		t.logger.Warn("symbol is not margin tradeable",
			zap.String("symbol", order.IsolatedSymbol))
		return false, nil
	}
	return true, nil
}

// depositAndOpen transfers the collateral into the margin asset and submits
// the order. There is no compensating action here: if the deposit lands but
// the placement fails, the funds stay in the margin asset and the error
// propagates for manual reconciliation.
func (t *MarginTrader) depositAndOpen(ctx context.Context, order *domain.MarginOrder) (int64, error) {
	if err := t.exchange.TransferToMargin(ctx, order.DepositAmount, order.IsolatedSymbol); err != nil {
		return 0, fmt.Errorf("depositing %s USDT to %s: %w", order.DepositAmount, order.IsolatedSymbol, err)
	}
	t.logger.Info("deposit transferred to margin asset",
		zap.String("symbol", order.IsolatedSymbol),
		zap.String("amount", order.DepositAmount.String()))

	orderID, err := t.exchange.OpenMarginOrder(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("opening margin order on %s: %w", order.IsolatedSymbol, err)
	}
	return orderID, nil
}

// awaitFill polls the fill state until the order fills or disappears from
// the active list. A (false, nil) return means the order was abandoned by
// the exchange and the caller should recover the deposit.
func (t *MarginTrader) awaitFill(ctx context.Context, isolatedSymbol string) (bool, error) {
	if err := t.sleep(ctx, t.settleDelay); err != nil {
		return false, err
	}
	for {
		filled, err := t.exchange.OrderFilled(ctx, isolatedSymbol)
		switch {
		case errors.Is(err, domain.ErrOrderNotFoundInActiveOrders):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("polling fill state of %s: %w", isolatedSymbol, err)
		case filled:
			t.logger.Info("margin order filled", zap.String("symbol", isolatedSymbol))
			return true, nil
		}
		if err := t.sleep(ctx, t.fillPollInterval); err != nil {
			return false, err
		}
	}
}

// protect computes the SL/TP trigger prices from the live break-even point
// and attaches them to the position.
func (t *MarginTrader) protect(ctx context.Context, order *domain.MarginOrder, assetID int64) error {
	breakEven, err := t.exchange.BreakEvenPrice(ctx, assetID)
	if err != nil {
		return fmt.Errorf("reading break-even price of asset %d: %w", assetID, err)
	}
	precision, err := t.exchange.PrecisionRequirements(ctx, order.IsolatedSymbol)
	if err != nil {
		return fmt.Errorf("reading precision requirements of %s: %w", order.IsolatedSymbol, err)
	}

	stopLoss, takeProfit := domain.CalculateSLTPPrices(
		order.MarginLevel,
		order.OrderSide,
		breakEven,
		order.StopLossPercent,
		order.TakeProfitPercent,
		precision.PricePrecision,
		precision.PriceFractionAllowed(),
	)
	t.logger.Info("attaching SL/TP",
		zap.String("symbol", order.IsolatedSymbol),
		zap.String("break_even", breakEven.String()),
		zap.String("stop_loss", stopLoss.String()),
		zap.String("take_profit", takeProfit.String()))

	if err := t.exchange.SetStopLossTakeProfit(ctx, assetID, stopLoss, takeProfit); err != nil {
		return fmt.Errorf("setting SL/TP for asset %d: %w", assetID, err)
	}
	return nil
}

// awaitClose polls the open positions list until the asset id no longer
// appears in it. There is no direct close event; absence is the only signal,
// and it does not say whether SL, TP or a manual close fired.
func (t *MarginTrader) awaitClose(ctx context.Context, assetID int64) error {
	for {
		status, err := t.positionStatus(ctx, assetID)
		switch status {
		case domain.PositionNotFound:
			return nil
		case domain.PositionUnknown:
			return fmt.Errorf("polling open positions for asset %d: %w", assetID, err)
		}
		if err := t.sleep(ctx, t.closePollInterval); err != nil {
			return err
		}
	}
}

// positionStatus probes the open orders list for the asset. Query failures
// map to PositionUnknown so they stay distinguishable from a real close.
func (t *MarginTrader) positionStatus(ctx context.Context, assetID int64) (domain.PositionStatus, error) {
	positions, err := t.exchange.AllOpenOrders(ctx)
	if err != nil {
		return domain.PositionUnknown, err
	}
	for _, p := range positions {
		if p.AssetID == assetID {
			return domain.PositionOpen, nil
		}
	}
	return domain.PositionNotFound, nil
}

// withdrawAll reads the margin asset's USDT balance and transfers the whole
// amount back to the wallet. The transfer is attempted even for a zero
// balance to keep the recovery path uniform.
func (t *MarginTrader) withdrawAll(ctx context.Context, isolatedSymbol string) error {
	balance, err := t.exchange.AssetBalance(ctx, isolatedSymbol)
	if err != nil {
		return fmt.Errorf("reading balance of margin asset %s: %w", isolatedSymbol, err)
	}
	if err := t.exchange.TransferFromMargin(ctx, balance, isolatedSymbol); err != nil {
		return fmt.Errorf("withdrawing %s USDT from %s: %w", balance, isolatedSymbol, err)
	}
	t.logger.Info("margin balance withdrawn to wallet",
		zap.String("symbol", isolatedSymbol),
		zap.String("amount", balance.String()))
	return nil
}

func (t *MarginTrader) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
