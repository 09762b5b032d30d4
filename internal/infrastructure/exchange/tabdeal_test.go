package exchange_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tabdeal_margin/internal/domain"
	"github.com/vitos/tabdeal_margin/internal/infrastructure/exchange"
	"go.uber.org/zap"
)

const (
	testUserHash = "test-user-hash"
	testAuthKey  = "test-auth-key"
)

// newTestServer runs an HTTP server that enforces the auth headers and
// dispatches to mux, the way the real API front door does.
func newTestServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("user-hash") != testUserHash || r.Header.Get("Authorization") != testAuthKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, mux *http.ServeMux) *exchange.TabdealAdapter {
	t.Helper()
	srv := newTestServer(t, mux)
	return exchange.NewTabdealAdapter(testUserHash, testAuthKey, srv.URL, zap.NewNop())
}

func detailsHandler(t *testing.T, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "IsolatedMargin", r.URL.Query().Get("account_genre"))
		w.Write([]byte(body))
	}
}

const btcDetails = `{
	"id": 9000,
	"pair": {"id": 12, "symbol": "BTCUSDT"},
	"borrow_active": true,
	"transfer_active": true,
	"margin_active": true,
	"first_currency_balance": "0",
	"second_currency_balance": "100.500000",
	"first_currency_precision": 6,
	"price_precision": 0
}`

func TestIsTradeable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	adapter := newTestAdapter(t, mux)

	tradeable, err := adapter.IsTradeable(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, tradeable)
}

func TestIsTradeableMarginInactive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, `{
		"id": 9000,
		"pair": {"id": 12, "symbol": "BTCUSDT"},
		"borrow_active": true,
		"transfer_active": true,
		"margin_active": false
	}`))
	adapter := newTestAdapter(t, mux)

	tradeable, err := adapter.IsTradeable(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, tradeable)
}

func TestAssetDetailsUnknownMarket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Market not found"}`, http.StatusBadRequest)
	})
	adapter := newTestAdapter(t, mux)

	_, err := adapter.AssetID(context.Background(), "NOPEUSDT")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestAssetBalanceNormalized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	adapter := newTestAdapter(t, mux)

	balance, err := adapter.AssetBalance(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "100.5", balance.String())
}

func TestPrecisionRequirements(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	adapter := newTestAdapter(t, mux)

	precision, err := adapter.PrecisionRequirements(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 6, precision.VolumePrecision)
	assert.True(t, precision.PriceFractionAllowed())
}

func TestWalletUSDTBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/wallet/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "428", r.URL.Query().Get("market_id"))
		w.Write([]byte(`{"TetherUS": "12.340000", "Bitcoin": "0.5"}`))
	})
	adapter := newTestAdapter(t, mux)

	balance, err := adapter.WalletUSDTBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12.34", balance.String())
}

func TestTransferToMarginBody(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/deposit-transfer/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{}`))
	})
	adapter := newTestAdapter(t, mux)

	err := adapter.TransferToMargin(context.Background(), decimal.NewFromInt(40), "BTCUSDT")
	require.NoError(t, err)

	assert.JSONEq(t, `0`, string(body["amount"]))
	assert.JSONEq(t, `"USDT"`, string(body["currency_symbol"]))
	assert.JSONEq(t, `"40"`, string(body["transfer_amount_from_main"]))
	// Deposits address the pair in Tabdeal notation.
	assert.JSONEq(t, `"BTC_USDT"`, string(body["pair_symbol"]))
}

func TestTransferToMarginOverBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/deposit-transfer/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Transfer amount is over account balance"}`, http.StatusBadRequest)
	})
	adapter := newTestAdapter(t, mux)

	err := adapter.TransferToMargin(context.Background(), decimal.NewFromInt(1e6), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrTransferOverBalance)
}

func TestTransferFromMarginBody(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/withdraw-transfer/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{}`))
	})
	adapter := newTestAdapter(t, mux)

	err := adapter.TransferFromMargin(context.Background(), decimal.NewFromFloat(52.5), "BTCUSDT")
	require.NoError(t, err)

	assert.JSONEq(t, `"Out"`, string(body["transfer_direction"]))
	assert.JSONEq(t, `"52.5"`, string(body["amount"]))
	assert.JSONEq(t, `"IsolatedMargin"`, string(body["account_genre"]))
	assert.JSONEq(t, `"Main"`, string(body["other_account_genre"]))
	// Withdrawals keep the isolated symbol as-is.
	assert.JSONEq(t, `"BTCUSDT"`, string(body["pair_symbol"]))
}

func TestOpenMarginOrderComputesVolume(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	mux.HandleFunc("/margin/order/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"id": 555, "state": 1}`))
	})
	adapter := newTestAdapter(t, mux)

	order := &domain.MarginOrder{
		IsolatedSymbol:        "BTCUSDT",
		OrderPrice:            decimal.NewFromInt(100),
		OrderSide:             domain.Buy,
		MarginLevel:           decimal.NewFromInt(5),
		DepositAmount:         decimal.NewFromInt(40),
		VolumeFractionAllowed: true,
	}
	orderID, err := adapter.OpenMarginOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, int64(555), orderID)

	// 40 USDT at 5x buys 200 USDT of volume: 200 / 100 = 2.
	assert.JSONEq(t, `"2"`, string(body["amount"]))
	assert.JSONEq(t, `"100"`, string(body["price"]))
	assert.JSONEq(t, `1`, string(body["side"]))
	assert.JSONEq(t, `"BTCUSDT"`, string(body["pair_symbol"]))
}

func TestSetStopLossTakeProfitBody(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/set-sl-tp/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{}`))
	})
	adapter := newTestAdapter(t, mux)

	err := adapter.SetStopLossTakeProfit(context.Background(), 9000,
		decimal.NewFromInt(95), decimal.NewFromInt(110))
	require.NoError(t, err)

	assert.JSONEq(t, `9000`, string(body["trader_isolated_margin_id"]))
	assert.JSONEq(t, `"95"`, string(body["sl_price"]))
	assert.JSONEq(t, `"110"`, string(body["tp_price"]))
}

const openOrdersBody = `[
	{"id": 9000, "pair": {"id": 12, "symbol": "BTCUSDT"}, "break_even_point": "100.250000", "state": 4},
	{"id": 9001, "pair": {"id": 13, "symbol": "ETHUSDT"}, "break_even_point": "2500", "state": 1}
]`

func TestOrderFilled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	mux.HandleFunc("/margin/margin-open-orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openOrdersBody))
	})
	adapter := newTestAdapter(t, mux)

	filled, err := adapter.OrderFilled(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, filled)
}

func TestOrderFilledVanishedOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	mux.HandleFunc("/margin/margin-open-orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	adapter := newTestAdapter(t, mux)

	_, err := adapter.OrderFilled(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrOrderNotFoundInActiveOrders)
}

func TestBreakEvenPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-open-orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openOrdersBody))
	})
	adapter := newTestAdapter(t, mux)

	price, err := adapter.BreakEvenPrice(context.Background(), 9000)
	require.NoError(t, err)
	assert.Equal(t, "100.25", price.String())

	_, err = adapter.BreakEvenPrice(context.Background(), 9999)
	assert.ErrorIs(t, err, domain.ErrMarginPositionNotFound)
}

func TestHasActiveOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/margin/margin-account-v2/", detailsHandler(t, btcDetails))
	mux.HandleFunc("/margin/margin-open-orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openOrdersBody))
	})
	adapter := newTestAdapter(t, mux)

	active, err := adapter.HasActiveOrder(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestOrdersHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/orders-history/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		assert.Equal(t, "created", r.URL.Query().Get("ordering"))
		assert.Equal(t, "true", r.URL.Query().Get("desc"))
		w.Write([]byte(`{"orders": [
			{"id": 555, "market_name_link": "BTCUSDT", "side": 1, "amount": "2", "price": "100", "filled_amount": "2", "state": 4}
		]}`))
	})
	adapter := newTestAdapter(t, mux)

	history, err := adapter.OrdersHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(555), history[0].OrderID)
	assert.Equal(t, domain.OrderStateFilled, history[0].State)
}

func TestOrderState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/orders-history/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orders": [
			{"id": 555, "state": 3}
		]}`))
	})
	adapter := newTestAdapter(t, mux)

	state, err := adapter.OrderState(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCanceled, state)

	_, err = adapter.OrderState(context.Background(), 556)
	assert.ErrorIs(t, err, domain.ErrOrderNotFoundInActiveOrders)
}

func TestAuthorizationRejected(t *testing.T) {
	mux := http.NewServeMux()
	srv := newTestServer(t, mux)
	adapter := exchange.NewTabdealAdapter("wrong-hash", "wrong-key", srv.URL, zap.NewNop())

	valid, err := adapter.IsAuthorizationKeyValid(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = adapter.WalletUSDTBalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthorization)
}

func TestAuthorizationValid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/account-preferences/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"theme": "dark"}`))
	})
	adapter := newTestAdapter(t, mux)

	valid, err := adapter.IsAuthorizationKeyValid(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestUnexpectedStatusKeepsDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/wallet/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "short and stout", http.StatusTeapot)
	})
	adapter := newTestAdapter(t, mux)

	_, err := adapter.WalletUSDTBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}

func TestKeepAliveStopsAfterConsecutiveFailures(t *testing.T) {
	var validations atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validations.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	adapter := exchange.NewTabdealAdapter("expired-hash", "expired-key", srv.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := adapter.KeepAlive(ctx, time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	// One validation per cycle; the loop tolerates the threshold and
	// gives up on the cycle after it.
	assert.EqualValues(t, 4, validations.Load())
}

func TestKeepAliveContextCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/account-preferences/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	adapter := newTestAdapter(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := adapter.KeepAlive(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
