package exchange

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/tabdeal_margin/internal/domain"
)

// marginAssetDetails is the response of the margin account details endpoint.
type marginAssetDetails struct {
	ID             int64       `json:"id"`
	Pair           pairDetails `json:"pair"`
	BorrowActive   bool        `json:"borrow_active"`
	TransferActive bool        `json:"transfer_active"`
	MarginActive   bool        `json:"margin_active"`
	// Balances of the isolated account: first currency is the traded
	// asset, second currency is USDT.
	FirstCurrencyBalance  decimal.Decimal `json:"first_currency_balance"`
	SecondCurrencyBalance decimal.Decimal `json:"second_currency_balance"`
	// FirstCurrencyPrecision is the volume precision; PricePrecision zero
	// means fractional price ticks are allowed for this symbol.
	FirstCurrencyPrecision int `json:"first_currency_precision"`
	PricePrecision         int `json:"price_precision"`
}

type pairDetails struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// marginOpenOrder is one entry of the all-open-margin-orders response. The
// entry id is the isolated margin account id, not an order id.
type marginOpenOrder struct {
	ID             int64           `json:"id"`
	Pair           pairDetails     `json:"pair"`
	BreakEvenPoint decimal.Decimal `json:"break_even_point"`
	OrderState     int             `json:"state"`
}

func (o marginOpenOrder) toDomain() domain.OpenPosition {
	return domain.OpenPosition{
		AssetID:        o.ID,
		PairID:         o.Pair.ID,
		BreakEvenPoint: domain.NormalizeDecimal(o.BreakEvenPoint),
		State:          domain.OrderState(o.OrderState),
	}
}

// walletDetails carries the main wallet balances. The endpoint returns more
// currencies than modeled here; unknown fields are ignored.
type walletDetails struct {
	TetherUS decimal.Decimal `json:"TetherUS"`
}

// openMarginOrderRequest is the order placement body.
type openMarginOrderRequest struct {
	PairSymbol   string          `json:"pair_symbol"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	Side         int             `json:"side"`
	MarginLevel  decimal.Decimal `json:"margin_level"`
	AccountGenre string          `json:"account_genre"`
}

type openMarginOrderResponse struct {
	ID    int64 `json:"id"`
	State int   `json:"state"`
}

// transferToMarginRequest moves USDT from the main wallet into an isolated
// margin asset. The endpoint addresses the pair in Tabdeal notation
// (BTC_USDT) and carries a constant zero in the amount field.
type transferToMarginRequest struct {
	Amount                 int             `json:"amount"`
	CurrencySymbol         string          `json:"currency_symbol"`
	TransferAmountFromMain decimal.Decimal `json:"transfer_amount_from_main"`
	PairSymbol             string          `json:"pair_symbol"`
}

// transferFromMarginRequest moves USDT out of an isolated margin asset back
// to the main wallet. Unlike the deposit direction, this endpoint takes the
// isolated symbol (BTCUSDT) as the pair symbol.
type transferFromMarginRequest struct {
	TransferDirection string          `json:"transfer_direction"`
	Amount            decimal.Decimal `json:"amount"`
	CurrencySymbol    string          `json:"currency_symbol"`
	AccountGenre      string          `json:"account_genre"`
	OtherAccountGenre string          `json:"other_account_genre"`
	PairSymbol        string          `json:"pair_symbol"`
}

type setSLTPRequest struct {
	TraderIsolatedMarginID int64           `json:"trader_isolated_margin_id"`
	StopLossPrice          decimal.Decimal `json:"sl_price"`
	TakeProfitPrice        decimal.Decimal `json:"tp_price"`
}

// historyOrder is one entry of the orders history response.
type historyOrder struct {
	ID             int64           `json:"id"`
	MarketNameLink string          `json:"market_name_link"`
	Side           int             `json:"side"`
	Amount         decimal.Decimal `json:"amount"`
	Price          decimal.Decimal `json:"price"`
	FilledAmount   decimal.Decimal `json:"filled_amount"`
	State          int             `json:"state"`
}

type ordersHistoryResponse struct {
	Orders []historyOrder `json:"orders"`
}

// OrderHistoryEntry is one past order of the account, normalized for
// callers outside this package.
type OrderHistoryEntry struct {
	OrderID      int64
	MarketName   string
	Side         domain.OrderSide
	Amount       decimal.Decimal
	Price        decimal.Decimal
	FilledAmount decimal.Decimal
	State        domain.OrderState
}

func (o historyOrder) toEntry() OrderHistoryEntry {
	return OrderHistoryEntry{
		OrderID:      o.ID,
		MarketName:   o.MarketNameLink,
		Side:         domain.OrderSide(o.Side),
		Amount:       domain.NormalizeDecimal(o.Amount),
		Price:        domain.NormalizeDecimal(o.Price),
		FilledAmount: domain.NormalizeDecimal(o.FilledAmount),
		State:        domain.OrderState(o.State),
	}
}
