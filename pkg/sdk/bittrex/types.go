package bittrex

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/lagbot/internal/domain"
)

// envelope v1.1 接口统一的返回包装
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// MarketSummary getmarketsummaries 的单个元素
type MarketSummary struct {
	MarketName     string          `json:"MarketName"`
	High           decimal.Decimal `json:"High"`
	Low            decimal.Decimal `json:"Low"`
	Volume         decimal.Decimal `json:"Volume"`
	Last           decimal.Decimal `json:"Last"`
	BaseVolume     decimal.Decimal `json:"BaseVolume"`
	TimeStamp      string          `json:"TimeStamp"`
	Bid            decimal.Decimal `json:"Bid"`
	Ask            decimal.Decimal `json:"Ask"`
	OpenBuyOrders  int             `json:"OpenBuyOrders"`
	OpenSellOrders int             `json:"OpenSellOrders"`
	PrevDay        decimal.Decimal `json:"PrevDay"`
}

func (s MarketSummary) Quote() domain.Quote {
	return domain.Quote{MarketName: s.MarketName, Last: s.Last, Bid: s.Bid, Ask: s.Ask}
}

// Ticker getticker 结果
type Ticker struct {
	Bid  decimal.Decimal `json:"Bid"`
	Ask  decimal.Decimal `json:"Ask"`
	Last decimal.Decimal `json:"Last"`
}

// Balance getbalance 结果
type Balance struct {
	Currency      string          `json:"Currency"`
	Balance       decimal.Decimal `json:"Balance"`
	Available     decimal.Decimal `json:"Available"`
	Pending       decimal.Decimal `json:"Pending"`
	CryptoAddress *string         `json:"CryptoAddress"`
}

type orderRef struct {
	UUID string `json:"uuid"`
}

// Order getorder 结果
type Order struct {
	OrderUUID         string          `json:"OrderUuid"`
	Exchange          string          `json:"Exchange"`
	Type              string          `json:"Type"`
	Quantity          decimal.Decimal `json:"Quantity"`
	QuantityRemaining decimal.Decimal `json:"QuantityRemaining"`
	Limit             decimal.Decimal `json:"Limit"`
	PricePerUnit      decimal.Decimal `json:"PricePerUnit"`
	CommissionPaid    decimal.Decimal `json:"CommissionPaid"`
	IsOpen            bool            `json:"IsOpen"`
	CancelInitiated   bool            `json:"CancelInitiated"`
	Opened            string          `json:"Opened"`
	Closed            *string         `json:"Closed"`
}

// 交易所返回的时间没有时区，按 UTC 处理
const timeLayout = "2006-01-02T15:04:05.999999999"

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (o Order) domain() domain.Order {
	out := domain.Order{
		ID:                o.OrderUUID,
		Market:            o.Exchange,
		Quantity:          o.Quantity,
		QuantityRemaining: o.QuantityRemaining,
		Limit:             o.Limit,
		PricePerUnit:      o.PricePerUnit,
		IsOpen:            o.IsOpen,
	}
	switch {
	case strings.HasSuffix(o.Type, "BUY"):
		out.Side = domain.SideBuy
	case strings.HasSuffix(o.Type, "SELL"):
		out.Side = domain.SideSell
	}
	if o.Closed != nil && *o.Closed != "" {
		closed := parseTime(*o.Closed)
		out.Closed = &closed
	}
	return out
}
