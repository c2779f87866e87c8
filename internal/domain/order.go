package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderSpec 下单参数（限价单）
type OrderSpec struct {
	Market   string
	Side     Side
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// Order 交易所返回的订单状态
type Order struct {
	ID                string
	Market            string
	Side              Side
	Quantity          decimal.Decimal
	QuantityRemaining decimal.Decimal
	Limit             decimal.Decimal
	PricePerUnit      decimal.Decimal // 成交均价，未成交为 0
	IsOpen            bool
	Closed            *time.Time // 关闭时间，nil 表示交易所尚未关闭
}

// IsClosed 订单已关闭：交易所给出关闭时间，或不再处于开放状态
func (o Order) IsClosed() bool {
	return o.Closed != nil || !o.IsOpen
}

// Filled 已成交数量
func (o Order) Filled() decimal.Decimal {
	return o.Quantity.Sub(o.QuantityRemaining)
}

// SettledOrder 订单生命周期结束后的结算结果
type SettledOrder struct {
	OrderID          string
	Market           string
	Side             Side
	Quantity         decimal.Decimal
	Filled           decimal.Decimal
	Remaining        decimal.Decimal
	PricePerUnit     decimal.Decimal
	Polls            int  // 监控阶段实际轮询次数
	DeadlineExceeded bool // 因截止时间而撤单
	Cancelled        bool // 发出过撤单请求
	CancelFailed     bool // 撤单失败（按已关闭处理）
}

// Balance 账户余额
type Balance struct {
	Currency  string
	Balance   decimal.Decimal
	Available decimal.Decimal
	Pending   decimal.Decimal
}
