// Package paper 纸交易：行情来自真实数据源，订单在内存中撮合，不触碰真实账户
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
)

type paperOrder struct {
	order    domain.Order
	base     string // 计价货币（BTC）
	target   string
	reserved decimal.Decimal // 下单时冻结的资金（买单冻结 base，卖单冻结 target）
}

// Exchange 纸交易所：买单在 Ask <= 限价时、卖单在 Bid >= 限价时按限价全部成交
type Exchange struct {
	quotes     ports.QuoteSource
	commission decimal.Decimal
	log        *logrus.Entry

	mu        sync.Mutex
	available map[string]decimal.Decimal
	reserved  map[string]decimal.Decimal
	orders    map[string]*paperOrder
	now       func() time.Time
	newID     func() string
}

var _ ports.Exchange = (*Exchange)(nil)

// New 创建纸交易所，initial 为各币种初始可用余额
func New(quotes ports.QuoteSource, initial map[string]decimal.Decimal, commission decimal.Decimal, log *logrus.Entry) *Exchange {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	available := make(map[string]decimal.Decimal, len(initial))
	for k, v := range initial {
		available[k] = v
	}
	return &Exchange{
		quotes:     quotes,
		commission: commission,
		log:        log,
		available:  available,
		reserved:   make(map[string]decimal.Decimal),
		orders:     make(map[string]*paperOrder),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetNowFunc 替换时间源
func (e *Exchange) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

func (e *Exchange) AllQuotes(ctx context.Context) ([]domain.Quote, error) {
	return e.quotes.AllQuotes(ctx)
}

func (e *Exchange) Quote(ctx context.Context, market string) (domain.Quote, error) {
	return e.quotes.Quote(ctx, market)
}

func (e *Exchange) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	avail := e.available[currency]
	return domain.Balance{
		Currency:  currency,
		Balance:   avail.Add(e.reserved[currency]),
		Available: avail,
	}, nil
}

func (e *Exchange) PlaceBuyOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	spec.Side = domain.SideBuy
	return e.place(spec)
}

func (e *Exchange) PlaceSellOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	spec.Side = domain.SideSell
	return e.place(spec)
}

func (e *Exchange) place(spec domain.OrderSpec) (string, error) {
	base, target, err := domain.SplitMarket(spec.Market)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderRejected, err)
	}
	if spec.Quantity.Sign() <= 0 || spec.Rate.Sign() <= 0 {
		return "", fmt.Errorf("%w: 数量 %s 或价格 %s 无效", ports.ErrOrderRejected, spec.Quantity, spec.Rate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	currency, need := target, spec.Quantity
	if spec.Side == domain.SideBuy {
		currency = base
		need = spec.Quantity.Mul(spec.Rate).Mul(decimal.NewFromInt(1).Add(e.commission))
	}
	if e.available[currency].LessThan(need) {
		return "", fmt.Errorf("%w: INSUFFICIENT_FUNDS %s 需要 %s，可用 %s", ports.ErrOrderRejected, currency, need, e.available[currency])
	}
	e.available[currency] = e.available[currency].Sub(need)
	e.reserved[currency] = e.reserved[currency].Add(need)

	id := e.newID()
	e.orders[id] = &paperOrder{
		order: domain.Order{
			ID:                id,
			Market:            spec.Market,
			Side:              spec.Side,
			Quantity:          spec.Quantity,
			QuantityRemaining: spec.Quantity,
			Limit:             spec.Rate,
			IsOpen:            true,
		},
		base:     base,
		target:   target,
		reserved: need,
	}
	e.log.Infof("📝 [纸交易] 模拟下单: orderID=%s, market=%s, side=%s, rate=%s, quantity=%s",
		id, spec.Market, spec.Side, spec.Rate, spec.Quantity)
	return id, nil
}

// GetOrder 读取订单；仍然挂着的订单先按最新行情尝试撮合
func (e *Exchange) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	open := ok && o.order.IsOpen
	e.mu.Unlock()
	if !ok {
		return domain.Order{}, fmt.Errorf("INVALID_ORDER: %s", orderID)
	}

	if open {
		q, err := e.quotes.Quote(ctx, o.order.Market)
		if err != nil {
			return domain.Order{}, err
		}
		e.mu.Lock()
		if o.order.IsOpen && crosses(o.order, q) {
			e.fill(o)
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return o.order, nil
}

func crosses(o domain.Order, q domain.Quote) bool {
	if o.Side == domain.SideBuy {
		return q.Ask.Sign() > 0 && q.Ask.LessThanOrEqual(o.Limit)
	}
	return q.Bid.Sign() > 0 && q.Bid.GreaterThanOrEqual(o.Limit)
}

// fill 按限价全部成交（调用方持锁）
func (e *Exchange) fill(o *paperOrder) {
	qty := o.order.Quantity
	proceeds := qty.Mul(o.order.Limit)
	one := decimal.NewFromInt(1)
	if o.order.Side == domain.SideBuy {
		e.reserved[o.base] = e.reserved[o.base].Sub(o.reserved)
		e.available[o.target] = e.available[o.target].Add(qty)
	} else {
		e.reserved[o.target] = e.reserved[o.target].Sub(o.reserved)
		e.available[o.base] = e.available[o.base].Add(proceeds.Mul(one.Sub(e.commission)))
	}
	closed := e.now()
	o.order.QuantityRemaining = decimal.Zero
	o.order.PricePerUnit = o.order.Limit
	o.order.IsOpen = false
	o.order.Closed = &closed
	o.reserved = decimal.Zero
	e.log.Infof("📝 [纸交易] 订单成交: orderID=%s, quantity=%s, rate=%s", o.order.ID, qty, o.order.Limit)
}

func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: INVALID_ORDER %s", ports.ErrCancelFailed, orderID)
	}
	if !o.order.IsOpen {
		return fmt.Errorf("%w: ORDER_NOT_OPEN %s", ports.ErrCancelFailed, orderID)
	}

	currency := o.target
	if o.order.Side == domain.SideBuy {
		currency = o.base
	}
	e.reserved[currency] = e.reserved[currency].Sub(o.reserved)
	e.available[currency] = e.available[currency].Add(o.reserved)
	o.reserved = decimal.Zero

	closed := e.now()
	o.order.IsOpen = false
	o.order.Closed = &closed
	e.log.Infof("📝 [纸交易] 模拟取消订单: orderID=%s", orderID)
	return nil
}
