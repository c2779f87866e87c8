package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/metrics"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/clock"
)

// ErrUnknownOrderState 监控或结算阶段读取订单失败，无法确定成交情况
var ErrUnknownOrderState = errors.New("unable to determine order state")

// Options 单个订单的生命周期参数
type Options struct {
	Deadline     time.Time // 零值表示不设截止时间
	MaxPolls     int
	PollInterval time.Duration
}

// Controller 订单生命周期：下单 → 监控 → (关闭 | 撤单) → 结算。
//
// 状态机：
//   - Placing: 下单失败直接返回 ErrOrderRejected，不重试
//   - Monitoring: 最多 MaxPolls 次 GetOrder；每次轮询前检查截止时间
//   - Cancelling: 撤单成功或失败都视为已关闭（失败按隐式关闭处理）
//   - Settled: 恰好一次结算读取
type Controller struct {
	account ports.Account
	clock   clock.Clock
	log     *logrus.Entry
}

func NewController(account ports.Account, clk clock.Clock, log *logrus.Entry) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{account: account, clock: clk, log: log}
}

func label(side domain.Side) string {
	return "[" + strings.ToUpper(string(side)) + "]"
}

// Run 执行一个订单的完整生命周期。
// 交易所调用和轮询睡眠不受 ctx 取消影响：订单一旦挂出就必须走到结算。
func (c *Controller) Run(ctx context.Context, spec domain.OrderSpec, opts Options) (domain.SettledOrder, error) {
	ctx = context.WithoutCancel(ctx)
	tag := label(spec.Side)
	side := string(spec.Side)
	log := c.log.WithFields(logrus.Fields{"market": spec.Market, "side": side})

	settled := domain.SettledOrder{
		Market:    spec.Market,
		Side:      spec.Side,
		Quantity:  spec.Quantity,
		Remaining: spec.Quantity,
	}

	orderID, err := c.place(ctx, spec)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(side).Inc()
		log.Errorf("%s 下单失败: 数量 %s 价格 %s: %v", tag, spec.Quantity, spec.Rate, err)
		if !errors.Is(err, ports.ErrOrderRejected) {
			err = fmt.Errorf("%w: %w", ports.ErrOrderRejected, err)
		}
		return settled, err
	}
	metrics.OrdersPlaced.WithLabelValues(side).Inc()
	settled.OrderID = orderID
	log = log.WithField("order_id", orderID)
	log.Infof("%s 已下单: 数量 %s 价格 %s", tag, spec.Quantity, spec.Rate)

	// Monitoring
	remaining := spec.Quantity
	closed := false
	for settled.Polls < opts.MaxPolls {
		if !opts.Deadline.IsZero() && c.clock.Now().After(opts.Deadline) {
			settled.DeadlineExceeded = true
			log.Warnf("%s 已超过截止时间，尽快撤单", tag)
			break
		}

		settled.Polls++
		log.Debugf("%s 第 %d 次查询订单", tag, settled.Polls)
		order, err := c.account.GetOrder(ctx, orderID)
		if err != nil {
			log.Errorf("%s 查询订单失败，尝试撤单: %v", tag, err)
			if cerr := c.account.CancelOrder(ctx, orderID); cerr != nil {
				log.Warnf("%s 撤单失败: %v", tag, cerr)
			}
			return settled, fmt.Errorf("%w: 订单 %s: %w", ErrUnknownOrderState, orderID, err)
		}
		if order.IsClosed() {
			closed = true
			log.Infof("%s 订单已关闭: 数量 %s 价格 %s", tag, spec.Quantity, spec.Rate)
			break
		}
		if !order.QuantityRemaining.Equal(remaining) {
			remaining = order.QuantityRemaining
			log.Warnf("%s 部分成交，剩余 %s，价格 %s", tag, remaining, spec.Rate)
		} else {
			log.Warnf("%s 停滞，剩余 %s，价格 %s", tag, remaining, spec.Rate)
		}
		if err := c.clock.Sleep(ctx, opts.PollInterval); err != nil {
			return settled, err
		}
	}

	// Cancelling
	if !closed {
		settled.Cancelled = true
		log.Warnf("%s 等待过久，撤单", tag)
		if err := c.account.CancelOrder(ctx, orderID); err != nil {
			// 撤单失败通常意味着订单已经成交关闭
			settled.CancelFailed = true
			metrics.OrderCancels.WithLabelValues(side, "failed").Inc()
			log.Infof("%s 撤单失败，视为已关闭: %v", tag, err)
		} else {
			metrics.OrderCancels.WithLabelValues(side, "ok").Inc()
		}
	}

	// Settled
	final, err := c.account.GetOrder(ctx, orderID)
	if err != nil {
		return settled, fmt.Errorf("%w: 结算订单 %s: %w", ErrUnknownOrderState, orderID, err)
	}
	quantity := final.Quantity
	if quantity.IsZero() {
		quantity = spec.Quantity
	}
	settled.Quantity = quantity
	settled.Remaining = final.QuantityRemaining
	settled.Filled = decimal.Max(quantity.Sub(final.QuantityRemaining), decimal.Zero)
	settled.PricePerUnit = final.PricePerUnit
	log.Infof("%s 结算: 成交 %s / %s，均价 %s", tag, settled.Filled, quantity, settled.PricePerUnit)
	return settled, nil
}

func (c *Controller) place(ctx context.Context, spec domain.OrderSpec) (string, error) {
	switch spec.Side {
	case domain.SideBuy:
		return c.account.PlaceBuyOrder(ctx, spec)
	case domain.SideSell:
		return c.account.PlaceSellOrder(ctx, spec)
	default:
		return "", fmt.Errorf("%w: 未知的订单方向 %q", ports.ErrOrderRejected, spec.Side)
	}
}
