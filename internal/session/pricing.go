package session

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/lagbot/internal/domain"
)

// Pricing 买卖定价规则，所有结果按 Precision 向下取整
type Pricing struct {
	Precision   int32
	Commission  decimal.Decimal
	BuyBefore   decimal.Decimal // 信号前 Ask 的买入倍数
	BuyAfter    decimal.Decimal // 信号后 Ask 的买入倍数
	SellBefore  decimal.Decimal
	SellAfter   decimal.Decimal
	SellCurrent decimal.Decimal // 最新 Bid 的卖出倍数
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultPricing 默认定价参数
func DefaultPricing() Pricing {
	return Pricing{
		Precision:   8,
		Commission:  d("0.0025"),
		BuyBefore:   d("1.75"),
		BuyAfter:    d("1.15"),
		SellBefore:  d("2.25"),
		SellAfter:   d("1.5"),
		SellCurrent: d("0.925"),
	}
}

func (p Pricing) floor(v decimal.Decimal) decimal.Decimal {
	return domain.FloorTo(v, p.Precision)
}

// BuyOrder 计算买单：扣除手续费后的实际花费、限价和数量
func (p Pricing) BuyOrder(plan domain.ChunkPlan) (actual, rate, quantity decimal.Decimal) {
	actual = p.floor(plan.SourceAmount.Div(decimal.NewFromInt(1).Add(p.Commission)))
	rate = p.floor(decimal.Min(
		plan.BeforeSignalRate.Mul(p.BuyBefore),
		plan.AfterSignalRate.Mul(p.BuyAfter),
	))
	if rate.Sign() <= 0 {
		return actual, decimal.Zero, decimal.Zero
	}
	quantity = p.floor(actual.Div(rate))
	return actual, rate, quantity
}

// SellRate 第 attempt 次卖出（从 0 开始）的限价。
// 非 ASAP 的第 0 次取三者最大，第 1 次取三者最小，其余只按最新 Bid 定价。
func (p Pricing) SellRate(attempt int, asap bool, plan domain.ChunkPlan, bid decimal.Decimal) decimal.Decimal {
	current := bid.Mul(p.SellCurrent)
	if asap || attempt >= 2 {
		return p.floor(current)
	}
	before := plan.BeforeSignalRate.Mul(p.SellBefore)
	after := plan.AfterSignalRate.Mul(p.SellAfter)
	if attempt == 0 {
		return p.floor(decimal.Max(before, after, current))
	}
	return p.floor(decimal.Min(before, after, current))
}
