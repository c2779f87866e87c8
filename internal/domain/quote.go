package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quote 单个市场在某一轮询周期的行情快照（不可变值）
type Quote struct {
	MarketName string          // 例如 BTC-LTC
	Last       decimal.Decimal // 最新成交价
	Bid        decimal.Decimal // 买一
	Ask        decimal.Decimal // 卖一
}

// Scaled 返回三项价格都乘以 rate 的副本；原值不变
func (q Quote) Scaled(rate decimal.Decimal) Quote {
	return Quote{
		MarketName: q.MarketName,
		Last:       q.Last.Mul(rate),
		Bid:        q.Bid.Mul(rate),
		Ask:        q.Ask.Mul(rate),
	}
}

// Exceeds 判断 q 是否严格高于 past 按 rate 放大后的任一价格（Last/Bid/Ask 任一即可）
func (q Quote) Exceeds(past Quote, rate decimal.Decimal) bool {
	s := past.Scaled(rate)
	return q.Last.GreaterThan(s.Last) ||
		q.Bid.GreaterThan(s.Bid) ||
		q.Ask.GreaterThan(s.Ask)
}

func (q Quote) String() string {
	return fmt.Sprintf("%s last=%s bid=%s ask=%s", q.MarketName, q.Last, q.Bid, q.Ask)
}

// SplitMarket 拆分 "BTC-LTC" 为 (BTC, LTC)
func SplitMarket(name string) (base, target string, err error) {
	parts := strings.SplitN(name, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("无效的市场名称: %q", name)
	}
	return parts[0], parts[1], nil
}

// FloorTo 按 precision 位小数向下取整（交易所对价格和数量的精度要求）
func FloorTo(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.RoundFloor(precision)
}
