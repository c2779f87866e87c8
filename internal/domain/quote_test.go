package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func q(name string, last, bid, ask string) Quote {
	return Quote{
		MarketName: name,
		Last:       decimal.RequireFromString(last),
		Bid:        decimal.RequireFromString(bid),
		Ask:        decimal.RequireFromString(ask),
	}
}

func TestQuoteExceeds(t *testing.T) {
	rate := decimal.RequireFromString("1.15")
	past := q("BTC-LTC", "1.0", "1.0", "1.0")

	tests := []struct {
		name string
		cur  Quote
		want bool
	}{
		{"last 超过阈值", q("BTC-LTC", "1.16", "1.0", "1.0"), true},
		{"bid 超过阈值", q("BTC-LTC", "1.0", "1.16", "1.0"), true},
		{"ask 超过阈值", q("BTC-LTC", "1.0", "1.0", "1.16"), true},
		{"低于阈值", q("BTC-LTC", "1.14", "1.14", "1.14"), false},
		{"等于阈值不触发", q("BTC-LTC", "1.15", "1.15", "1.15"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cur.Exceeds(past, rate); got != tt.want {
				t.Fatalf("Exceeds() = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestQuoteScaledDoesNotMutate(t *testing.T) {
	orig := q("BTC-LTC", "2", "3", "4")
	s := orig.Scaled(decimal.RequireFromString("1.5"))
	if !s.Last.Equal(decimal.RequireFromString("3")) || !s.Ask.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("缩放结果错误: %s", s)
	}
	if !orig.Last.Equal(decimal.RequireFromString("2")) {
		t.Fatal("Scaled 不应修改原值")
	}
}

func TestFloorTo(t *testing.T) {
	got := FloorTo(decimal.RequireFromString("0.123456789"), 8)
	if got.String() != "0.12345678" {
		t.Fatalf("期望 0.12345678，得到 %s", got)
	}
	got = FloorTo(decimal.RequireFromString("0.000000009"), 8)
	if !got.IsZero() {
		t.Fatalf("期望 0，得到 %s", got)
	}
}

func TestSplitMarket(t *testing.T) {
	base, target, err := SplitMarket("BTC-LTC")
	if err != nil || base != "BTC" || target != "LTC" {
		t.Fatalf("SplitMarket 结果错误: %s %s %v", base, target, err)
	}
	if _, _, err := SplitMarket("BTCLTC"); err == nil {
		t.Fatal("缺少分隔符应返回错误")
	}
}
