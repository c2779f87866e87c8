package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/exchangetest"
	"github.com/betbot/lagbot/internal/ports"
)

const market = "BTC-LTC"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPaper(btc string) (*Exchange, *exchangetest.Exchange) {
	src := exchangetest.New()
	src.SetTicker(exchangetest.Quote(market, "0.001", "0.001", "0.0011"))
	logger, _ := logtest.NewNullLogger()
	return New(src, map[string]decimal.Decimal{"BTC": d(btc)}, d("0.0025"), logrus.NewEntry(logger)), src
}

func balance(t *testing.T, e *Exchange, c string) domain.Balance {
	t.Helper()
	b, err := e.GetBalance(context.Background(), c)
	require.NoError(t, err)
	return b
}

func TestPaper_BuyFillsWhenAskAtOrBelowLimit(t *testing.T) {
	e, _ := newPaper("1")
	ctx := context.Background()

	id, err := e.PlaceBuyOrder(ctx, domain.OrderSpec{Market: market, Quantity: d("100"), Rate: d("0.0011")})
	require.NoError(t, err)

	// 冻结 100 × 0.0011 × 1.0025
	b := balance(t, e, "BTC")
	assert.True(t, b.Available.Equal(d("0.889725")), "available %s", b.Available)
	assert.True(t, b.Balance.Equal(d("1")))

	o, err := e.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.IsClosed())
	assert.True(t, o.Filled().Equal(d("100")))
	assert.True(t, o.PricePerUnit.Equal(d("0.0011")))
	assert.True(t, balance(t, e, "LTC").Available.Equal(d("100")))
	assert.True(t, balance(t, e, "BTC").Balance.Equal(d("0.889725")))
}

func TestPaper_RestingOrderCanBeCancelled(t *testing.T) {
	e, _ := newPaper("1")
	ctx := context.Background()

	id, err := e.PlaceBuyOrder(ctx, domain.OrderSpec{Market: market, Quantity: d("100"), Rate: d("0.0005")})
	require.NoError(t, err)

	o, err := e.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, o.IsClosed())

	require.NoError(t, e.CancelOrder(ctx, id))
	assert.True(t, balance(t, e, "BTC").Available.Equal(d("1")), "撤单后资金解冻")

	o, err = e.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.IsClosed())
	assert.True(t, o.Filled().IsZero())

	err = e.CancelOrder(ctx, id)
	assert.ErrorIs(t, err, ports.ErrCancelFailed, "已关闭的订单不能再撤")
}

func TestPaper_SellFillsWhenBidAtOrAboveLimit(t *testing.T) {
	e, src := newPaper("0")
	ctx := context.Background()
	e.available["LTC"] = d("100")

	id, err := e.PlaceSellOrder(ctx, domain.OrderSpec{Market: market, Quantity: d("100"), Rate: d("0.002")})
	require.NoError(t, err)
	o, err := e.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, o.IsClosed())

	src.SetTicker(exchangetest.Quote(market, "0.002", "0.002", "0.0021"))
	o, err = e.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.IsClosed())
	// 100 × 0.002 × (1 - 0.0025)
	assert.True(t, balance(t, e, "BTC").Available.Equal(d("0.1995")))
	assert.True(t, balance(t, e, "LTC").Balance.IsZero())
}

func TestPaper_Rejections(t *testing.T) {
	e, _ := newPaper("0.01")
	ctx := context.Background()

	_, err := e.PlaceBuyOrder(ctx, domain.OrderSpec{Market: market, Quantity: d("100"), Rate: d("0.0011")})
	assert.ErrorIs(t, err, ports.ErrOrderRejected)

	_, err = e.PlaceSellOrder(ctx, domain.OrderSpec{Market: market, Quantity: d("1"), Rate: d("0.001")})
	assert.ErrorIs(t, err, ports.ErrOrderRejected, "没有 LTC")

	_, err = e.PlaceBuyOrder(ctx, domain.OrderSpec{Market: "BTCLTC", Quantity: d("1"), Rate: d("0.001")})
	assert.ErrorIs(t, err, ports.ErrOrderRejected)

	_, err = e.GetOrder(ctx, "missing")
	assert.Error(t, err)
}
