package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/exchangetest"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/clock"
)

const ltc = "BTC-LTC"

func flat(market, v string) domain.Quote {
	return exchangetest.Quote(market, v, v, v)
}

// cycles 为单个市场构造逐周期行情
func cycles(market string, vals ...string) [][]domain.Quote {
	out := make([][]domain.Quote, 0, len(vals))
	for _, v := range vals {
		if v == "" {
			out = append(out, []domain.Quote{flat("BTC-ETH", "1")})
			continue
		}
		out = append(out, []domain.Quote{flat(market, v)})
	}
	return out
}

func newDetector(t *testing.T, ex ports.QuoteSource, cfg Config) (*Detector, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC))
	logger, _ := logtest.NewNullLogger()
	if cfg.Prefix == "" {
		cfg.Prefix = "BTC"
	}
	return New(cfg, ex, clk, logrus.NewEntry(logger)), clk
}

func tickAll(t *testing.T, d *Detector, n int) [][]domain.Signal {
	t.Helper()
	out := make([][]domain.Signal, 0, n)
	for i := 0; i < n; i++ {
		sigs, err := d.OnTick(context.Background())
		require.NoError(t, err)
		out = append(out, sigs)
	}
	return out
}

func TestDetector_RateThresholdExample(t *testing.T) {
	rate := decimal.RequireFromString("1.15")

	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1.0", "1.0", "1.16")
	d, _ := newDetector(t, ex, Config{Rate: rate, MaxLength: 2})
	res := tickAll(t, d, 3)
	assert.Empty(t, res[0], "首次出现不应触发")
	assert.Empty(t, res[1])
	require.Len(t, res[2], 1)
	sig := res[2][0]
	assert.Equal(t, ltc, sig.MarketName)
	assert.Equal(t, 0, sig.HistoryIndex)
	assert.Equal(t, int64(2), sig.Cycle)
	assert.True(t, sig.Past.Last.Equal(decimal.RequireFromString("1.0")))

	ex = exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1.0", "1.0", "1.14")
	d, _ = newDetector(t, ex, Config{Rate: rate, MaxLength: 2})
	res = tickAll(t, d, 3)
	assert.Empty(t, res[2], "1.14 不应触发")
}

func TestDetector_TieDoesNotTrigger(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1.0", "1.15")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})
	res := tickAll(t, d, 2)
	assert.Empty(t, res[1])
}

func TestDetector_HistoryCapped(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1", "1", "1", "1", "1")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})
	for i := 0; i < 5; i++ {
		_, err := d.OnTick(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, d.Stats().HistoryLen, 2)
	}
	assert.Equal(t, 2, d.Stats().HistoryLen)
	assert.Equal(t, int64(5), d.Stats().Cycles)
}

func TestDetector_PendingSuppressesRetrigger(t *testing.T) {
	ex := exchangetest.New()
	// 触发后 3 个保留周期内被抑制；之后历史已被高价填满，需要更高的价格才会再次触发
	ex.QuoteCycles = cycles(ltc, "1", "1", "2", "3", "3", "3", "3", "4")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})

	var got []int64
	for _, sigs := range tickAll(t, d, 8) {
		for _, s := range sigs {
			got = append(got, s.Cycle)
		}
	}
	assert.Equal(t, []int64{2, 7}, got)
}

func TestDetector_PendingOnlyDecaysWhenRetained(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1", "1", "2", "", "", "2")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})

	tickAll(t, d, 3)
	assert.Equal(t, 3, d.Stats().Pending[ltc])

	tickAll(t, d, 2)
	assert.Equal(t, 3, d.Stats().Pending[ltc], "市场缺席的周期不应递减")

	tickAll(t, d, 1)
	assert.Equal(t, 2, d.Stats().Pending[ltc])
}

func TestDetector_PrefixFilter(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = [][]domain.Quote{
		{flat("ETH-LTC", "1"), flat(ltc, "1")},
		{flat("ETH-LTC", "9"), flat(ltc, "1")},
	}
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})
	res := tickAll(t, d, 2)
	assert.Empty(t, res[1])
}

func TestDetector_FetchErrorCommitsNothing(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})
	tickAll(t, d, 1)

	ex.ErrorOnNext["AllQuotes"] = errors.New("502 bad gateway")
	_, err := d.OnTick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDataSource)

	st := d.Stats()
	assert.Equal(t, 1, st.HistoryLen)
	assert.Equal(t, int64(1), st.Cycles)
	assert.NotEmpty(t, st.LastError)
}

func TestDetector_CompareModes(t *testing.T) {
	quotes := cycles(ltc, "1.0", "0.5", "0.9")
	rate := decimal.RequireFromString("1.15")

	ex := exchangetest.New()
	ex.QuoteCycles = quotes
	d, _ := newDetector(t, ex, Config{Rate: rate, MaxLength: 2, CompareMode: CompareOldest})
	res := tickAll(t, d, 3)
	assert.Empty(t, res[2], "oldest 模式只与最早快照比较")

	ex = exchangetest.New()
	ex.QuoteCycles = quotes
	d, _ = newDetector(t, ex, Config{Rate: rate, MaxLength: 2, CompareMode: CompareAny})
	res = tickAll(t, d, 3)
	require.Len(t, res[2], 1)
	assert.Equal(t, 1, res[2][0].HistoryIndex)
}

func TestDetector_Find(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1", "1", "1", "2")
	d, clk := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 3, Interval: time.Second})

	sig, err := d.Find(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, ltc, sig.MarketName)
	assert.Equal(t, 3*time.Second, clk.Slept())
	assert.Equal(t, 3, d.Stats().HistoryLen, "触发周期不写入历史")
}

func TestDetector_FindToleratesErrors(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1", "2")
	ex.ErrorOnNext["AllQuotes"] = errors.New("timeout")

	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2})
	_, err := d.Find(context.Background())
	assert.ErrorIs(t, err, ports.ErrDataSource)

	ex = exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1", "2")
	ex.ErrorOnNext["AllQuotes"] = errors.New("timeout")
	d, _ = newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15"), MaxLength: 2, MaxConsecutiveErrors: 1})
	sig, err := d.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ltc, sig.MarketName)
}

func TestDetector_FindCanceled(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = cycles(ltc, "1")
	d, _ := newDetector(t, ex, Config{Rate: decimal.RequireFromString("1.15")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Find(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_RunReportsSignalsAndProgress(t *testing.T) {
	ex := exchangetest.New()
	ex.QuoteCycles = [][]domain.Quote{
		{flat(ltc, "1"), flat("BTC-ETH", "1")},
		{flat(ltc, "2"), flat("BTC-ETH", "2")},
		{flat(ltc, "2"), flat("BTC-ETH", "2")},
	}
	clk := clock.NewFake(time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC))
	logger, hook := logtest.NewNullLogger()
	d := New(Config{Prefix: "BTC", Rate: decimal.RequireFromString("1.15"), MaxLength: 2, ProgressEvery: 2}, ex, clk, logrus.NewEntry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	d.OnSignal(func(s domain.Signal) { got = append(got, s.MarketName) })
	clk.OnAdvance(func(time.Time) {
		if d.Stats().Cycles >= 4 {
			cancel()
		}
	})

	require.NoError(t, d.Run(ctx))
	assert.Equal(t, []string{"BTC-ETH", ltc}, got, "连续模式报告所有市场，按名称排序")

	progress := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "已完成 2 个周期，待定市场 2 个" || e.Message == "已完成 4 个周期，待定市场 2 个" {
			progress++
		}
	}
	assert.Equal(t, 2, progress)
}
