package bittrex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
)

const (
	testKey    = "k-123"
	testSecret = "s-456"
)

type fakeServer struct {
	t        *testing.T
	mu       sync.Mutex
	requests []*http.Request
	routes   map[string]string // path -> 响应 body
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r)
	body, ok := s.routes[r.URL.Path]
	s.mu.Unlock()

	if r.URL.Query().Get("apikey") != "" {
		uri := "http://" + r.Host + r.URL.RequestURI()
		if r.Header.Get("apisign") != Sign(testSecret, uri) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"success":false,"message":"APISIGN_NOT_PROVIDED","result":null}`)
			return
		}
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func (s *fakeServer) last() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestClient(t *testing.T, routes map[string]string) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{t: t, routes: routes}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		BaseURL:           srv.URL + "/",
		APIKey:            testKey,
		APISecret:         testSecret,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	})
	return c, fs
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSign(t *testing.T) {
	// HMAC-SHA512 十六进制输出固定 128 个字符
	sig := Sign("secret", "https://bittrex.com/api/v1.1/account/getbalance?apikey=a&currency=BTC&nonce=1")
	assert.Len(t, sig, 128)
	assert.Equal(t, sig, Sign("secret", "https://bittrex.com/api/v1.1/account/getbalance?apikey=a&currency=BTC&nonce=1"))
	assert.NotEqual(t, sig, Sign("other", "https://bittrex.com/api/v1.1/account/getbalance?apikey=a&currency=BTC&nonce=1"))
}

func TestClient_AllQuotes(t *testing.T) {
	c, fs := newTestClient(t, map[string]string{
		pathMarketSummaries: `{"success":true,"message":"","result":[
			{"MarketName":"BTC-LTC","High":0.02,"Low":0.01,"Volume":100,"Last":0.0123,"BaseVolume":1.5,"TimeStamp":"2017-12-01T16:00:00.1","Bid":0.0122,"Ask":0.0124,"OpenBuyOrders":10,"OpenSellOrders":12,"PrevDay":0.011},
			{"MarketName":"ETH-OMG","Last":0.5,"Bid":0.49,"Ask":0.51}
		]}`,
	})

	quotes, err := c.AllQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC-LTC", quotes[0].MarketName)
	assert.True(t, quotes[0].Last.Equal(d("0.0123")))
	assert.True(t, quotes[0].Bid.Equal(d("0.0122")))
	assert.True(t, quotes[0].Ask.Equal(d("0.0124")))

	req := fs.last()
	assert.Empty(t, req.URL.Query().Get("apikey"), "公共接口不签名")
	assert.Empty(t, req.Header.Get("apisign"))
}

func TestClient_PublicFailureIsDataSourceError(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		pathMarketSummaries: `{"success":false,"message":"MARKET_OFFLINE","result":null}`,
	})
	_, err := c.AllQuotes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDataSource)
	assert.Contains(t, err.Error(), "MARKET_OFFLINE")

	_, err = c.Quote(context.Background(), "BTC-LTC")
	assert.ErrorIs(t, err, ports.ErrDataSource, "404 也按数据源错误处理")
}

func TestClient_Quote(t *testing.T) {
	c, fs := newTestClient(t, map[string]string{
		pathTicker: `{"success":true,"message":"","result":{"Bid":0.0013,"Ask":0.0014,"Last":0.00135}}`,
	})
	q, err := c.Quote(context.Background(), "BTC-LTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC-LTC", q.MarketName)
	assert.True(t, q.Bid.Equal(d("0.0013")))
	assert.Equal(t, "BTC-LTC", fs.last().URL.Query().Get("market"))
}

func TestClient_SignedRequests(t *testing.T) {
	c, fs := newTestClient(t, map[string]string{
		pathBalance: `{"success":true,"message":"","result":{"Currency":"BTC","Balance":1.5,"Available":1.25,"Pending":0,"CryptoAddress":null}}`,
	})

	b, err := c.GetBalance(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", b.Currency)
	assert.True(t, b.Available.Equal(d("1.25")))

	q := fs.last().URL.Query()
	assert.Equal(t, testKey, q.Get("apikey"))
	assert.NotEmpty(t, q.Get("nonce"))
	assert.Equal(t, "BTC", q.Get("currency"))
}

func TestClient_WrongSecretFails(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		pathBalance: `{"success":true,"message":"","result":{"Currency":"BTC"}}`,
	})
	c.secret = "wrong"
	_, err := c.GetBalance(context.Background(), "BTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APISIGN_NOT_PROVIDED")
}

func TestClient_MissingCredentials(t *testing.T) {
	c, fs := newTestClient(t, nil)
	c.key = ""
	_, err := c.GetBalance(context.Background(), "BTC")
	require.Error(t, err)
	assert.Empty(t, fs.requests, "没有凭证时不发请求")
}

func TestClient_PlaceOrders(t *testing.T) {
	c, fs := newTestClient(t, map[string]string{
		pathBuyLimit:  `{"success":true,"message":"","result":{"uuid":"buy-uuid"}}`,
		pathSellLimit: `{"success":false,"message":"DUST_TRADE_DISALLOWED_MIN_VALUE_50K_SAT","result":null}`,
	})

	id, err := c.PlaceBuyOrder(context.Background(), domain.OrderSpec{
		Market: "BTC-LTC", Side: domain.SideBuy, Quantity: d("724.63768115"), Rate: d("0.00138"),
	})
	require.NoError(t, err)
	assert.Equal(t, "buy-uuid", id)
	q := fs.last().URL.Query()
	assert.Equal(t, "724.63768115", q.Get("quantity"))
	assert.Equal(t, "0.00138", q.Get("rate"))
	assert.Equal(t, "BTC-LTC", q.Get("market"))

	_, err = c.PlaceSellOrder(context.Background(), domain.OrderSpec{
		Market: "BTC-LTC", Side: domain.SideSell, Quantity: d("1"), Rate: d("0.00000001"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrOrderRejected)
}

func TestClient_GetOrder(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		pathOrder: `{"success":true,"message":"","result":{
			"OrderUuid":"o-1","Exchange":"BTC-LTC","Type":"LIMIT_SELL","Quantity":10,"QuantityRemaining":4,
			"Limit":0.002,"PricePerUnit":0.0021,"IsOpen":false,"Opened":"2017-12-01T16:00:01.5","Closed":"2017-12-01T16:00:03.25"}}`,
	})

	o, err := c.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SideSell, o.Side)
	assert.True(t, o.IsClosed())
	require.NotNil(t, o.Closed)
	assert.Equal(t, time.Date(2017, 12, 1, 16, 0, 3, 250_000_000, time.UTC), *o.Closed)
	assert.True(t, o.Filled().Equal(d("6")))
}

func TestClient_GetOrderStillOpen(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		pathOrder: `{"success":true,"message":"","result":{"OrderUuid":"o-2","Exchange":"BTC-LTC","Type":"LIMIT_BUY","Quantity":10,"QuantityRemaining":10,"Limit":0.001,"PricePerUnit":null,"IsOpen":true,"Closed":null}}`,
	})
	o, err := c.GetOrder(context.Background(), "o-2")
	require.NoError(t, err)
	assert.False(t, o.IsClosed())
	assert.Nil(t, o.Closed)
	assert.True(t, o.PricePerUnit.IsZero())
}

func TestClient_CancelFailure(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		pathCancel: `{"success":false,"message":"ORDER_NOT_OPEN","result":null}`,
	})
	err := c.CancelOrder(context.Background(), "o-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrCancelFailed)
}

func TestClient_NonceIsMonotonic(t *testing.T) {
	c := NewClient(Options{})
	fixed := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	a, b := c.nonce(), c.nonce()
	assert.Greater(t, b, a)
}
