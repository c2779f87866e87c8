// Package bittrex Bittrex v1.1 REST 客户端与行情推送
package bittrex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/ratelimit"
)

const DefaultBaseURL = "https://bittrex.com/api/v1.1"

const (
	pathMarketSummaries = "/public/getmarketsummaries"
	pathTicker          = "/public/getticker"
	pathBalance         = "/account/getbalance"
	pathOrder           = "/account/getorder"
	pathBuyLimit        = "/market/buylimit"
	pathSellLimit       = "/market/selllimit"
	pathCancel          = "/market/cancel"
)

// Options 客户端参数
type Options struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Log               *logrus.Entry
}

// Client 实现 ports.Exchange
type Client struct {
	baseURL string
	key     string
	secret  string

	// public 只读接口允许重试；private 涉及下单，绝不自动重试
	public  *resty.Client
	private *resty.Client
	limiter ratelimit.RateLimiter
	log     *logrus.Entry

	nonceMu   sync.Mutex
	lastNonce int64
	now       func() time.Time
}

var _ ports.Exchange = (*Client)(nil)

func NewClient(opts Options) *Client {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	public := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == 429 || resp.StatusCode() >= 500
		})
	private := resty.New().SetTimeout(opts.Timeout)

	return &Client{
		baseURL: base,
		key:     opts.APIKey,
		secret:  opts.APISecret,
		public:  public,
		private: private,
		limiter: ratelimit.NewTokenBucket(opts.Burst, opts.RequestsPerSecond),
		log:     opts.Log,
		now:     time.Now,
	}
}

// nonce 单调递增
func (c *Client) nonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := c.now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// Sign 计算 apisign：对完整请求 URI 做 HMAC-SHA512，十六进制编码
func Sign(secret, uri string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

// call 发起 GET 请求并解开 {success,message,result} 包装
func (c *Client) call(ctx context.Context, path string, params map[string]string, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	rc := c.public
	if signed {
		if c.key == "" || c.secret == "" {
			return errors.New("缺少 API key/secret")
		}
		q.Set("apikey", c.key)
		q.Set("nonce", fmt.Sprint(c.nonce()))
		rc = c.private
	}
	uri := c.baseURL + path
	if len(q) > 0 {
		uri += "?" + q.Encode()
	}

	r := rc.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if signed {
		r.SetHeader("apisign", Sign(c.secret, uri))
	}
	resp, err := r.Get(uri)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if !resp.IsSuccess() {
		return errors.Errorf("http non-2xx: %s %s: %s", path, resp.Status(), strings.TrimSpace(string(resp.Body())))
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Wrapf(err, "解析 %s 响应", path)
	}
	if !env.Success {
		return errors.Errorf("%s: %s", path, env.Message)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return errors.Wrapf(err, "解析 %s result", path)
	}
	return nil
}

// MarketSummaries 所有市场摘要
func (c *Client) MarketSummaries(ctx context.Context) ([]MarketSummary, error) {
	var out []MarketSummary
	if err := c.call(ctx, pathMarketSummaries, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AllQuotes(ctx context.Context) ([]domain.Quote, error) {
	summaries, err := c.MarketSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrDataSource, err)
	}
	quotes := make([]domain.Quote, 0, len(summaries))
	for _, s := range summaries {
		quotes = append(quotes, s.Quote())
	}
	return quotes, nil
}

func (c *Client) Quote(ctx context.Context, market string) (domain.Quote, error) {
	var t Ticker
	if err := c.call(ctx, pathTicker, map[string]string{"market": market}, false, &t); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ports.ErrDataSource, err)
	}
	return domain.Quote{MarketName: market, Last: t.Last, Bid: t.Bid, Ask: t.Ask}, nil
}

func (c *Client) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	var b Balance
	if err := c.call(ctx, pathBalance, map[string]string{"currency": currency}, true, &b); err != nil {
		return domain.Balance{}, fmt.Errorf("查询余额 %s: %w", currency, err)
	}
	if b.Currency == "" {
		b.Currency = currency
	}
	return domain.Balance{Currency: b.Currency, Balance: b.Balance, Available: b.Available, Pending: b.Pending}, nil
}

func (c *Client) PlaceBuyOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	return c.placeLimit(ctx, pathBuyLimit, spec)
}

func (c *Client) PlaceSellOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	return c.placeLimit(ctx, pathSellLimit, spec)
}

func (c *Client) placeLimit(ctx context.Context, path string, spec domain.OrderSpec) (string, error) {
	var ref orderRef
	err := c.call(ctx, path, map[string]string{
		"market":   spec.Market,
		"quantity": spec.Quantity.String(),
		"rate":     spec.Rate.String(),
	}, true, &ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderRejected, err)
	}
	if ref.UUID == "" {
		return "", fmt.Errorf("%w: %s 未返回订单号", ports.ErrOrderRejected, path)
	}
	return ref.UUID, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var o Order
	if err := c.call(ctx, pathOrder, map[string]string{"uuid": orderID}, true, &o); err != nil {
		return domain.Order{}, fmt.Errorf("查询订单 %s: %w", orderID, err)
	}
	if o.OrderUUID == "" {
		o.OrderUUID = orderID
	}
	return o.domain(), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.call(ctx, pathCancel, map[string]string{"uuid": orderID}, true, nil); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrCancelFailed, err)
	}
	return nil
}
