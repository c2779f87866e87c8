package bittrex

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/cache"
	"github.com/betbot/lagbot/pkg/clock"
)

// 推送协议：连接后发送订阅帧，之后服务端推送
//
//	{"M":"updateSummaryState","A":[{"Nonce":1,"Deltas":[{"MarketName":"BTC-LTC","Last":0.01,"Bid":...,"Ask":...}]}]}
//
// 单个 delta 可以只带部分字段，缺失字段保留缓存中的旧值。
const (
	methodSummaryDeltas = "updateSummaryState"
	subscribeFrame      = `{"H":"c2","M":"SubscribeToSummaryDeltas","A":[],"I":0}`
)

// FeedOptions 推送行情参数
type FeedOptions struct {
	URL          string
	TTL          time.Duration // 超过 TTL 没有更新的市场视为过期
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Clock        clock.Clock
	Log          *logrus.Entry
}

// Feed 把推送的市场摘要增量合并进 TTL 缓存，并作为 ports.QuoteSource 对外提供
type Feed struct {
	opts   FeedOptions
	quotes *cache.InMemoryCache[string, domain.Quote]
	dialer websocket.Dialer
	log    *logrus.Entry

	mu        sync.Mutex
	connected bool
	updates   int64
}

var _ ports.QuoteSource = (*Feed)(nil)

func NewFeed(opts FeedOptions) *Feed {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Feed{
		opts:   opts,
		quotes: cache.NewInMemoryCache[string, domain.Quote](opts.TTL),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    opts.Log,
	}
}

// Run 保持连接直到 ctx 取消，断线后指数退避重连
func (f *Feed) Run(ctx context.Context) error {
	defer f.quotes.Close()
	backoff := f.opts.ReconnectMin
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = f.opts.ReconnectMin
			f.log.Infof("[WebSocket] 连接已关闭，%s 后重连", backoff)
		} else {
			f.log.Warnf("[WebSocket] 连接断开: %v，%s 后重连", err, backoff)
		}
		if err := f.opts.Clock.Sleep(ctx, backoff); err != nil {
			return nil
		}
		backoff *= 2
		if backoff > f.opts.ReconnectMax {
			backoff = f.opts.ReconnectMax
		}
	}
}

// session 一次连接的生命周期；收到过消息才返回 nil（用于重置退避）
func (f *Feed) session(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.opts.URL, http.Header{"User-Agent": []string{"lagbot/1.0"}})
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribeFrame)); err != nil {
		return fmt.Errorf("发送订阅失败: %w", err)
	}
	f.setConnected(true)
	defer f.setConnected(false)
	f.log.Infof("[WebSocket] 已连接 %s", f.opts.URL)

	received := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if received {
				return nil
			}
			return fmt.Errorf("读取失败: %w", err)
		}
		if f.apply(msg) > 0 {
			received = true
		}
	}
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// Connected 当前是否在线
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// apply 解析一帧并合并进缓存，返回更新的市场数
func (f *Feed) apply(msg []byte) int {
	if gjson.GetBytes(msg, "M").String() != methodSummaryDeltas {
		return 0
	}
	n := 0
	gjson.GetBytes(msg, "A.#.Deltas|@flatten").ForEach(func(_, delta gjson.Result) bool {
		name := delta.Get("MarketName").String()
		if name == "" {
			return true
		}
		q, known := f.quotes.Get(name)
		q.MarketName = name
		last, hasLast := decimalOf(delta.Get("Last"))
		bid, hasBid := decimalOf(delta.Get("Bid"))
		ask, hasAsk := decimalOf(delta.Get("Ask"))
		// 新市场（或已过期）必须带齐三个价格，否则零值会被当成历史价格
		if !known && !(hasLast && hasBid && hasAsk) {
			return true
		}
		if hasLast {
			q.Last = last
		}
		if hasBid {
			q.Bid = bid
		}
		if hasAsk {
			q.Ask = ask
		}
		f.quotes.Set(name, q, 0)
		n++
		return true
	})
	if n > 0 {
		f.mu.Lock()
		f.updates += int64(n)
		f.mu.Unlock()
	}
	return n
}

func decimalOf(r gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch r.Type {
	case gjson.Number:
		raw = r.Raw
	case gjson.String:
		raw = r.Str
	default:
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// AllQuotes 当前未过期的全部行情，按市场名排序；缓存为空视为数据源错误
func (f *Feed) AllQuotes(ctx context.Context) ([]domain.Quote, error) {
	snap := f.quotes.Snapshot()
	if len(snap) == 0 {
		return nil, fmt.Errorf("%w: 推送行情为空", ports.ErrDataSource)
	}
	out := make([]domain.Quote, 0, len(snap))
	for _, q := range snap {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketName < out[j].MarketName })
	return out, nil
}

func (f *Feed) Quote(ctx context.Context, market string) (domain.Quote, error) {
	q, ok := f.quotes.Get(market)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: 没有 %s 的推送行情", ports.ErrDataSource, market)
	}
	return q, nil
}

// Updates 累计合并的增量条数
func (f *Feed) Updates() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}
