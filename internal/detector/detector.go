package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/metrics"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/clock"
)

// CompareMode 历史快照比较方式
type CompareMode string

const (
	// CompareOldest 只与该市场在历史中最早出现的快照比较
	CompareOldest CompareMode = "oldest"
	// CompareAny 依次与每个历史快照比较，任一触发即可
	CompareAny CompareMode = "any"
)

// Config 检测器配置
type Config struct {
	Name                 string // 日志/指标标签，例如 poll / stream
	Prefix               string
	Rate                 decimal.Decimal
	MaxLength            int
	Interval             time.Duration
	CompareMode          CompareMode
	ProgressEvery        int64
	MaxConsecutiveErrors int // 连续取数失败容忍次数；0 表示第一次失败即返回
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "poll"
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 7
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.CompareMode == "" {
		c.CompareMode = CompareOldest
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 500
	}
	if c.Rate.IsZero() {
		c.Rate = decimal.RequireFromString("1.15")
	}
}

// Stats 检测器运行状态（供控制面查询）
type Stats struct {
	Name        string         `json:"name"`
	Cycles      int64          `json:"cycles"`
	Signals     int64          `json:"signals"`
	HistoryLen  int            `json:"history_len"`
	Pending     map[string]int `json:"pending"`
	LastCycleAt time.Time      `json:"last_cycle_at"`
	LastError   string         `json:"last_error,omitempty"`
}

// Detector 滑动窗口价格滞后检测器。
// 周期严格串行；状态只在一个周期成功取数后才提交。
type Detector struct {
	cfg    Config
	source ports.QuoteSource
	clock  clock.Clock
	log    *logrus.Entry

	mu          sync.RWMutex
	history     *QuoteHistory
	pending     *PendingSignals
	cycles      int64
	signals     int64
	lastCycleAt time.Time
	lastErr     error

	cbMu     sync.Mutex
	onSignal []func(domain.Signal)
}

// New 创建检测器；clk 为 nil 时使用真实时钟
func New(cfg Config, source ports.QuoteSource, clk clock.Clock, log *logrus.Entry) *Detector {
	cfg.setDefaults()
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Detector{
		cfg:     cfg,
		source:  source,
		clock:   clk,
		log:     log.WithField("detector", cfg.Name),
		history: NewQuoteHistory(cfg.MaxLength),
		pending: NewPendingSignals(),
	}
}

func (d *Detector) Name() string { return d.cfg.Name }

// OnSignal 注册信号回调（连续模式下每个信号都会回调）
func (d *Detector) OnSignal(cb func(domain.Signal)) {
	if cb == nil {
		return
	}
	d.cbMu.Lock()
	d.onSignal = append(d.onSignal, cb)
	d.cbMu.Unlock()
}

func (d *Detector) emit(sig domain.Signal) {
	d.cbMu.Lock()
	cbs := append([]func(domain.Signal){}, d.onSignal...)
	d.cbMu.Unlock()
	for _, cb := range cbs {
		cb(sig)
	}
}

// OnTick 执行一个完整周期（连续模式语义：所有市场都会被评估）
func (d *Detector) OnTick(ctx context.Context) ([]domain.Signal, error) {
	return d.tick(ctx, false)
}

// Find 按 Interval 轮询，直到找到第一个信号（单次查找模式）
func (d *Detector) Find(ctx context.Context) (*domain.Signal, error) {
	d.log.Infof("开始查找: rate=%s 历史窗口=%d 比较方式=%s", d.cfg.Rate, d.cfg.MaxLength, d.cfg.CompareMode)
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sigs, err := d.tick(ctx, true)
		if err != nil {
			failures++
			if failures > d.cfg.MaxConsecutiveErrors {
				return nil, err
			}
			d.log.Warnf("取数失败（%d/%d）: %v", failures, d.cfg.MaxConsecutiveErrors, err)
		} else {
			failures = 0
			if len(sigs) > 0 {
				sig := sigs[0]
				return &sig, nil
			}
		}
		if err := d.clock.Sleep(ctx, d.cfg.Interval); err != nil {
			return nil, err
		}
	}
}

// Run 连续模式：持续运行直到 ctx 取消，每个信号通过 OnSignal 回调上报。
// ctx 取消时返回 nil。
func (d *Detector) Run(ctx context.Context) error {
	d.log.Infof("开始跟踪: rate=%s 历史窗口=%d 比较方式=%s", d.cfg.Rate, d.cfg.MaxLength, d.cfg.CompareMode)
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := d.tick(ctx, false); err != nil {
			failures++
			if failures > d.cfg.MaxConsecutiveErrors {
				return err
			}
			d.log.Warnf("取数失败（%d/%d）: %v", failures, d.cfg.MaxConsecutiveErrors, err)
		} else {
			failures = 0
		}
		if err := d.clock.Sleep(ctx, d.cfg.Interval); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats 返回当前状态快照
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Stats{
		Name:        d.cfg.Name,
		Cycles:      d.cycles,
		Signals:     d.signals,
		HistoryLen:  d.history.Len(),
		Pending:     d.pending.Snapshot(),
		LastCycleAt: d.lastCycleAt,
	}
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	return s
}

// tick 一个周期。取数失败时不修改任何状态。
// single=true 时在第一个信号处停止扫描：已暂存的待定变化会提交，但本周期不写入历史。
func (d *Detector) tick(ctx context.Context, single bool) ([]domain.Signal, error) {
	// 网络调用不随竞速失败方的取消而中断，只在周期边界停止
	quotes, err := d.source.AllQuotes(context.WithoutCancel(ctx))
	if err != nil {
		metrics.DetectorErrors.WithLabelValues(d.cfg.Name).Inc()
		if !errors.Is(err, ports.ErrDataSource) {
			err = fmt.Errorf("%w: %v", ports.ErrDataSource, err)
		}
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		return nil, err
	}

	current := make(CycleQuotes, len(quotes))
	for _, q := range quotes {
		if strings.HasPrefix(q.MarketName, d.cfg.Prefix) {
			current[q.MarketName] = q
		}
	}
	markets := make([]string, 0, len(current))
	for m := range current {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	signals := d.evaluate(current, markets, single)
	for _, sig := range signals {
		d.emit(sig)
	}
	return signals, nil
}

// evaluate 比较并提交本周期状态（调用方不持锁）
func (d *Detector) evaluate(current CycleQuotes, markets []string, single bool) []domain.Signal {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	cycle := d.cycles
	var (
		signals   []domain.Signal
		triggered []string
		decrement []string
	)
	for _, market := range markets {
		if d.pending.Has(market) {
			decrement = append(decrement, market)
			continue
		}
		cur := current[market]
		idx, past, ok := d.compare(market, cur)
		if !ok {
			continue
		}
		d.log.WithFields(logrus.Fields{
			"cycle": cycle,
			"index": idx,
		}).Infof("发现潜在市场: %s 当前[%s] 历史[%s]", market, cur, past)
		signals = append(signals, domain.Signal{
			MarketName:   market,
			Current:      cur,
			Past:         past,
			HistoryIndex: idx,
			Cycle:        cycle,
			DetectedAt:   now,
			Source:       d.cfg.Name,
		})
		triggered = append(triggered, market)
		if single {
			break
		}
	}

	for _, m := range decrement {
		d.pending.Decrement(m)
	}
	for _, m := range triggered {
		d.pending.Mark(m, d.cfg.MaxLength+1)
	}
	d.signals += int64(len(signals))
	d.lastErr = nil
	d.lastCycleAt = now
	metrics.SignalsTotal.WithLabelValues(d.cfg.Name).Add(float64(len(signals)))

	if single && len(signals) > 0 {
		return signals
	}

	d.history.Push(current)
	d.cycles++
	metrics.DetectorCycles.WithLabelValues(d.cfg.Name).Inc()
	if d.cycles%d.cfg.ProgressEvery == 0 {
		d.log.Infof("已完成 %d 个周期，待定市场 %d 个", d.cycles, d.pending.Len())
	}
	return signals
}

// compare 在历史中查找触发比较的快照（调用方持锁）
func (d *Detector) compare(market string, cur domain.Quote) (int, domain.Quote, bool) {
	for i := 0; i < d.history.Len(); i++ {
		past, ok := d.history.Lookup(i, market)
		if !ok {
			continue
		}
		if cur.Exceeds(past, d.cfg.Rate) {
			return i, past, true
		}
		if d.cfg.CompareMode == CompareOldest {
			return 0, domain.Quote{}, false
		}
	}
	return 0, domain.Quote{}, false
}
