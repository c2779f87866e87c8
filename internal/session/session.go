package session

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/execution"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/clock"
)

// Config 分片会话参数
type Config struct {
	Pricing         Pricing
	BuyPolls        int
	SellFirstPolls  int
	SellSecondPolls int
	SellOtherPolls  int
	SellAttempts    int
	PollInterval    time.Duration
	BuyWindow       time.Duration // 买单截止 = SignalTime + BuyWindow
	SellWindow      time.Duration // 前两次卖单截止 = SignalTime + SellWindow
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Pricing:         DefaultPricing(),
		BuyPolls:        30,
		SellFirstPolls:  40,
		SellSecondPolls: 35,
		SellOtherPolls:  30,
		SellAttempts:    5,
		PollInterval:    50 * time.Millisecond,
		BuyWindow:       15 * time.Second,
		SellWindow:      27 * time.Second,
	}
}

// ChunkSession 一个分片的买入-卖出流程。
// 不返回错误：所有失败都体现在 ChunkOutcome 中。
type ChunkSession struct {
	cfg        Config
	quotes     ports.QuoteSource
	controller *execution.Controller
	clock      clock.Clock
	recorder   ports.Recorder
	log        *logrus.Entry
}

func NewChunkSession(cfg Config, quotes ports.QuoteSource, account ports.Account, clk clock.Clock, recorder ports.Recorder, log *logrus.Entry) *ChunkSession {
	if clk == nil {
		clk = clock.Real{}
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ChunkSession{
		cfg:        cfg,
		quotes:     quotes,
		controller: execution.NewController(account, clk, log),
		clock:      clk,
		recorder:   recorder,
		log:        log,
	}
}

func deadline(base time.Time, window time.Duration) time.Time {
	if base.IsZero() {
		return time.Time{}
	}
	return base.Add(window)
}

// Run 执行分片：买入，若有成交则进入卖出阶段
func (s *ChunkSession) Run(ctx context.Context, plan domain.ChunkPlan) domain.ChunkOutcome {
	ctx = context.WithoutCancel(ctx)
	log := s.log.WithFields(logrus.Fields{"chunk": plan.ID, "market": plan.Market})
	out := domain.ChunkOutcome{
		ChunkID:  plan.ID,
		Market:   plan.Market,
		Bought:   decimal.Zero,
		Sold:     decimal.Zero,
		Residual: decimal.Zero,
	}

	actual, rate, quantity := s.cfg.Pricing.BuyOrder(plan)
	log.Infof("[PREP] 扣除手续费后实际使用 %s %s 购买 %s", actual, plan.SourceCurrency, plan.TargetCurrency)
	if rate.IsZero() || quantity.IsZero() {
		log.Warnf("[PREP] 计算出的价格 %s 或数量 %s 为 0，跳过", rate, quantity)
		out.Status = domain.OutcomeSkipped
		return out
	}
	out.BuyRate = rate

	buy, err := s.controller.Run(ctx, domain.OrderSpec{
		Market:   plan.Market,
		Side:     domain.SideBuy,
		Quantity: quantity,
		Rate:     rate,
	}, execution.Options{
		Deadline:     deadline(plan.SignalTime, s.cfg.BuyWindow),
		MaxPolls:     s.cfg.BuyPolls,
		PollInterval: s.cfg.PollInterval,
	})
	if err != nil {
		out.Err = err
		if errors.Is(err, ports.ErrOrderRejected) {
			out.Status = domain.OutcomeBuyRejected
		} else {
			out.Status = domain.OutcomeUnknown
		}
		return out
	}
	s.record(ctx, log, plan.ID, buy)

	if buy.Filled.Sign() <= 0 {
		log.Warn("[BUY] 未成交，本分片结束")
		out.Status = domain.OutcomeNothingBought
		return out
	}
	out.Bought = buy.Filled
	if buy.PricePerUnit.Sign() > 0 {
		out.BuyRate = buy.PricePerUnit
	}

	s.sell(ctx, log, plan, buy.Filled, &out)
	return out
}

func (s *ChunkSession) sell(ctx context.Context, log *logrus.Entry, plan domain.ChunkPlan, bought decimal.Decimal, out *domain.ChunkOutcome) {
	sellDeadline := deadline(plan.SignalTime, s.cfg.SellWindow)
	quantity := bought
	asap := false

	for attempt := 0; attempt < s.cfg.SellAttempts; attempt++ {
		out.Attempts = attempt + 1
		// 每次定价前检查截止时间，买单成交晚于截止时第一次就按 bid 卖出
		if !asap && !sellDeadline.IsZero() && s.clock.Now().After(sellDeadline) {
			asap = true
			log.Info("[SELL] 已超过卖出截止时间，剩余部分尽快卖出")
		}

		s.sellAttempt(ctx, log, plan, attempt, asap, sellDeadline, &quantity, out)
		if out.Status != "" {
			return
		}
		if quantity.Sign() <= 0 {
			out.Status = domain.OutcomeSold
			out.Residual = decimal.Zero
			log.Infof("[SELL] 全部卖出 %s %s", out.Sold, plan.TargetCurrency)
			return
		}
	}

	out.Status = domain.OutcomePartial
	out.Residual = quantity
	log.Warnf("[SELL] 卖出次数用尽，剩余 %s %s", quantity, plan.TargetCurrency)
}

// sellAttempt 单次卖出；终止性错误写入 out.Status
func (s *ChunkSession) sellAttempt(ctx context.Context, log *logrus.Entry, plan domain.ChunkPlan, attempt int, asap bool, sellDeadline time.Time, quantity *decimal.Decimal, out *domain.ChunkOutcome) {
	ticker, err := s.quotes.Quote(ctx, plan.Market)
	if err != nil {
		log.Errorf("[SELL] 获取最新行情失败，跳过第 %d 次卖出: %v", attempt+1, err)
		return
	}

	rate := s.cfg.Pricing.SellRate(attempt, asap, plan, ticker.Bid)
	polls := s.cfg.SellOtherPolls
	dl := time.Time{}
	switch {
	case !asap && attempt == 0:
		polls, dl = s.cfg.SellFirstPolls, sellDeadline
	case !asap && attempt == 1:
		polls, dl = s.cfg.SellSecondPolls, sellDeadline
	}
	if rate.Sign() <= 0 {
		log.Errorf("[SELL] 计算出的卖出价格为 0（bid=%s），跳过第 %d 次卖出", ticker.Bid, attempt+1)
		return
	}

	settled, err := s.controller.Run(ctx, domain.OrderSpec{
		Market:   plan.Market,
		Side:     domain.SideSell,
		Quantity: *quantity,
		Rate:     rate,
	}, execution.Options{
		Deadline:     dl,
		MaxPolls:     polls,
		PollInterval: s.cfg.PollInterval,
	})
	if err != nil {
		if errors.Is(err, ports.ErrOrderRejected) {
			log.Errorf("[SELL] 第 %d 次卖出下单失败: 数量 %s 价格 %s", attempt+1, *quantity, rate)
			return
		}
		out.Status = domain.OutcomeUnknown
		out.Residual = *quantity
		out.Err = err
		return
	}
	s.record(ctx, log, plan.ID, settled)

	out.Sold = out.Sold.Add(settled.Filled)
	*quantity = settled.Remaining
}

func (s *ChunkSession) record(ctx context.Context, log *logrus.Entry, chunkID string, settled domain.SettledOrder) {
	if err := s.recorder.RecordSettlement(ctx, chunkID, settled); err != nil {
		log.Warnf("记录结算失败: %v", err)
	}
}
