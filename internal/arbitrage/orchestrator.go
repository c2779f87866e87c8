package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/metrics"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/internal/session"
	"github.com/betbot/lagbot/pkg/clock"
	"github.com/betbot/lagbot/pkg/race"
	"github.com/betbot/lagbot/pkg/syncgroup"
)

// Finder 单次查找信号的检测器（detector.Detector 满足该接口）
type Finder interface {
	Name() string
	Find(ctx context.Context) (*domain.Signal, error)
}

// Config 编排参数
type Config struct {
	SourceCurrency string
	ChunkCount     int
	Precision      int32
	SignalTime     time.Time // 零值表示使用信号被检测到的时间
	Session        session.Config
}

// Report 一次运行的结果
type Report struct {
	Balance     domain.Balance
	Amount      decimal.Decimal
	Signal      *domain.Signal
	Winner      string // 赢得竞速的检测器
	ChunkAmount decimal.Decimal
	Outcomes    []domain.ChunkOutcome
	Aborted     string // 非空表示在下单前中止及原因
}

// Orchestrator 确认金额 → 竞速检测信号 → 确认市场 → 并发执行分片
type Orchestrator struct {
	cfg      Config
	quotes   ports.QuoteSource
	account  ports.Account
	prompter ports.Prompter
	finders  []Finder
	clock    clock.Clock
	recorder ports.Recorder
	log      *logrus.Entry
	newID    func() string
	onPhase  func(string)
}

func New(cfg Config, quotes ports.QuoteSource, account ports.Account, prompter ports.Prompter, finders []Finder, clk clock.Clock, recorder ports.Recorder, log *logrus.Entry) *Orchestrator {
	if cfg.ChunkCount <= 0 {
		cfg.ChunkCount = 1
	}
	if cfg.SourceCurrency == "" {
		cfg.SourceCurrency = "BTC"
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		cfg:      cfg,
		quotes:   quotes,
		account:  account,
		prompter: prompter,
		finders:  finders,
		clock:    clk,
		recorder: recorder,
		log:      log,
		newID:    uuid.NewString,
	}
}

// OnPhase 运行阶段变化回调（prompt / detecting / trading / done）
func (o *Orchestrator) OnPhase(cb func(string)) {
	o.onPhase = cb
}

func (o *Orchestrator) phase(p string) {
	if o.onPhase != nil {
		o.onPhase(p)
	}
}

func (o *Orchestrator) abort(r Report, format string, args ...interface{}) (Report, error) {
	r.Aborted = fmt.Sprintf(format, args...)
	o.log.Errorf("[PREP] %s", r.Aborted)
	return r, nil
}

// Run 执行一次完整流程。用户取消或参数无效时返回带 Aborted 的 Report；
// 只有取数/检测器失败才返回 error，分片失败体现在 Outcomes 中。
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	var report Report
	src := o.cfg.SourceCurrency
	o.phase("prompt")
	defer o.phase("done")

	balance, err := o.account.GetBalance(ctx, src)
	if err != nil {
		return report, fmt.Errorf("查询 %s 余额失败: %w", src, err)
	}
	report.Balance = balance

	amount, err := o.prompter.PromptAmount(ctx, fmt.Sprintf(
		"当前 %s 可用余额 %s %s，打算使用多少 %s？", src, balance.Available, src, src))
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		return o.abort(report, "金额无效: %v", err)
	}
	if amount.Sign() <= 0 {
		return o.abort(report, "金额必须大于 0，输入为 %s", amount)
	}
	report.Amount = amount
	if amount.GreaterThan(balance.Available) {
		o.log.Warnf("[PREP] 输入金额 %s 超过可用余额 %s", amount, balance.Available)
	}

	ok, err := o.prompter.Confirm(ctx, fmt.Sprintf("确定要花费 %s %s 吗？", amount, src))
	if err != nil {
		return report, err
	}
	if !ok {
		return o.abort(report, "已取消，请再慎重考虑")
	}

	o.phase("detecting")
	sig, winner, err := o.detect(ctx)
	if err != nil {
		return report, err
	}
	report.Signal = sig
	report.Winner = winner
	if err := o.recorder.RecordSignal(ctx, *sig); err != nil {
		o.log.Warnf("记录信号失败: %v", err)
	}

	ok, err = o.prompter.Confirm(ctx, fmt.Sprintf("发现潜在市场 %s，是否继续？", sig.MarketName))
	if err != nil {
		return report, err
	}
	if !ok {
		return o.abort(report, "放弃市场 %s，这次只能错过了", sig.MarketName)
	}

	_, target, err := domain.SplitMarket(sig.MarketName)
	if err != nil {
		return o.abort(report, "%v", err)
	}

	chunk := domain.FloorTo(amount.Div(decimal.NewFromInt(int64(o.cfg.ChunkCount))), o.cfg.Precision)
	report.ChunkAmount = chunk
	o.log.Infof("[PREP] 每个分片使用 %s %s，共 %d 个分片", chunk, src, o.cfg.ChunkCount)
	if chunk.Sign() <= 0 {
		return o.abort(report, "分片金额为 0，未下任何订单")
	}

	signalTime := o.cfg.SignalTime
	if signalTime.IsZero() {
		signalTime = sig.DetectedAt
	}

	plans := make([]domain.ChunkPlan, o.cfg.ChunkCount)
	for i := range plans {
		plans[i] = domain.ChunkPlan{
			ID:               o.newID(),
			Market:           sig.MarketName,
			SourceAmount:     chunk,
			BeforeSignalRate: sig.Past.Ask,
			AfterSignalRate:  sig.Current.Ask,
			SourceCurrency:   src,
			TargetCurrency:   target,
			SignalTime:       signalTime,
		}
	}
	o.phase("trading")
	report.Outcomes = o.runChunks(ctx, plans)
	return report, nil
}

// detect 所有检测器竞速，第一个成功的信号胜出
func (o *Orchestrator) detect(ctx context.Context) (*domain.Signal, string, error) {
	tasks := make([]race.Task[*domain.Signal], 0, len(o.finders))
	for _, f := range o.finders {
		f := f
		tasks = append(tasks, func(ctx context.Context) (*domain.Signal, error) {
			sig, err := f.Find(ctx)
			if err == nil && sig == nil {
				err = fmt.Errorf("检测器 %s 未返回信号", f.Name())
			}
			return sig, err
		})
	}
	sig, idx, err := race.First(ctx, tasks...)
	if err != nil {
		return nil, "", fmt.Errorf("所有检测器均失败: %w", err)
	}
	winner := o.finders[idx].Name()
	o.log.Infof("[PREP] 检测器 %s 率先发现信号: %s", winner, sig.MarketName)
	return sig, winner, nil
}

func (o *Orchestrator) runChunks(ctx context.Context, plans []domain.ChunkPlan) []domain.ChunkOutcome {
	sess := session.NewChunkSession(o.cfg.Session, o.quotes, o.account, o.clock, o.recorder, o.log)

	outcomes := make([]domain.ChunkOutcome, len(plans))
	for i, p := range plans {
		outcomes[i] = domain.ChunkOutcome{
			ChunkID: p.ID,
			Market:  p.Market,
			Status:  domain.OutcomeUnknown,
			Err:     fmt.Errorf("分片 %s 异常退出", p.ID),
		}
	}

	sg := syncgroup.NewSyncGroup()
	for i := range plans {
		i := i
		sg.Add(func() {
			outcomes[i] = sess.Run(ctx, plans[i])
		})
	}
	sg.Run()
	for _, p := range sg.WaitAndClear() {
		o.log.Errorf("分片 panic: %v", p)
	}

	for _, out := range outcomes {
		metrics.ChunkOutcomes.WithLabelValues(string(out.Status)).Inc()
		if err := o.recorder.RecordOutcome(ctx, out); err != nil {
			o.log.Warnf("记录分片结果失败: %v", err)
		}
		entry := o.log.WithFields(logrus.Fields{
			"chunk":    out.ChunkID,
			"status":   out.Status,
			"bought":   out.Bought,
			"sold":     out.Sold,
			"residual": out.Residual,
			"attempts": out.Attempts,
		})
		if out.Err != nil {
			entry.Warnf("分片结束: %v", out.Err)
		} else {
			entry.Info("分片结束")
		}
	}
	return outcomes
}
