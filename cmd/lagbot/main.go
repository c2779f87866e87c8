package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/app"
	"github.com/betbot/lagbot/internal/arbitrage"
	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/prompt"
	"github.com/betbot/lagbot/pkg/config"
	"github.com/betbot/lagbot/pkg/logger"
)

func firstExistingFile(paths ...string) (string, bool) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：订单在本地撮合，不触达交易所")
	flag.Parse()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	} else if p, ok := firstExistingFile("yml/config.yaml", "config.yaml"); ok {
		config.SetConfigPath(p)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := app.InitLogging(cfg.Log); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	log := logger.Component("lagbot")
	if p := config.GetConfigPath(); p != "" {
		log.Infof("使用配置文件: %s", p)
	} else {
		log.Warnf("未指定配置文件，将使用环境变量和默认值")
	}
	if f := logger.GetCurrentLogFile(); f != "" {
		log.Infof("日志文件: %s", f)
	}

	os.Exit(run(cfg, log))
}

func run(cfg *config.Config, log *logrus.Entry) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, cfg, app.Options{Component: "lagbot", NeedAccount: true, Log: log})
	if err != nil {
		log.Errorf("初始化失败: %v", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Close(shutdownCtx)
	}()

	signalTime, err := cfg.Trade.SignalTimeOn(time.Now())
	if err != nil {
		log.Errorf("解析 signal_time 失败: %v", err)
		return 1
	}
	if !signalTime.IsZero() {
		log.Infof("信号时间: %s", signalTime.Format(time.RFC3339))
	}

	dets := rt.Detectors(cfg.Detector.Rate)
	finders := make([]arbitrage.Finder, 0, len(dets))
	for _, d := range dets {
		finders = append(finders, d)
	}

	orch := arbitrage.New(arbitrage.Config{
		SourceCurrency: cfg.Trade.SourceCurrency,
		ChunkCount:     cfg.Trade.ChunkCount,
		Precision:      cfg.Trade.Precision,
		SignalTime:     signalTime,
		Session:        app.SessionConfig(cfg.Trade),
	}, rt.Exchange, rt.Exchange, prompt.NewTerminal(), finders, rt.Clock, rt.Recorder(), log)
	orch.OnPhase(rt.SetPhase)

	report, err := orch.Run(ctx)
	if err != nil {
		log.Errorf("运行失败: %v", err)
		return 1
	}
	if report.Aborted != "" {
		return 0
	}
	summarize(log, report)
	return 0
}

// summarize 汇总所有分片的结果
func summarize(log *logrus.Entry, r arbitrage.Report) {
	bought, sold, residual := decimal.Zero, decimal.Zero, decimal.Zero
	counts := map[domain.OutcomeStatus]int{}
	for _, out := range r.Outcomes {
		bought = bought.Add(out.Bought)
		sold = sold.Add(out.Sold)
		residual = residual.Add(out.Residual)
		counts[out.Status]++
	}
	log.WithFields(logrus.Fields{
		"market":   r.Signal.MarketName,
		"detector": r.Winner,
		"chunks":   len(r.Outcomes),
		"statuses": counts,
	}).Infof("运行结束：买入 %s，卖出 %s，未卖出 %s", bought, sold, residual)
	if residual.Sign() > 0 {
		log.Warnf("仍有 %s 未卖出，请手动处理", residual)
	}
}
