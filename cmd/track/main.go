package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/app"
	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/pkg/config"
	"github.com/betbot/lagbot/pkg/logger"
	"github.com/betbot/lagbot/pkg/syncgroup"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	rate := flag.Float64("rate", 0, "跟踪阈值（默认使用 detector.track_rate）")
	flag.Parse()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	} else if _, err := os.Stat("yml/config.yaml"); err == nil {
		config.SetConfigPath("yml/config.yaml")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := app.InitLogging(cfg.Log); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	log := logger.Component("track")

	threshold := cfg.Detector.TrackRate
	if *rate > 0 {
		threshold = *rate
	}
	os.Exit(run(cfg, threshold, log))
}

func run(cfg *config.Config, threshold float64, log *logrus.Entry) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 跟踪模式只读行情，不需要凭证，也不下单
	rt, err := app.Bootstrap(ctx, cfg, app.Options{Component: "track", Log: log})
	if err != nil {
		log.Errorf("初始化失败: %v", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Close(shutdownCtx)
	}()

	recorder := rt.Recorder()
	rt.SetPhase("tracking")

	var (
		mu     sync.Mutex
		failed []error
	)
	sg := syncgroup.NewSyncGroup()
	for _, d := range rt.Detectors(threshold) {
		d := d
		d.OnSignal(func(sig domain.Signal) {
			if err := recorder.RecordSignal(context.WithoutCancel(ctx), sig); err != nil {
				log.Warnf("记录信号失败: %v", err)
			}
		})
		sg.Add(func() {
			if err := d.Run(ctx); err != nil {
				log.Errorf("检测器 %s 退出: %v", d.Name(), err)
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		})
	}
	log.Infof("开始跟踪 %s* 市场，阈值 %v，按 Ctrl+C 停止", cfg.Detector.Prefix, threshold)
	sg.Run()
	for _, p := range sg.WaitAndClear() {
		log.Errorf("检测器 panic: %v", p)
	}
	rt.SetPhase("done")

	if len(failed) > 0 && ctx.Err() == nil {
		return 1
	}
	log.Info("跟踪已停止")
	return 0
}
