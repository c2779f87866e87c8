// Package app 把配置装配成可运行的组件：交易所（实盘/纸交易）、推送行情、
// 检测器、审计日志、指标和控制面。cmd/lagbot 与 cmd/track 共用。
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/controlplane"
	"github.com/betbot/lagbot/internal/detector"
	"github.com/betbot/lagbot/internal/journal"
	"github.com/betbot/lagbot/internal/metrics"
	"github.com/betbot/lagbot/internal/paper"
	"github.com/betbot/lagbot/internal/ports"
	"github.com/betbot/lagbot/pkg/clock"
	"github.com/betbot/lagbot/pkg/config"
	"github.com/betbot/lagbot/pkg/logger"
	"github.com/betbot/lagbot/pkg/sdk/bittrex"
	"github.com/betbot/lagbot/pkg/secretstore"
	"github.com/betbot/lagbot/pkg/shutdown"
)

// Options 装配选项
type Options struct {
	Component   string // 日志组件名
	NeedAccount bool   // 需要私有接口；实盘模式下缺少凭证直接报错
	Log         *logrus.Entry
}

// Runtime 装配完成的运行时，Close 释放所有资源
type Runtime struct {
	Config   *config.Config
	Log      *logrus.Entry
	Clock    clock.Clock
	Exchange ports.Exchange
	Feed     *bittrex.Feed        // 未配置 websocket_url 时为 nil
	Journal  *journal.Journal     // 未启用时为 nil
	Control  *controlplane.Server // 未启用时为 nil
	Shutdown *shutdown.Manager

	MetricsAddr string
	ControlAddr string
}

// InitLogging 按配置初始化全局日志
func InitLogging(c config.LogConfig) error {
	return logger.Init(LoggerConfig(c))
}

// Bootstrap 按配置创建所有组件。后台任务（推送行情、HTTP 服务）随 ctx 结束。
func Bootstrap(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	log := opts.Log
	if log == nil {
		name := opts.Component
		if name == "" {
			name = "lagbot"
		}
		log = logger.Component(name)
	}

	rt := &Runtime{
		Config:   cfg,
		Log:      log,
		Clock:    clock.Real{},
		Shutdown: shutdown.NewManager(log),
	}

	key, secret, err := ResolveCredentials(cfg)
	if err != nil {
		return nil, err
	}
	if opts.NeedAccount && !cfg.DryRun && (key == "" || secret == "") {
		return nil, fmt.Errorf("实盘模式需要 API Key/Secret（配置 exchange.api_key/api_secret 或启用 secrets）")
	}

	client := bittrex.NewClient(bittrex.Options{
		BaseURL:           cfg.Exchange.BaseURL,
		APIKey:            key,
		APISecret:         secret,
		Timeout:           cfg.Exchange.Timeout(),
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		Burst:             cfg.Exchange.Burst,
		Log:               log.WithField("exchange", "bittrex"),
	})
	rt.Exchange = client
	if cfg.DryRun {
		rt.Exchange = PaperExchange(cfg, client, log)
		log.Warnf("纸交易模式：订单只在本地撮合，初始 %s 余额 %v", cfg.Trade.SourceCurrency, cfg.PaperBalance)
	}

	if url := strings.TrimSpace(cfg.Exchange.WebsocketURL); url != "" {
		rt.Feed = bittrex.NewFeed(bittrex.FeedOptions{
			URL:   url,
			TTL:   cfg.Detector.FeedTTL(),
			Clock: rt.Clock,
			Log:   log.WithField("feed", "bittrex"),
		})
		go func() {
			if err := rt.Feed.Run(ctx); err != nil {
				log.Errorf("推送行情退出: %v", err)
			}
		}()
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("打开审计日志失败: %w", err)
		}
		rt.Journal = j
		rt.Shutdown.OnShutdown("journal", func(context.Context) {
			if err := j.Close(); err != nil {
				log.Warnf("关闭审计日志失败: %v", err)
			}
		})
		log.Infof("审计日志: %s", cfg.Journal.Path)
	}

	if cfg.Metrics.Enabled {
		addr, err := metrics.StartAsync(ctx, cfg.Metrics.Addr, log)
		if err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("metrics 启动失败: %w", err)
		}
		rt.MetricsAddr = addr
		log.Infof("metrics/pprof 启用: listen=%s", addr)
	}

	if cfg.ControlPlane.Enabled {
		var store controlplane.Store
		if rt.Journal != nil {
			store = rt.Journal
		}
		rt.Control = controlplane.New(store, log.WithField("component", "controlplane"))
		addr, err := rt.Control.StartAsync(ctx, cfg.ControlPlane.Addr)
		if err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("控制面启动失败: %w", err)
		}
		rt.ControlAddr = addr
	}

	return rt, nil
}

// ResolveCredentials 配置/环境变量优先，缺失的部分从 badger 密钥库补齐
func ResolveCredentials(cfg *config.Config) (string, string, error) {
	key := strings.TrimSpace(cfg.Exchange.APIKey)
	secret := strings.TrimSpace(cfg.Exchange.APISecret)
	if !cfg.Secrets.Enabled || (key != "" && secret != "") {
		return key, secret, nil
	}

	encKey, err := secretstore.ParseKey(cfg.Secrets.Key)
	if err != nil {
		return "", "", fmt.Errorf("解析密钥库密钥失败: %w", err)
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.Path,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return "", "", fmt.Errorf("打开密钥库失败: %w", err)
	}
	defer store.Close()

	storedKey, storedSecret, err := store.Credentials(cfg.Secrets.Prefix)
	if err != nil {
		return "", "", fmt.Errorf("读取凭证失败: %w", err)
	}
	if key == "" {
		key = storedKey
	}
	if secret == "" {
		secret = storedSecret
	}
	return key, secret, nil
}

// PaperExchange 以 quotes 为行情源的纸交易所，只持有 source_currency 初始余额
func PaperExchange(cfg *config.Config, quotes ports.QuoteSource, log *logrus.Entry) *paper.Exchange {
	initial := map[string]decimal.Decimal{
		cfg.Trade.SourceCurrency: decimal.NewFromFloat(cfg.PaperBalance),
	}
	return paper.New(quotes, initial, decimal.NewFromFloat(cfg.Trade.Commission), log.WithField("exchange", "paper"))
}

// Detectors 创建轮询检测器，配置了推送行情时再加一个推送检测器；
// 启用控制面时自动注册到 /api/status。
func (rt *Runtime) Detectors(rate float64) []*detector.Detector {
	dc := rt.Config.Detector
	dets := []*detector.Detector{
		detector.New(DetectorConfig(dc, "poll", rate, dc.MaxErrors), rt.Exchange, rt.Clock, rt.Log),
	}
	if rt.Feed != nil {
		dets = append(dets, detector.New(DetectorConfig(dc, "stream", rate, dc.StreamMaxErrors), rt.Feed, rt.Clock, rt.Log))
	}
	if rt.Control != nil {
		for _, d := range dets {
			rt.Control.AddDetector(d)
		}
	}
	return dets
}

// Recorder 启用审计日志时返回 journal，否则丢弃
func (rt *Runtime) Recorder() ports.Recorder {
	if rt.Journal != nil {
		return rt.Journal
	}
	return ports.NopRecorder{}
}

// SetPhase 更新控制面展示的运行阶段（未启用控制面时忽略）
func (rt *Runtime) SetPhase(phase string) {
	if rt.Control != nil {
		rt.Control.SetPhase(phase)
	}
}

// Close 执行所有关闭回调
func (rt *Runtime) Close(ctx context.Context) {
	rt.Shutdown.Shutdown(ctx)
}
