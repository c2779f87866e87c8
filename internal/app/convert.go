package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/lagbot/internal/detector"
	"github.com/betbot/lagbot/internal/session"
	"github.com/betbot/lagbot/pkg/config"
	"github.com/betbot/lagbot/pkg/logger"
)

// LoggerConfig 配置文件中的日志段 → logger.Config
func LoggerConfig(c config.LogConfig) logger.Config {
	return logger.Config{
		Level:      c.Level,
		OutputFile: c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		PerRun:     c.PerRun,
	}
}

// DetectorConfig 构造检测器参数；rate 区分交易模式和跟踪模式
func DetectorConfig(c config.DetectorConfig, name string, rate float64, maxErrors int) detector.Config {
	return detector.Config{
		Name:                 name,
		Prefix:               c.Prefix,
		Rate:                 decimal.NewFromFloat(rate),
		MaxLength:            c.MaxLength,
		Interval:             c.Interval(),
		CompareMode:          detector.CompareMode(c.CompareMode),
		ProgressEvery:        int64(c.ProgressEvery),
		MaxConsecutiveErrors: maxErrors,
	}
}

// Pricing 交易配置中的倍数和手续费 → session.Pricing
func Pricing(t config.TradeConfig) session.Pricing {
	return session.Pricing{
		Precision:   t.Precision,
		Commission:  decimal.NewFromFloat(t.Commission),
		BuyBefore:   decimal.NewFromFloat(t.BuyBeforeMultiplier),
		BuyAfter:    decimal.NewFromFloat(t.BuyAfterMultiplier),
		SellBefore:  decimal.NewFromFloat(t.SellBeforeMultiplier),
		SellAfter:   decimal.NewFromFloat(t.SellAfterMultiplier),
		SellCurrent: decimal.NewFromFloat(t.SellCurrentMultiplier),
	}
}

// SessionConfig 分片会话参数
func SessionConfig(t config.TradeConfig) session.Config {
	return session.Config{
		Pricing:         Pricing(t),
		BuyPolls:        t.BuyPolls,
		SellFirstPolls:  t.SellFirstPolls,
		SellSecondPolls: t.SellSecondPolls,
		SellOtherPolls:  t.SellOtherPolls,
		SellAttempts:    t.SellAttempts,
		PollInterval:    t.PollInterval(),
		BuyWindow:       time.Duration(t.BuyWindowSeconds) * time.Second,
		SellWindow:      time.Duration(t.SellWindowSeconds) * time.Second,
	}
}
