package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExchangeConfig 交易所接入配置
type ExchangeConfig struct {
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	WebsocketURL      string  `yaml:"websocket_url" json:"websocket_url"` // 为空则不启用推送行情检测器
	APIKey            string  `yaml:"api_key" json:"api_key"`
	APISecret         string  `yaml:"api_secret" json:"api_secret"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// DetectorConfig 信号检测器配置
type DetectorConfig struct {
	Prefix          string  `yaml:"prefix" json:"prefix"`                       // 只跟踪以此开头的市场，默认 BTC
	Rate            float64 `yaml:"rate" json:"rate"`                           // 交易模式阈值，默认 1.4
	TrackRate       float64 `yaml:"track_rate" json:"track_rate"`               // 跟踪模式阈值，默认 1.15
	MaxLength       int     `yaml:"max_length" json:"max_length"`               // 历史窗口（周期数），默认 7
	IntervalMs      int     `yaml:"interval_ms" json:"interval_ms"`             // 轮询间隔（毫秒），默认 1000
	CompareMode     string  `yaml:"compare_mode" json:"compare_mode"`           // oldest | any
	ProgressEvery   int     `yaml:"progress_every" json:"progress_every"`       // 每 N 个周期打印一次进度，默认 500
	FeedTTLSeconds  int     `yaml:"feed_ttl_seconds" json:"feed_ttl_seconds"`   // 推送行情缓存过期时间
	MaxErrors       int     `yaml:"max_errors" json:"max_errors"`               // 轮询检测器连续取数失败容忍次数，0 表示第一次失败即退出
	StreamMaxErrors int     `yaml:"stream_max_errors" json:"stream_max_errors"` // 推送检测器容忍次数（连接建立前缓存为空）
}

// TradeConfig 买卖执行配置（默认值与最初的手动交易脚本保持一致）
type TradeConfig struct {
	SourceCurrency        string  `yaml:"source_currency" json:"source_currency"`
	ChunkCount            int     `yaml:"chunk_count" json:"chunk_count"`
	Precision             int32   `yaml:"precision" json:"precision"`
	Commission            float64 `yaml:"commission" json:"commission"`
	BuyBeforeMultiplier   float64 `yaml:"buy_before_multiplier" json:"buy_before_multiplier"`
	BuyAfterMultiplier    float64 `yaml:"buy_after_multiplier" json:"buy_after_multiplier"`
	SellBeforeMultiplier  float64 `yaml:"sell_before_multiplier" json:"sell_before_multiplier"`
	SellAfterMultiplier   float64 `yaml:"sell_after_multiplier" json:"sell_after_multiplier"`
	SellCurrentMultiplier float64 `yaml:"sell_current_multiplier" json:"sell_current_multiplier"`
	BuyPolls              int     `yaml:"buy_polls" json:"buy_polls"`
	SellFirstPolls        int     `yaml:"sell_first_polls" json:"sell_first_polls"`
	SellSecondPolls       int     `yaml:"sell_second_polls" json:"sell_second_polls"`
	SellOtherPolls        int     `yaml:"sell_other_polls" json:"sell_other_polls"`
	SellAttempts          int     `yaml:"sell_attempts" json:"sell_attempts"`
	PollIntervalMs        int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	BuyWindowSeconds      int     `yaml:"buy_window_seconds" json:"buy_window_seconds"`
	SellWindowSeconds     int     `yaml:"sell_window_seconds" json:"sell_window_seconds"`
	SignalTime            string  `yaml:"signal_time" json:"signal_time"` // "HH:MM" UTC；为空则使用检测到信号的时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	PerRun     bool   `yaml:"per_run" json:"per_run"` // 每次运行单独一个日志文件
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// MetricsConfig prometheus 指标
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// JournalConfig sqlite 审计日志
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// ControlPlaneConfig 状态查询 HTTP 服务
type ControlPlaneConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// SecretsConfig badger 密钥库
type SecretsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Prefix  string `yaml:"prefix" json:"prefix"`
	Key     string `yaml:"-" json:"-"` // 只从环境变量 LAGBOT_SECRET_KEY 读取，不落盘
}

// Config 应用配置
type Config struct {
	Exchange     ExchangeConfig     `yaml:"exchange" json:"exchange"`
	Detector     DetectorConfig     `yaml:"detector" json:"detector"`
	Trade        TradeConfig        `yaml:"trade" json:"trade"`
	Log          LogConfig          `yaml:"log" json:"log"`
	Metrics      MetricsConfig      `yaml:"metrics" json:"metrics"`
	Journal      JournalConfig      `yaml:"journal" json:"journal"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane" json:"control_plane"`
	Secrets      SecretsConfig      `yaml:"secrets" json:"secrets"`
	DryRun       bool               `yaml:"dry_run" json:"dry_run"`             // 纸交易模式：订单在内存中撮合，不触达交易所
	PaperBalance float64            `yaml:"paper_balance" json:"paper_balance"` // 纸交易初始 source_currency 余额
}

var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:           "https://bittrex.com/api/v1.1",
			RequestsPerSecond: 10,
			Burst:             20,
			TimeoutSeconds:    10,
		},
		Detector: DetectorConfig{
			Prefix:          "BTC",
			Rate:            1.4,
			TrackRate:       1.15,
			MaxLength:       7,
			IntervalMs:      1000,
			CompareMode:     "oldest",
			ProgressEvery:   500,
			FeedTTLSeconds:  10,
			StreamMaxErrors: 30,
		},
		Trade: TradeConfig{
			SourceCurrency:        "BTC",
			ChunkCount:            1,
			Precision:             8,
			Commission:            0.0025,
			BuyBeforeMultiplier:   1.75,
			BuyAfterMultiplier:    1.15,
			SellBeforeMultiplier:  2.25,
			SellAfterMultiplier:   1.5,
			SellCurrentMultiplier: 0.925,
			BuyPolls:              30,
			SellFirstPolls:        40,
			SellSecondPolls:       35,
			SellOtherPolls:        30,
			SellAttempts:          5,
			PollIntervalMs:        50,
			BuyWindowSeconds:      15,
			SellWindowSeconds:     27,
			SignalTime:            "16:00",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/lagbot.log",
			PerRun:     true,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "data/lagbot.db",
		},
		ControlPlane: ControlPlaneConfig{
			Addr: "127.0.0.1:8787",
		},
		Secrets: SecretsConfig{
			Path:   "data/secrets.badger",
			Prefix: "env/",
		},
		PaperBalance: 1,
	}
}

// Load 加载配置（使用 SetConfigPath 设置的路径）
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置
// 优先级：环境变量 > 配置文件 > 默认值；.env 文件（如存在）先被载入环境变量
func LoadFromFile(filePath string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），覆盖到 cfg 上；文件中未出现的字段保留默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(cfg *Config) {
	cfg.Exchange.BaseURL = getEnv("BITTREX_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.WebsocketURL = getEnv("BITTREX_WS_URL", cfg.Exchange.WebsocketURL)
	cfg.Exchange.APIKey = getEnv("BITTREX_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.APISecret = getEnv("BITTREX_API_SECRET", cfg.Exchange.APISecret)

	cfg.Detector.Prefix = getEnv("DETECTOR_PREFIX", cfg.Detector.Prefix)
	cfg.Detector.Rate = parseFloatEnv("DETECTOR_RATE", cfg.Detector.Rate)
	cfg.Detector.TrackRate = parseFloatEnv("DETECTOR_TRACK_RATE", cfg.Detector.TrackRate)
	cfg.Detector.MaxLength = parseIntEnv("DETECTOR_MAX_LENGTH", cfg.Detector.MaxLength)
	cfg.Detector.IntervalMs = parseIntEnv("DETECTOR_INTERVAL_MS", cfg.Detector.IntervalMs)
	cfg.Detector.CompareMode = getEnv("DETECTOR_COMPARE_MODE", cfg.Detector.CompareMode)
	cfg.Detector.MaxErrors = parseIntEnv("DETECTOR_MAX_ERRORS", cfg.Detector.MaxErrors)

	cfg.Trade.SourceCurrency = getEnv("TRADE_SOURCE_CURRENCY", cfg.Trade.SourceCurrency)
	cfg.Trade.ChunkCount = parseIntEnv("TRADE_CHUNK_COUNT", cfg.Trade.ChunkCount)
	cfg.Trade.SignalTime = getEnv("SIGNAL_TIME", cfg.Trade.SignalTime)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.PerRun = parseBoolEnv("LOG_PER_RUN", cfg.Log.PerRun)

	cfg.Metrics.Enabled = parseBoolEnv("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Journal.Enabled = parseBoolEnv("JOURNAL_ENABLED", cfg.Journal.Enabled)
	cfg.Journal.Path = getEnv("JOURNAL_PATH", cfg.Journal.Path)
	cfg.ControlPlane.Enabled = parseBoolEnv("CONTROL_PLANE_ENABLED", cfg.ControlPlane.Enabled)
	cfg.ControlPlane.Addr = getEnv("CONTROL_PLANE_ADDR", cfg.ControlPlane.Addr)

	cfg.Secrets.Enabled = parseBoolEnv("LAGBOT_SECRETS_ENABLED", cfg.Secrets.Enabled)
	cfg.Secrets.Path = getEnv("LAGBOT_SECRET_DB", cfg.Secrets.Path)
	cfg.Secrets.Key = getEnv("LAGBOT_SECRET_KEY", cfg.Secrets.Key)

	cfg.DryRun = parseBoolEnv("DRY_RUN", cfg.DryRun)
	cfg.PaperBalance = parseFloatEnv("PAPER_BALANCE", cfg.PaperBalance)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Exchange.BaseURL) == "" {
		return fmt.Errorf("exchange.base_url 未配置")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		return fmt.Errorf("exchange.requests_per_second 必须大于 0")
	}

	if c.Detector.Rate <= 1 || c.Detector.TrackRate <= 1 {
		return fmt.Errorf("detector.rate / detector.track_rate 必须大于 1")
	}
	if c.Detector.MaxLength <= 0 {
		return fmt.Errorf("detector.max_length 必须大于 0")
	}
	if c.Detector.IntervalMs <= 0 {
		return fmt.Errorf("detector.interval_ms 必须大于 0")
	}
	switch c.Detector.CompareMode {
	case "oldest", "any":
	default:
		return fmt.Errorf("未知的 detector.compare_mode: %s (支持 oldest, any)", c.Detector.CompareMode)
	}

	t := c.Trade
	if t.SourceCurrency == "" {
		return fmt.Errorf("trade.source_currency 未配置")
	}
	if t.ChunkCount <= 0 {
		return fmt.Errorf("trade.chunk_count 必须大于 0")
	}
	if t.Precision < 0 {
		return fmt.Errorf("trade.precision 不能为负数")
	}
	if t.Commission < 0 || t.Commission >= 1 {
		return fmt.Errorf("trade.commission 必须在 [0, 1) 之间")
	}
	for name, v := range map[string]float64{
		"buy_before_multiplier":   t.BuyBeforeMultiplier,
		"buy_after_multiplier":    t.BuyAfterMultiplier,
		"sell_before_multiplier":  t.SellBeforeMultiplier,
		"sell_after_multiplier":   t.SellAfterMultiplier,
		"sell_current_multiplier": t.SellCurrentMultiplier,
	} {
		if v <= 0 {
			return fmt.Errorf("trade.%s 必须大于 0", name)
		}
	}
	if t.BuyPolls <= 0 || t.SellFirstPolls <= 0 || t.SellSecondPolls <= 0 || t.SellOtherPolls <= 0 {
		return fmt.Errorf("trade 轮询次数必须大于 0")
	}
	if t.SellAttempts <= 0 {
		return fmt.Errorf("trade.sell_attempts 必须大于 0")
	}
	if t.PollIntervalMs <= 0 {
		return fmt.Errorf("trade.poll_interval_ms 必须大于 0")
	}
	if t.SignalTime != "" {
		if _, err := ParseClockTime(t.SignalTime); err != nil {
			return err
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path 不能为空")
	}
	if c.DryRun && c.PaperBalance < 0 {
		return fmt.Errorf("paper_balance 不能为负数")
	}
	if c.Secrets.Enabled && c.Secrets.Key == "" {
		return fmt.Errorf("已启用 secrets 但未设置 LAGBOT_SECRET_KEY")
	}
	return nil
}

// ParseClockTime 解析 "HH:MM" 为当日偏移量
func ParseClockTime(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("trade.signal_time 格式错误（应为 HH:MM）: %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// SignalTimeOn 把 SignalTime 解析为 now 所在 UTC 日期的绝对时间；未配置返回零值
func (t TradeConfig) SignalTimeOn(now time.Time) (time.Time, error) {
	if strings.TrimSpace(t.SignalTime) == "" {
		return time.Time{}, nil
	}
	off, err := ParseClockTime(t.SignalTime)
	if err != nil {
		return time.Time{}, err
	}
	day := now.UTC().Truncate(24 * time.Hour)
	return day.Add(off), nil
}

// PollInterval 订单轮询间隔
func (t TradeConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// Interval 检测器周期
func (d DetectorConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMs) * time.Millisecond
}

// FeedTTL 推送行情缓存过期时间
func (d DetectorConfig) FeedTTL() time.Duration {
	return time.Duration(d.FeedTTLSeconds) * time.Second
}

// Timeout HTTP 请求超时
func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
