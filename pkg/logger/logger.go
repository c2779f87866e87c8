package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例（仅供启动/引导代码使用，核心组件通过注入的 Entry 打日志）
	Logger *logrus.Logger
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// logMu 初始化锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
	PerRun     bool   // 是否每次启动单独一个日志文件（文件名带启动时间）
}

// textFormatter 统一的文本格式
func textFormatter() *logrus.TextFormatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     true,
	}
}

// perRunFileName 生成按启动时间命名的日志文件：logs/lagbot.log -> logs/lagbot_2026-10-19_16-00.log
func perRunFileName(basePath string, startedAt time.Time) string {
	dir := filepath.Dir(basePath)
	baseName := filepath.Base(basePath)
	ext := filepath.Ext(baseName)
	nameWithoutExt := baseName[:len(baseName)-len(ext)]
	name := fmt.Sprintf("%s_%s%s", nameWithoutExt, startedAt.Format("2006-01-02_15-04"), ext)
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// New 根据配置构建 logger（不修改全局状态），便于测试和多实例
func New(config Config) (*logrus.Logger, string, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(textFormatter())

	writers := []io.Writer{os.Stdout}
	logFilePath := ""
	if config.OutputFile != "" {
		logFilePath = config.OutputFile
		if config.PerRun {
			logFilePath = perRunFileName(config.OutputFile, time.Now())
		}

		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return nil, "", err
		}

		// 配置日志轮转
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))
	return logger, logFilePath, nil
}

// Init 初始化全局日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger, path, err := New(config)
	if err != nil {
		return err
	}

	// 同时设置全局 logrus，保证第三方/遗留代码里的 logrus.Infof 也写入同一个文件
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(textFormatter())

	Logger = logger
	currentLogFile = path
	return nil
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/lagbot.log",
		MaxSize:    100, // 100MB
		MaxBackups: 3,
		MaxAge:     7, // 7天
		Compress:   true,
		PerRun:     true,
	})
}

// Component 返回带 component 字段的 Entry，注入到各个组件中使用
func Component(name string) *logrus.Entry {
	return WithField("component", name)
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

// WithFields 添加多个字段到日志上下文
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.WithFields(fields)
}

// GetCurrentLogFile 获取当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}
