package domain

import "time"

// Signal 检测到的价格滞后信号
type Signal struct {
	MarketName   string
	Current      Quote     // 本周期快照
	Past         Quote     // 触发比较的历史快照
	HistoryIndex int       // Past 在历史中的位置（0 = 最旧）
	Cycle        int64     // 检测器周期序号
	DetectedAt   time.Time
	Source       string    // 检测器名称，例如 poll / stream
}
