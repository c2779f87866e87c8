package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChunkPlan 一个分片的交易计划（创建后不可变）
type ChunkPlan struct {
	ID               string
	Market           string
	SourceAmount     decimal.Decimal // 本分片可花费的源币数量
	BeforeSignalRate decimal.Decimal // 信号前（历史快照）Ask
	AfterSignalRate  decimal.Decimal // 信号后（当前快照）Ask
	SourceCurrency   string
	TargetCurrency   string
	SignalTime       time.Time // 买卖截止时间的基准
}

// OutcomeStatus 分片最终状态
type OutcomeStatus string

const (
	OutcomeSold          OutcomeStatus = "sold"           // 全部卖出
	OutcomePartial       OutcomeStatus = "partial"        // 卖单次数耗尽仍有剩余
	OutcomeNothingBought OutcomeStatus = "nothing_bought" // 买单未成交
	OutcomeBuyRejected   OutcomeStatus = "buy_rejected"   // 买单被拒
	OutcomeUnknown       OutcomeStatus = "unknown"        // 无法确定订单状态
	OutcomeSkipped       OutcomeStatus = "skipped"        // 计算出的价格或数量为 0
)

// ChunkOutcome 分片执行结果
type ChunkOutcome struct {
	ChunkID  string
	Market   string
	Status   OutcomeStatus
	Bought   decimal.Decimal
	Sold     decimal.Decimal
	Residual decimal.Decimal // 未卖出的目标币数量
	BuyRate  decimal.Decimal
	Attempts int // 卖出尝试次数
	Err      error
}
