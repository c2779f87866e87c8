package clock

import (
	"context"
	"sync"
	"time"
)

// Clock 时间源 + 协作式睡眠。
// 所有轮询/截止时间判断都经过 Clock，测试里注入 Fake 即可脱离真实计时器。
type Clock interface {
	Now() time.Time
	// Sleep 睡眠 d；ctx 取消时提前返回 ctx.Err()
	Sleep(ctx context.Context, d time.Duration) error
}

// Real 基于 time 包的实现
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake 虚拟时钟：Sleep 立即返回并把时间向前推进 d。
// 并发安全，可在多个 goroutine（多个 chunk）之间共享。
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
	onTick []func(now time.Time)
}

// NewFake 创建从 start 开始的虚拟时钟
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}

// Advance 推进时间并触发 OnAdvance 回调
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	if d > 0 {
		f.now = f.now.Add(d)
		f.slept += d
	}
	f.sleeps++
	now := f.now
	hooks := append([]func(time.Time){}, f.onTick...)
	f.mu.Unlock()

	for _, h := range hooks {
		h(now)
	}
}

// OnAdvance 注册时间推进回调（测试里用来在某个时刻改变交易所状态）
func (f *Fake) OnAdvance(fn func(now time.Time)) {
	f.mu.Lock()
	f.onTick = append(f.onTick, fn)
	f.mu.Unlock()
}

// Slept 返回累计睡眠时长
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Sleeps 返回 Sleep/Advance 调用次数
func (f *Fake) Sleeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeps
}
