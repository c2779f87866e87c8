package syncgroup

import (
	"sync"
)

type syncGroupFunc func()

// SyncGroup 是 sync.WaitGroup 的包装器，简化 goroutine 生命周期管理
// 自动管理 Add() 和 Done()，并吞掉单个任务的 panic，避免一个 chunk 拖垮整个进程
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []syncGroupFunc
	panics  []interface{}
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个待运行的函数（Run 时统一启动）
func (w *SyncGroup) Add(fn syncGroupFunc) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, fn)
	w.mu.Unlock()
}

// Run 启动所有已添加的函数，每个函数一个 goroutine；启动后清空待运行列表
func (w *SyncGroup) Run() {
	w.mu.Lock()
	fns := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, fn := range fns {
		w.wg.Add(1)
		go func(doFunc syncGroupFunc) {
			defer w.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.mu.Lock()
					w.panics = append(w.panics, r)
					w.mu.Unlock()
				}
			}()
			doFunc()
		}(fn)
	}
}

// WaitAndClear 等待所有 goroutine 完成，返回期间捕获的 panic 并清空
func (w *SyncGroup) WaitAndClear() []interface{} {
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	panics := w.panics
	w.panics = nil
	w.pending = nil
	return panics
}
