package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context)

// Manager 优雅关闭管理器
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
	log       *logrus.Entry
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewManager 创建新的关闭管理器
func NewManager(log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{log: log}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 并发执行所有关闭回调（阻塞调用）
// ctx 应该是一个带超时的 context，避免无限等待
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()

	if len(callbacks) == 0 {
		m.log.Info("没有注册的关闭回调")
		return
	}

	m.log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h namedHandler) {
			defer wg.Done()
			h.fn(ctx)
			m.log.Debugf("关闭回调完成: %s", h.name)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("所有关闭回调已完成")
	case <-ctx.Done():
		m.log.Warnf("关闭超时: %v", ctx.Err())
	}
}
