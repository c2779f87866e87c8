package race

import (
	"context"
	"errors"
	"fmt"
)

// Task 参与竞速的任务。
// 任务应只在自己的边界（例如每轮循环开始/睡眠时）检查 ctx，不要把 ctx 传进正在进行的网络调用。
type Task[T any] func(ctx context.Context) (T, error)

// ErrNoTasks 没有任何任务
var ErrNoTasks = errors.New("race: no tasks")

type result[T any] struct {
	idx int
	val T
	err error
}

// First 并发运行所有任务，返回第一个成功的结果（first-result-wins）。
// 一旦有赢家，其余任务的 ctx 被取消，在它们下一个任务边界退出；First 不等待输家退出。
// 所有任务都失败时返回合并后的错误。
func First[T any](ctx context.Context, tasks ...Task[T]) (T, int, error) {
	var zero T
	if len(tasks) == 0 {
		return zero, -1, ErrNoTasks
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 带缓冲，输家晚到的结果不会阻塞 goroutine
	results := make(chan result[T], len(tasks))
	for i, task := range tasks {
		go func(idx int, fn Task[T]) {
			v, err := fn(raceCtx)
			results <- result[T]{idx: idx, val: v, err: err}
		}(i, task)
	}

	var errs []error
	for range tasks {
		select {
		case r := <-results:
			if r.err == nil {
				return r.val, r.idx, nil
			}
			errs = append(errs, fmt.Errorf("task %d: %w", r.idx, r.err))
		case <-ctx.Done():
			return zero, -1, ctx.Err()
		}
	}
	return zero, -1, errors.Join(errs...)
}
