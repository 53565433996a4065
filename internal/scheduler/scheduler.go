// Package scheduler 并发执行一组会产生事件的子任务
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task 一个子任务, 运行过程中通过emit输出事件
type Task[E any] interface {
	Name() string
	Run(ctx context.Context, emit func(E)) error
}

type funcTask[E any] struct {
	name string
	fn   func(ctx context.Context, emit func(E)) error
}

func (t funcTask[E]) Name() string { return t.name }

func (t funcTask[E]) Run(ctx context.Context, emit func(E)) error { return t.fn(ctx, emit) }

// NewTask 用函数创建子任务
func NewTask[E any](name string, fn func(ctx context.Context, emit func(E)) error) Task[E] {
	return funcTask[E]{name: name, fn: fn}
}

// TaskError 子任务失败
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("任务 %s 失败: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// serialEmit 保证emit不会被并发调用; 单个任务内的事件顺序不变
func serialEmit[E any](emit func(E)) func(E) {
	if emit == nil {
		return func(E) {}
	}
	var mu sync.Mutex
	return func(e E) {
		mu.Lock()
		defer mu.Unlock()
		emit(e)
	}
}

// Bounded 最多limit个任务同时运行, 每个事件产生后立即交给emit.
// 某个任务失败后不再启动新的任务, 等待已启动的任务结束后返回所有错误.
// 任务列表为空时直接返回nil.
func Bounded[E any](ctx context.Context, tasks []Task[E], limit int, emit func(E)) error {
	if len(tasks) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	out := serialEmit(emit)
	sem := semaphore.NewWeighted(int64(limit))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		failed bool
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
		failed = true
	}
	hasFailed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failed
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			record(err)
			break
		}
		if hasFailed() {
			sem.Release(1)
			log.Printf("前序任务失败，跳过剩余 %d 个任务", len(tasks)-i)
			break
		}
		wg.Add(1)
		go func(task Task[E]) {
			defer wg.Done()
			defer sem.Release(1)
			if err := task.Run(ctx, out); err != nil {
				record(&TaskError{Task: task.Name(), Err: err})
			}
		}(task)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Unbounded 所有任务同时运行, 一个失败不影响其他任务, 全部结束后返回所有错误
func Unbounded[E any](ctx context.Context, tasks []Task[E], emit func(E)) error {
	if len(tasks) == 0 {
		return nil
	}
	out := serialEmit(emit)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task[E]) {
			defer wg.Done()
			if err := task.Run(ctx, out); err != nil {
				mu.Lock()
				errs = append(errs, &TaskError{Task: task.Name(), Err: err})
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()
	return errors.Join(errs...)
}
