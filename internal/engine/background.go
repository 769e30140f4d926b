package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// backgroundTaskTimeout bounds how long one best-effort task may run.
const backgroundTaskTimeout = 5 * time.Second

// Task is one best-effort unit of work run after a response has already
// been returned to the caller.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// BackgroundQueue runs fire-and-forget tasks on a single worker. Task
// failures are logged and never affect the caller-visible result; a full
// queue drops the task with a log line rather than blocking.
type BackgroundQueue struct {
	tasks  chan Task
	logger *slog.Logger
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewBackgroundQueue starts the worker with the given queue capacity.
func NewBackgroundQueue(capacity int, logger *slog.Logger) *BackgroundQueue {
	if capacity <= 0 {
		capacity = 100
	}
	q := &BackgroundQueue{
		tasks:  make(chan Task, capacity),
		logger: logger,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *BackgroundQueue) run() {
	defer q.wg.Done()
	for task := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		if err := task.Run(ctx); err != nil {
			q.logger.Warn("background task failed", "task", task.Name, "error", err)
		}
		cancel()
	}
}

// Enqueue submits a task, reporting false if the queue is full.
func (q *BackgroundQueue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("background queue full, dropping task", "task", task.Name)
		return false
	}
}

// Close drains remaining tasks and stops the worker.
func (q *BackgroundQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}
