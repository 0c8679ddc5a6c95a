package spibus

import (
	"fmt"
	"sync"

	"stlcd/internal/panel"
)

type taskState int

const (
	taskAllocated taskState = iota + 1
	taskCommitted
	taskRan
)

// taskQueue tracks the single live pixel task and recycles its buffers.
type taskQueue struct {
	mu    sync.Mutex
	pool  sync.Pool
	live  *panel.Task
	buf   *[]byte
	state taskState

	run func(t *panel.Task) error
}

func newTaskQueue(run func(t *panel.Task) error) *taskQueue {
	return &taskQueue{run: run}
}

// AllocTask hands out a buffer of size bytes. Its contents are undefined.
func (q *taskQueue) AllocTask(cs panel.ChipSelect, size int) (*panel.Task, error) {
	if size < 0 {
		return nil, fmt.Errorf("spibus: negative task size %d", size)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.live != nil {
		return nil, ErrTaskInFlight
	}

	bp, _ := q.pool.Get().(*[]byte)
	if bp == nil || cap(*bp) < size {
		b := make([]byte, size)
		bp = &b
	}
	*bp = (*bp)[:size]

	q.live = &panel.Task{CS: cs, Data: *bp}
	q.buf = bp
	q.state = taskAllocated
	return q.live, nil
}

func (q *taskQueue) CommitTask(t *panel.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t == nil || t != q.live || q.state != taskAllocated {
		return ErrTaskState
	}
	q.state = taskCommitted
	return nil
}

// RunTask sends a committed task. The queue lock is not held while the
// bytes go out.
func (q *taskQueue) RunTask(t *panel.Task) error {
	q.mu.Lock()
	if t == nil || t != q.live || q.state != taskCommitted {
		q.mu.Unlock()
		return ErrTaskState
	}
	q.state = taskRan
	q.mu.Unlock()
	return q.run(t)
}

// DoneTask releases t. Releasing a task that is not live does nothing.
func (q *taskQueue) DoneTask(t *panel.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t == nil || t != q.live {
		return
	}
	q.pool.Put(q.buf)
	q.live, q.buf, q.state = nil, nil, 0
}
