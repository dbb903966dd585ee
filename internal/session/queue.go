package session

import (
	"context"
	"fmt"
	"sync"
)

// Op is an operation run inside a key's queue slot.
type Op func(ctx context.Context) error

// Queue serializes operations per key. Each key gets a mailbox drained by a
// single goroutine; mailboxes for different keys run concurrently. A mailbox
// is dropped as soon as it drains.
//
// An Op must not Enqueue on its own key: it would wait on itself forever.
type Queue struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
	wg    sync.WaitGroup
}

type mailbox struct {
	tasks []task
}

type task struct {
	ctx  context.Context
	op   Op
	done chan error
}

func NewQueue() *Queue {
	return &Queue{boxes: make(map[string]*mailbox)}
}

// Enqueue appends op to key's FIFO and waits for its result. Once enqueued
// the op always runs; ctx is handed to it but does not cancel the wait.
func (q *Queue) Enqueue(ctx context.Context, key string, op Op) error {
	t := task{ctx: ctx, op: op, done: make(chan error, 1)}

	q.mu.Lock()
	box, ok := q.boxes[key]
	if !ok {
		box = &mailbox{}
		q.boxes[key] = box
		q.wg.Add(1)
		go q.drain(key, box)
	}
	box.tasks = append(box.tasks, t)
	q.mu.Unlock()

	return <-t.done
}

func (q *Queue) drain(key string, box *mailbox) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(box.tasks) == 0 {
			delete(q.boxes, key)
			q.mu.Unlock()
			return
		}
		t := box.tasks[0]
		box.tasks[0] = task{}
		box.tasks = box.tasks[1:]
		q.mu.Unlock()

		t.done <- run(t)
	}
}

func run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return t.op(t.ctx)
}

// Len is the number of keys with queued or running operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.boxes)
}

// Wait blocks until every mailbox has drained.
func (q *Queue) Wait() { q.wg.Wait() }
