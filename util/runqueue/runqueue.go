/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	idle int32 = iota
	running
)

// PanicHandler is invoked when a queued operation panics.
type PanicHandler func(queueName string, err interface{}, stack []byte)

// RunQueue represents a serial operation queue.
// Operations are executed in submission order on a single goroutine at a time.
type RunQueue struct {
	name         string
	onPanic      PanicHandler
	mu           sync.Mutex
	queue        []interface{}
	messageCount int32
	state        int32
	stopped      int32
}

type funcMessage struct{ fn func() }
type stopMessage struct{ stopCb func() }

// New returns an initialized operation queue.
func New(name string, onPanic PanicHandler) *RunQueue {
	return &RunQueue{
		name:    name,
		onPanic: onPanic,
	}
}

// Run pushes a new operation function into the queue.
func (m *RunQueue) Run(fn func()) {
	if atomic.LoadInt32(&m.stopped) == 1 {
		return
	}
	m.push(&funcMessage{fn: fn})
	m.schedule()
}

// Stop signals the queue to stop running.
//
// Callback function represented by 'stopCb' is invoked once every previously
// scheduled operation has run.
func (m *RunQueue) Stop(stopCb func()) {
	if !atomic.CompareAndSwapInt32(&m.stopped, 0, 1) {
		if stopCb != nil {
			stopCb()
		}
		return
	}
	m.push(&stopMessage{stopCb: stopCb})
	m.schedule()
}

func (m *RunQueue) push(msg interface{}) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	atomic.AddInt32(&m.messageCount, 1)
}

func (m *RunQueue) pop() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	msg := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return msg
}

func (m *RunQueue) schedule() {
	if atomic.CompareAndSwapInt32(&m.state, idle, running) {
		go m.process()
	}
}

func (m *RunQueue) process() {
process:
	m.run()

	atomic.StoreInt32(&m.state, idle)
	if atomic.LoadInt32(&m.messageCount) > 0 {
		// try setting the queue back to running
		if atomic.CompareAndSwapInt32(&m.state, idle, running) {
			goto process
		}
	}
}

func (m *RunQueue) run() {
	for {
		msg := m.pop()
		if msg == nil {
			return
		}
		switch msg := msg.(type) {
		case *funcMessage:
			m.exec(msg.fn)
		case *stopMessage:
			if cb := msg.stopCb; cb != nil {
				cb()
			}
		}
		atomic.AddInt32(&m.messageCount, -1)
	}
}

func (m *RunQueue) exec(fn func()) {
	defer func() {
		if err := recover(); err != nil && m.onPanic != nil {
			stackSlice := make([]byte, 4096)
			s := runtime.Stack(stackSlice, false)
			m.onPanic(m.name, err, stackSlice[:s])
		}
	}()
	fn()
}
