package flow

import (
	"fmt"
	"sync"
)

// mailbox runs posted functions one at a time, in order, on its own
// goroutine. Every callback that touches flow state goes through it.
type mailbox struct {
	mu      sync.Mutex
	items   []func()
	notify  chan struct{}
	stopped bool
	onPanic func(error)
}

func newMailbox(onPanic func(error)) *mailbox {
	return &mailbox{
		notify:  make(chan struct{}, 1),
		onPanic: onPanic,
	}
}

// post enqueues fn. It returns false once the mailbox is stopped.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, fn)
	m.mu.Unlock()

	m.signal()
	return true
}

func (m *mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) start() {
	go m.run()
}

// stop discards pending items. The function currently running, if any,
// finishes normally.
func (m *mailbox) stop() {
	m.mu.Lock()
	m.stopped = true
	m.items = nil
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) run() {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		if len(m.items) == 0 {
			m.mu.Unlock()
			<-m.notify
			continue
		}
		fn := m.items[0]
		m.items[0] = nil
		m.items = m.items[1:]
		m.mu.Unlock()

		m.invoke(fn)
	}
}

func (m *mailbox) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && m.onPanic != nil {
			m.onPanic(fmt.Errorf("flow callback panicked: %v", r))
		}
	}()
	fn()
}
