package worker

import (
	"errors"
	"fmt"
	"sync"

	"example.org/recorderd/responder"
)

var ErrMailboxClosed = errors.New("mailbox closed")

// Policy decides what a Mailbox keeps when items arrive faster than the
// worker reads them.
type Policy int

const (
	// FIFO keeps every item in arrival order.
	FIFO Policy = iota
	// Latest keeps only the newest unread item.
	Latest
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fifo":
		return FIFO, nil
	case "latest":
		return Latest, nil
	}
	return FIFO, fmt.Errorf("unknown queue policy %q", s)
}

func (p Policy) String() string {
	if p == Latest {
		return "latest"
	}
	return "fifo"
}

// Mailbox is the single-producer, single-consumer channel between the
// dispatcher and one worker. It is unbounded so the dispatcher never blocks.
// Closing it from either side ends the conversation: Send fails at once,
// while Recv and TryRecv drain what is left before failing.
type Mailbox struct {
	policy Policy

	mu     sync.Mutex
	items  []responder.WorkItem
	closed bool
	ready  chan struct{}
}

func NewMailbox(policy Policy) *Mailbox {
	return &Mailbox{
		policy: policy,
		ready:  make(chan struct{}, 1),
	}
}

func (m *Mailbox) Send(item responder.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMailboxClosed
	}
	if m.policy == Latest {
		m.items = append(m.items[:0], item)
	} else {
		m.items = append(m.items, item)
	}
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return nil
}

// Recv blocks until an item is available or the mailbox is closed and empty.
func (m *Mailbox) Recv() (responder.WorkItem, error) {
	for {
		item, ok, err := m.TryRecv()
		if ok || err != nil {
			return item, err
		}
		<-m.ready
	}
}

// TryRecv never blocks. ok is false when no item is waiting.
func (m *Mailbox) TryRecv() (item responder.WorkItem, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) > 0 {
		item = m.items[0]
		m.items[0] = responder.WorkItem{}
		m.items = m.items[1:]
		return item, true, nil
	}
	if m.closed {
		return item, false, ErrMailboxClosed
	}
	return item, false, nil
}

func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.ready)
	}
}

// Len is the number of unread items.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
