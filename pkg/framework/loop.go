package framework

import (
	"context"
	"sync"
)

// DefaultQueueSize is the number of messages a Loop holds before dropping.
const DefaultQueueSize = 256

// Loop delivers posted messages to handlers in order on its own goroutine,
// so a slow handler never blocks the poster.
type Loop struct {
	QueueSize int

	handlers []MessageHandler

	lock     sync.Mutex
	messages messageList
	queued   int
	dropped  uint64
	wakeUpCh chan struct{}
}

type messageList struct {
	head *messageItem
	tail *messageItem
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *messageList) splice(src *messageList) {
	l.head, l.tail = src.head, src.tail
	src.head, src.tail = nil, nil
}

// NewLoop creates a Loop.
func NewLoop(handlers ...MessageHandler) *Loop {
	return &Loop{
		QueueSize: DefaultQueueSize,
		handlers:  handlers,
		wakeUpCh:  make(chan struct{}, 1),
	}
}

// Add registers handlers. It must be called before Run.
func (l *Loop) Add(handlers ...MessageHandler) *Loop {
	l.handlers = append(l.handlers, handlers...)
	return l
}

// Post enqueues a message. It returns false if the queue is full and the
// message is dropped.
func (l *Loop) Post(msg Message) bool {
	l.lock.Lock()
	if l.QueueSize > 0 && l.queued >= l.QueueSize {
		l.dropped++
		l.lock.Unlock()
		return false
	}
	l.messages.append(&messageItem{msg: msg})
	l.queued++
	l.lock.Unlock()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
	return true
}

// Dropped returns the number of messages dropped so far.
func (l *Loop) Dropped() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.dropped
}

// Run implements Runnable. Messages still queued when ctx is done are
// discarded.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wakeUpCh:
			l.dispatch(ctx)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context) {
	var msgs messageList
	l.lock.Lock()
	msgs.splice(&l.messages)
	l.queued = 0
	l.lock.Unlock()
	for item := msgs.head; item != nil; item = item.next {
		if ctx.Err() != nil {
			return
		}
		for _, h := range l.handlers {
			h.HandleMessage(ctx, item.msg)
		}
	}
}
