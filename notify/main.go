// Package notify fans values out to subscribers.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const multiplexerTimeout = 200 * time.Millisecond

const sendQueueLength = 64

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// MultiplexerSender is the sending side of a Multiplexer. Values are delivered in the order they are sent.
type MultiplexerSender[E any] struct {
	m         *Multiplexer[E]
	queue     chan E
	closeOnce sync.Once
}

// Send queues e for delivery and returns without waiting for subscribers.
// It blocks only if the queue is full.
func (ms *MultiplexerSender[E]) Send(e E) {
	ms.queue <- e
}

// Close stops delivery once queued values are sent. Send must not be called afterwards.
func (ms *MultiplexerSender[E]) Close() {
	ms.closeOnce.Do(func() { close(ms.queue) })
}

func (ms *MultiplexerSender[E]) run() {
	for e := range ms.queue {
		ms.m.send(e)
	}
}

func NewMultiplexerSender[E any](comment string) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		comment: comment,
	}
	ms := &MultiplexerSender[E]{m: m, queue: make(chan E, sendQueueLength)}
	go ms.run()
	return ms, m
}

type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
}

// subscribersLock must be taken!
func (m *Multiplexer[E]) cleanup() {
	last := len(m.subscribers) - 1
	if last < 0 || m.subscribers[last].ch == nil {
		return
	}
	for i, sub := range m.subscribers {
		if sub.ch == nil {
			m.subscribers[i], m.subscribers[last] = m.subscribers[last], subscriber[E]{}
			return
		}
	}
}

// Subscribe starts delivering values to c. Slow subscribers miss values after a timeout.
func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	sub := subscriber[E]{
		ch:      c,
		comment: comment,
	}
	last := len(m.subscribers) - 1
	if last >= 0 && m.subscribers[last].ch == nil {
		m.subscribers[last] = sub
		m.cleanup()
	} else {
		m.subscribers = append(m.subscribers, sub)
	}
}

func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers[i] = subscriber[E]{}
	m.cleanup()
}

// Subscribers returns the number of current subscribers.
func (m *Multiplexer[E]) Subscribers() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	n := 0
	for _, sub := range m.subscribers {
		if sub.ch != nil {
			n++
		}
	}
	return n
}

func (m *Multiplexer[E]) send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		if sub.ch == nil {
			continue
		}
		select {
		case sub.ch <- e:
		case <-time.After(multiplexerTimeout):
			m.timeout(sub, e)
		}
	}
}

func (m *Multiplexer[E]) timeout(sub subscriber[E], e E) {
	zap.S().Warnw("subscriber timed out",
		"multiplexer", m.comment,
		"subscriber", sub.comment,
		"value", e)
}
