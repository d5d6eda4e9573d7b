// Package pubsub provides typed fan-out of events over channels, with close semantics that are safe to race against
// sends.
package pubsub

import "sync"

type Sender[T any] interface {
	// Send returns false if the message could not be delivered because the receiver is closed.
	Send(T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
	// Closed returns a channel that is closed once Close has been called.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel wraps a primitive chan so that Send and Close can be called from any goroutine in any order.
type channel[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	done    chan struct{}
	closed  bool
	sending sync.WaitGroup
}

func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:   make(chan T, bufSize),
		done: make(chan struct{}),
	}
}

func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

// Send blocks until the message is buffered or received, or the channel is closed.
func (c *channel[T]) Send(msg T) bool {
	// Either Close() sees this send in the WaitGroup, or this send sees closed == true
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.sending.Add(1)
	defer c.sending.Done()
	c.mu.RUnlock()

	select {
	case c.ch <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Close is idempotent. Messages already buffered can still be received before the receive channel reports closed.
func (c *channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.sending.Wait()
	close(c.ch)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.done
}
