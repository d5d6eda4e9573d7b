package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/loop-client/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 16
	DefaultSubscriberBufSize = 16
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

type Publisher[T any] interface {
	SenderCloser[T]
	// AddSubscriber attaches an existing sender; if closeWithPublisher is true it is closed when the publisher closes.
	AddSubscriber(s SenderCloser[T], closeWithPublisher bool) error
	Subscribe() (ReceiverCloser[T], error)
	// SubscribeFiltered is like Subscribe, but only messages for which filter returns true are delivered.
	SubscribeFiltered(filter func(T) bool) (ReceiverCloser[T], error)
	// Flush waits until every message sent so far has been offered to every subscriber.
	Flush()
}

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup
	pending     sync.WaitGroup
	subscribers *sync_.Mutexed[map[SenderCloser[T]]bool]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(make(map[SenderCloser[T]]bool)),
	}
	p.running.Add(1)
	go p.run()
	return p
}

func (p *publisher[T]) run() {
	defer p.running.Done()
	for msg := range p.ch.Receive() {
		// Snapshot the subscribers so that slow receivers don't block AddSubscriber
		var snapshot []SenderCloser[T]
		_ = p.subscribers.Locked(func(subscribers *map[SenderCloser[T]]bool) error {
			snapshot = make([]SenderCloser[T], 0, len(*subscribers))
			for s := range *subscribers {
				snapshot = append(snapshot, s)
			}
			return nil
		})
		for _, s := range snapshot {
			if !s.Send(msg) {
				p.unsubscribe(s)
			}
		}
		p.pending.Done()
	}
}

// Send queues the message for delivery to all current subscribers.
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if !p.ch.Send(msg) {
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeFiltered(nil)
}

func (p *publisher[T]) SubscribeFiltered(filter func(T) bool) (ReceiverCloser[T], error) {
	ch := NewChannel[T](DefaultSubscriberBufSize)
	var sender SenderCloser[T] = ch
	if filter != nil {
		sender = NewFilteredSender[T](ch, filter)
	}
	if err := p.AddSubscriber(sender, true); err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T], closeWithPublisher bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers *map[SenderCloser[T]]bool) error {
		(*subscribers)[s] = closeWithPublisher
		return nil
	})
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(subscribers *map[SenderCloser[T]]bool) error {
		delete(*subscribers, s)
		return nil
	})
}

func (p *publisher[T]) Flush() {
	p.pending.Wait()
}

// Close delivers everything already sent, then closes the subscribers that asked for it. Idempotent.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	subscribers := p.subscribers.Swap(make(map[SenderCloser[T]]bool))
	for s, closeWithPublisher := range subscribers {
		if closeWithPublisher {
			s.Close()
		}
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
