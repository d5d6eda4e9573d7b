package pubsub

func NewFilteredSender[T any](s SenderCloser[T], filter func(T) bool) SenderCloser[T] {
	return &filteredSender[T]{
		SenderCloser: s,
		filter:       filter,
	}
}

type filteredSender[T any] struct {
	SenderCloser[T]
	filter func(T) bool
}

// Send reports true for dropped messages as long as the inner sender is open: the message was accepted, just not
// forwarded.
func (s *filteredSender[T]) Send(msg T) bool {
	select {
	case <-s.Closed():
		return false
	default:
	}
	if s.filter == nil || s.filter(msg) {
		return s.SenderCloser.Send(msg)
	}
	return true
}
