package engine

const eventBufferSize = 256

// Subscription delivers engine events in the order they happened.
type Subscription struct {
	Events <-chan Event
	Done   <-chan struct{}

	eventsCh chan Event
	doneCh   chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		eventsCh: make(chan Event, eventBufferSize),
		doneCh:   make(chan struct{}),
	}
	s.Events = s.eventsCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	close(s.doneCh)
}

// send never blocks. It reports false when the event was dropped because
// the subscriber fell behind.
func (s *Subscription) send(ev Event) bool {
	select {
	case s.eventsCh <- ev:
		return true
	default:
		return false
	}
}
