package progress

// Mailbox holds at most one value. Put replaces an unread value, so a slow
// reader only ever sees the latest one and writers never block.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, 1)}
}

// Put stores v, discarding any value not yet taken.
func (m *Mailbox[T]) Put(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// C returns the channel to receive values from.
func (m *Mailbox[T]) C() <-chan T {
	return m.ch
}

// TryTake returns the pending value, if any.
func (m *Mailbox[T]) TryTake() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
