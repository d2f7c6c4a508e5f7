package session

// signal is a loop-confined list of callbacks. It is not safe for concurrent use.
type signal[T any] struct {
	subs []*subscription[T]
}

type subscription[T any] struct {
	fn func(T)
}

// subscribe registers fn and returns a function removing it. Removing twice is a no-op.
func (s *signal[T]) subscribe(fn func(T)) func() {
	sub := &subscription[T]{fn: fn}
	s.subs = append(s.subs, sub)
	return func() {
		for i, other := range s.subs {
			if other == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// emit calls every subscriber registered when emit started, unless it was removed meanwhile.
func (s *signal[T]) emit(v T) {
	snapshot := append([]*subscription[T](nil), s.subs...)
	for _, sub := range snapshot {
		if s.contains(sub) {
			sub.fn(v)
		}
	}
}

func (s *signal[T]) contains(sub *subscription[T]) bool {
	for _, other := range s.subs {
		if other == sub {
			return true
		}
	}
	return false
}

func (s *signal[T]) len() int {
	return len(s.subs)
}
