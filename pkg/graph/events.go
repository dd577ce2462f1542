package graph

import "go.uber.org/zap"

// subscribers is an ordered registration list. Delivery iterates over a
// snapshot, so a callback that unsubscribes (or subscribes) during
// delivery never skips or double-fires a sibling.
type subscribers[F any] struct {
	seq     int
	entries []subscriberEntry[F]
}

type subscriberEntry[F any] struct {
	id int
	fn F
}

func (s *subscribers[F]) add(fn F) func() {
	s.seq++
	id := s.seq
	s.entries = append(s.entries, subscriberEntry[F]{id: id, fn: fn})
	return func() {
		for i, e := range s.entries {
			if e.id == id {
				s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
				return
			}
		}
	}
}

func (s *subscribers[F]) snapshot() []F {
	if s == nil || len(s.entries) == 0 {
		return nil
	}
	out := make([]F, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.fn
	}
	return out
}

func (s *subscribers[F]) empty() bool {
	return s == nil || len(s.entries) == 0
}

// safely runs a user callback inside the exception barrier. A panic is
// logged and swallowed: it never aborts the mutation and never prevents
// the remaining subscribers from running.
func (g *Graph) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("callback panicked", zap.Any("recover", r))
		}
	}()
	fn()
}

// propKey addresses per-(node, name) state: signals, edge handles and
// subscription lists.
type propKey struct {
	id   int64
	name string
}
