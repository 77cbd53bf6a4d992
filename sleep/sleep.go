// Package sleep allows goroutines to efficiently sleep on multiple sources of
// notifications (wakers). It offers O(1) complexity on assertion and a scan
// over the registered wakers on fetch, which stays cheap for the handful of
// wakers a socket operation or a stack driver waits on.
//
// A Sleeper can have multiple Wakers associated with it, each identified by
// an id chosen when the waker is added. Fetch returns the id of an asserted
// waker and clears the assertion, or blocks until some waker is asserted.
//
// Wakers may be asserted from any goroutine, including while the asserter
// holds locks, because Assert never blocks
package sleep

import (
	"sync"
	"sync/atomic"
)

// Waker represents a source of wake-up notifications to be sent to sleepers.
// A waker can be associated with at most one sleeper at a time
//
// The zero value is a cleared waker with no sleeper
type Waker struct {
	asserted atomic.Bool
	s        atomic.Pointer[Sleeper]
}

// Assert moves the waker to an asserted state, if it isn't asserted yet. When
// asserted, the waker will cause its matching sleeper to wake up
func (w *Waker) Assert() {
	if w.asserted.Swap(true) {
		// Already pending, the sleeper will see it on its next scan
		return
	}

	if s := w.s.Load(); s != nil {
		s.notify()
	}
}

// Clear moves the waker to the non-asserted state and returns whether it was
// asserted before being cleared
func (w *Waker) Clear() bool {
	return w.asserted.Swap(false)
}

// IsAsserted returns whether the waker is currently asserted
func (w *Waker) IsAsserted() bool {
	return w.asserted.Load()
}

type wakerEntry struct {
	w  *Waker
	id int
}

// Sleeper allows a goroutine to sleep and receive wake up notifications from
// Wakers in an efficient way
//
// The zero value is a sleeper with no wakers, ready to use
type Sleeper struct {
	mu     sync.Mutex
	wakers []wakerEntry
	next   int
	ch     chan struct{}
}

// AddWaker associates the given waker to the sleeper. id is the value to be
// returned when the sleeper is woken by the given waker
func (s *Sleeper) AddWaker(w *Waker, id int) {
	s.mu.Lock()
	if s.ch == nil {
		s.ch = make(chan struct{}, 1)
	}
	s.wakers = append(s.wakers, wakerEntry{w: w, id: id})
	s.mu.Unlock()

	w.s.Store(s)

	// The waker may have been asserted before it had a sleeper to notify
	if w.IsAsserted() {
		s.notify()
	}
}

func (s *Sleeper) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Fetch fetches the next wake-up notification. If a notification is
// immediately available, it is returned right away. Otherwise, the behavior
// depends on the value of 'block': if true, the current goroutine blocks
// until a notification arrives, then returns it; if false, returns 'ok' as
// false
//
// N.B. This method is *not* thread-safe. Only one goroutine at a time is
// allowed to call this method
func (s *Sleeper) Fetch(block bool) (id int, ok bool) {
	for {
		s.mu.Lock()
		n := len(s.wakers)
		for i := 0; i < n; i++ {
			e := s.wakers[(s.next+i)%n]
			if e.w.asserted.CompareAndSwap(true, false) {
				// Start the next scan after this waker so that a
				// busy waker can't starve the others
				s.next = (s.next + i + 1) % n
				s.mu.Unlock()
				return e.id, true
			}
		}
		ch := s.ch
		s.mu.Unlock()

		if !block || ch == nil {
			return -1, false
		}

		<-ch
	}
}

// Done is used to indicate that the caller won't use this Sleeper anymore. It
// removes the association with all wakers so that they can be safely reused
// by another sleeper
//
// Asserted wakers stay asserted
func (s *Sleeper) Done() {
	s.mu.Lock()
	for _, e := range s.wakers {
		e.w.s.CompareAndSwap(s, nil)
	}
	s.wakers = nil
	s.next = 0
	s.mu.Unlock()
}
