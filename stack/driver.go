package stack

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/YaoZengzeng/yunet/sleep"
	"github.com/YaoZengzeng/yunet/waiter"
)

const (
	wakerReady = iota
	wakerCancel
)

// linkRetryInterval is how long the driver waits before retrying a link that
// refused a packet
const linkRetryInterval = time.Millisecond

// Run polls the stack every time it is woken, until ctx is done. At most one
// Run should be active per stack
func (s *Stack) Run(ctx context.Context) error {
	var (
		sleeper sleep.Sleeper
		ready   sleep.Waker
		cancel  sleep.Waker
	)
	sleeper.AddWaker(&ready, wakerReady)
	sleeper.AddWaker(&cancel, wakerCancel)
	defer sleeper.Done()

	e := waiter.NewWakerEntry(&ready)
	s.EventRegister(&e)
	defer s.EventUnregister(&e)

	stop := context.AfterFunc(ctx, cancel.Assert)
	defer stop()

	s.log.Info("stack driver started")
	defer s.log.Info("stack driver stopped")

	for {
		s.lock()
		s.pollLocked()
		busy := s.linkBusyLocked()
		s.mu.Unlock()

		if busy {
			time.AfterFunc(linkRetryInterval, ready.Assert)
		}

		if id, _ := sleeper.Fetch(true); id == wakerCancel {
			s.log.Debug("stack driver cancelled", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
}
