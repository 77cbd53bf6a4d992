package waiter

// Waker is asserted to tell a sleeping goroutine that the condition it waits
// for may have become true. Assert must not block; sleep.Waker implements it
type Waker interface {
	Assert()
}

// Registration holds at most one Waker for one direction (receive or send)
// of a socket. It is protected by whatever lock protects the socket.
//
// The zero value holds no waker
type Registration struct {
	w Waker
}

// Register stores w, replacing any previous waker. Only one goroutine may
// wait per registration: the owner of a replaced waker is not told about it
func (r *Registration) Register(w Waker) {
	r.w = w
}

// Wake asserts the registered waker, if any, and forgets it
func (r *Registration) Wake() {
	if w := r.w; w != nil {
		r.w = nil
		w.Assert()
	}
}

// Registered returns true if a waker is pending
func (r *Registration) Registered() bool {
	return r.w != nil
}
