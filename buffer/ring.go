package buffer

// byteRing is a ring of bytes over storage it does not own. All slices it
// hands out are contiguous; callers ask for the contiguous window first
type byteRing struct {
	storage []byte
	read    int
	length  int
}

func (r *byteRing) capacity() int {
	return len(r.storage)
}

// window returns the number of free bytes, contiguous or not
func (r *byteRing) window() int {
	return r.capacity() - r.length
}

// contiguousWindow returns the number of free bytes that can be written
// without wrapping around
func (r *byteRing) contiguousWindow() int {
	if r.capacity() == 0 {
		return 0
	}

	write := (r.read + r.length) % r.capacity()
	if n := r.capacity() - write; n < r.window() {
		return n
	}
	return r.window()
}

// enqueue claims up to size contiguous bytes at the write position
func (r *byteRing) enqueue(size int) []byte {
	if r.length == 0 {
		// Restart from the beginning to maximize the contiguous window
		r.read = 0
	}

	if n := r.contiguousWindow(); size > n {
		size = n
	}
	if size == 0 {
		return r.storage[:0]
	}

	write := (r.read + r.length) % r.capacity()
	r.length += size
	return r.storage[write : write+size]
}

// peek returns up to size contiguous bytes at the read position without
// consuming them
func (r *byteRing) peek(size int) []byte {
	if r.length == 0 {
		return r.storage[:0]
	}

	n := r.capacity() - r.read
	if n > r.length {
		n = r.length
	}
	if size > n {
		size = n
	}
	return r.storage[r.read : r.read+size]
}

// dequeue consumes up to size contiguous bytes at the read position
func (r *byteRing) dequeue(size int) []byte {
	b := r.peek(size)
	if len(b) > 0 {
		r.read = (r.read + len(b)) % r.capacity()
		r.length -= len(b)
	}
	return b
}

func (r *byteRing) reset() {
	r.read = 0
	r.length = 0
}

// metadataRing is a ring of PacketMetadata over storage it does not own
type metadataRing struct {
	storage []PacketMetadata
	read    int
	length  int
}

func (r *metadataRing) capacity() int {
	return len(r.storage)
}

func (r *metadataRing) isEmpty() bool {
	return r.length == 0
}

func (r *metadataRing) isFull() bool {
	return r.length == r.capacity()
}

func (r *metadataRing) enqueue(m PacketMetadata) {
	if r.length == 0 {
		r.read = 0
	}
	r.storage[(r.read+r.length)%r.capacity()] = m
	r.length++
}

func (r *metadataRing) front() *PacketMetadata {
	return &r.storage[r.read]
}

func (r *metadataRing) dequeue() PacketMetadata {
	m := r.storage[r.read]
	r.storage[r.read] = PacketMetadata{}
	r.read = (r.read + 1) % r.capacity()
	r.length--
	return m
}

func (r *metadataRing) reset() {
	for i := range r.storage {
		r.storage[i] = PacketMetadata{}
	}
	r.read = 0
	r.length = 0
}
