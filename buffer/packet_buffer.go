package buffer

import (
	"github.com/YaoZengzeng/yunet/types"
)

// PacketMetadata describes one datagram stored in a PacketBuffer: how many
// payload bytes it occupies and which remote endpoint it came from or goes to.
//
// Callers only allocate slices of it; the zero value is an empty record
type PacketMetadata struct {
	size     int
	endpoint types.FullAddress

	// padding records cover the unusable tail of the payload ring when a
	// datagram had to wrap around to the beginning
	padding bool
}

// PacketBuffer is a ring of datagrams. Payloads are kept contiguous in the
// payload storage and described by records in the metadata storage. Both
// storages are supplied by the caller and used in place, nothing is copied
// out of them until a datagram is dequeued
type PacketBuffer struct {
	metadata metadataRing
	payload  byteRing
}

// NewPacketBuffer wraps the given storage. The PacketBuffer borrows both
// slices until Release is called
func NewPacketBuffer(metadata []PacketMetadata, payload []byte) *PacketBuffer {
	return &PacketBuffer{
		metadata: metadataRing{storage: metadata},
		payload:  byteRing{storage: payload},
	}
}

// IsEmpty returns true if there is no datagram queued
func (b *PacketBuffer) IsEmpty() bool {
	return b.metadata.isEmpty()
}

// IsFull returns true if no more metadata records are available. It may still
// be impossible to enqueue a datagram when it returns false, if the payload
// storage has too little room left
func (b *PacketBuffer) IsFull() bool {
	return b.metadata.isFull()
}

// PacketCapacity returns the number of datagrams the buffer can describe
func (b *PacketBuffer) PacketCapacity() int {
	return b.metadata.capacity()
}

// PayloadCapacity returns the number of payload bytes the buffer can hold
func (b *PacketBuffer) PayloadCapacity() int {
	return b.payload.capacity()
}

// Enqueue reserves room for a datagram of the given size and returns the
// payload slice to fill in.
//
// It returns types.ErrTruncated if the datagram can never fit, and
// types.ErrExhausted if it does not fit right now
func (b *PacketBuffer) Enqueue(size int, endpoint types.FullAddress) ([]byte, error) {
	if b.payload.capacity() < size {
		return nil, types.ErrTruncated
	}

	if b.metadata.isFull() {
		return nil, types.ErrExhausted
	}

	if b.metadata.isEmpty() {
		b.payload.reset()
	}

	window := b.payload.window()
	contiguous := b.payload.contiguousWindow()
	if contiguous < size {
		if window-contiguous < size {
			return nil, types.ErrExhausted
		}

		// Pad out the tail so the datagram starts at the beginning
		b.metadata.enqueue(PacketMetadata{size: contiguous, padding: true})
		b.payload.enqueue(contiguous)

		if b.metadata.isFull() {
			return nil, types.ErrExhausted
		}
	}

	b.metadata.enqueue(PacketMetadata{size: size, endpoint: endpoint})
	return b.payload.enqueue(size), nil
}

// EnqueueSlice copies data into the buffer as one datagram
func (b *PacketBuffer) EnqueueSlice(data []byte, endpoint types.FullAddress) error {
	buf, err := b.Enqueue(len(data), endpoint)
	if err != nil {
		return err
	}

	copy(buf, data)
	return nil
}

func (b *PacketBuffer) dequeuePadding() {
	if b.metadata.isEmpty() {
		return
	}

	if m := b.metadata.front(); m.padding {
		b.payload.dequeue(m.size)
		b.metadata.dequeue()
	}
}

// Dequeue removes the oldest datagram and returns its endpoint and payload.
// The payload slice aliases the buffer storage and is only valid until the
// next Enqueue.
//
// It returns types.ErrExhausted if the buffer is empty, and
// types.ErrMalformed if a record does not match the payload ring
func (b *PacketBuffer) Dequeue() (types.FullAddress, []byte, error) {
	b.dequeuePadding()

	if b.metadata.isEmpty() {
		return types.FullAddress{}, nil, types.ErrExhausted
	}

	m := b.metadata.dequeue()
	payload := b.payload.dequeue(m.size)
	if len(payload) != m.size {
		return types.FullAddress{}, nil, types.ErrMalformed
	}

	return m.endpoint, payload, nil
}

// DequeueWith hands the oldest datagram to f and only removes it if f
// succeeds. The payload slice must not be retained after f returns
func (b *PacketBuffer) DequeueWith(f func(endpoint types.FullAddress, payload []byte) error) error {
	b.dequeuePadding()

	if b.metadata.isEmpty() {
		return types.ErrExhausted
	}

	m := b.metadata.front()
	payload := b.payload.peek(m.size)
	if len(payload) != m.size {
		return types.ErrMalformed
	}

	if err := f(m.endpoint, payload); err != nil {
		return err
	}

	b.payload.dequeue(m.size)
	b.metadata.dequeue()
	return nil
}

// Reset drops every queued datagram
func (b *PacketBuffer) Reset() {
	b.metadata.reset()
	b.payload.reset()
}

// Release drops the references to the caller's storage. The buffer behaves as
// a zero-capacity buffer afterwards and never touches the storage again
func (b *PacketBuffer) Release() {
	b.metadata = metadataRing{}
	b.payload = byteRing{}
}
