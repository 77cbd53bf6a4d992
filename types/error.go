package types

// Error represents an error in the yunet error space. Using a special type
// ensures that errors outside of this space are not accidentally introduced
type Error struct {
	string
}

// Error implements error.Error
func (e *Error) Error() string {
	return e.string
}

// Errors returned by datagram sockets. ErrExhausted never reaches callers of
// the blocking socket API: it is the signal to wait for readiness
var (
	ErrExhausted     = &Error{"buffer space exhausted"}
	ErrUnaddressable = &Error{"unaddressable destination"}
	ErrIllegal       = &Error{"illegal operation"}
	ErrTruncated     = &Error{"datagram exceeds buffer capacity"}
	ErrMalformed     = &Error{"malformed buffer state"}
	ErrInvalidHandle = &Error{"invalid socket handle"}
)

// Errors returned by the stack and the link layer
var (
	ErrBadLinkEndpoint      = &Error{"bad link layer endpoint"}
	ErrDuplicateNicId       = &Error{"duplicate nic id"}
	ErrUnknownNicId         = &Error{"unknown nic id"}
	ErrDuplicateAddress     = &Error{"duplicate address"}
	ErrNoRoute              = &Error{"no route"}
	ErrWouldBlock           = &Error{"operation would block"}
	ErrPortInUse            = &Error{"port is in use"}
	ErrNoPortAvailable      = &Error{"no ports are available"}
	ErrBadLocalAddress      = &Error{"bad local address"}
	ErrInvalidEndpointState = &Error{"endpoint is in invalid state"}
	ErrNotSupported         = &Error{"operation not supported"}
	ErrMessageTooLong       = &Error{"message too long"}
)
