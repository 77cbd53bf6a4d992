package gonet

// Config sizes the storage NewUDPSocketWithConfig allocates
type Config struct {
	// RxPayloadSize is the number of payload bytes the receive ring holds
	RxPayloadSize int

	// TxPayloadSize is the number of payload bytes the transmit ring holds
	TxPayloadSize int

	// RxPackets is the number of datagrams the receive ring holds
	RxPackets int

	// TxPackets is the number of datagrams the transmit ring holds
	TxPackets int
}

// DefaultConfig returns rings sized for a handful of full-size ethernet
// datagrams in each direction
func DefaultConfig() Config {
	return Config{
		RxPayloadSize: 8192,
		TxPayloadSize: 8192,
		RxPackets:     16,
		TxPackets:     16,
	}
}
