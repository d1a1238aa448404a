package core

import "time"

// Operational limits — named constants for values that would otherwise be
// scattered across the relay path.
const (
	// SendTimeout bounds how long a write to one subscriber may block.
	SendTimeout = 50 * time.Millisecond

	// DefaultSendBuffer is the per-connection outbound channel capacity.
	DefaultSendBuffer = 64

	// DefaultHistoryCapacity is the number of messages retained per room
	// for replay to newly joined members.
	DefaultHistoryCapacity = 50

	// MaxPayloadBytes caps one inbound frame. Payloads are opaque
	// ciphertext and may embed inline file content.
	MaxPayloadBytes = 12 << 20
)
