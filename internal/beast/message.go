package beast

import (
	"time"
)

// Beast mode message types
const (
	SyncByte   = 0x1A // Beast mode sync byte, doubled when it occurs in a frame
	ModeAC     = 0x31 // Mode A/C
	ModeS      = 0x32 // Mode S Short (56 bits)
	ModeSLong  = 0x33 // Mode S Long (112 bits)
	ModeStatus = 0x34 // Status

	timestampLen = 6
	headerLen    = timestampLen + 1 // timestamp and signal level
)

// payloadLen returns the unescaped payload size for a message type, or 0 if
// the type is unknown.
func payloadLen(messageType byte) int {
	switch messageType {
	case ModeAC, ModeStatus:
		return 2
	case ModeS:
		return 7
	case ModeSLong:
		return 14
	default:
		return 0
	}
}

// Message is one unescaped Beast frame.
type Message struct {
	MessageType byte
	MLAT        uint64    // 48-bit 12 MHz counter from the receiver
	Received    time.Time // local arrival time
	Signal      byte
	Data        []byte
}

// IsModeS reports whether the payload is a Mode S frame.
func (msg *Message) IsModeS() bool {
	return msg.MessageType == ModeS || msg.MessageType == ModeSLong
}

// IsValid checks the payload length against the message type.
func (msg *Message) IsValid() bool {
	want := payloadLen(msg.MessageType)
	return want != 0 && len(msg.Data) == want
}
