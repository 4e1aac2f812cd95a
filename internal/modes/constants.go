package modes

// Timing and framing constants at 2 MHz (two samples per microsecond)
const (
	SampleRate = 2000000

	PreambleUS   = 8   // preamble length in microseconds
	LongMsgBits  = 112 // DF16/17/19/20/21
	ShortMsgBits = 56
	FullLen      = PreambleUS + LongMsgBits // microseconds spanned by a long frame

	LongMsgBytes  = LongMsgBits / 8
	ShortMsgBytes = ShortMsgBits / 8
)

// Demodulation thresholds
const (
	// bit pairs closer than this copy the previous bit
	tieDelta = 256
	// average inter-bit delta below this is treated as noise
	noiseFloor = 10 * 255
	// aggressive mode tolerates this many low-confidence bits (exclusive)
	aggressiveMaxErrors = 3
)

// CPR constants
const (
	CPRLatMax = 131072 // 2^17
	CPRLonMax = 131072
)

// ICAO cache defaults
const (
	DefaultICAOCacheSize = 1024
	DefaultICAOCacheTTL  = 60 // seconds
)

// Callsign 6-bit alphabet for ES identification messages
const callsignCharset = "?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????"

// Emergency squawk codes
const (
	SquawkHijack    = 7500
	SquawkRadioFail = 7600
	SquawkEmergency = 7700
)

// MessageLenByDF returns the message length in bits implied by the downlink format
func MessageLenByDF(df int) int {
	switch df {
	case 16, 17, 19, 20, 21:
		return LongMsgBits
	default:
		return ShortMsgBits
	}
}
