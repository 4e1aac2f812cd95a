package modes

import "sync/atomic"

// Stats counts demodulation and validation outcomes. Counters are atomic so
// metrics and logging can read them while the consumer updates them.
type Stats struct {
	ValidPreamble atomic.Uint64
	Demodulated   atomic.Uint64 // decoded with zero low-confidence bits
	GoodCRC       atomic.Uint64
	BadCRC        atomic.Uint64
	Fixed         atomic.Uint64
	SingleBitFix  atomic.Uint64
	TwoBitsFix    atomic.Uint64
	OutOfPhase    atomic.Uint64
	NoiseRejected atomic.Uint64
	CacheMiss     atomic.Uint64 // address-parity formats with no recent DF11/17 match
	RemoteFrames  atomic.Uint64 // frames received pre-demodulated
	Accepted      atomic.Uint64 // messages handed to consumers
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	ValidPreamble uint64 `json:"valid_preamble"`
	Demodulated   uint64 `json:"demodulated"`
	GoodCRC       uint64 `json:"good_crc"`
	BadCRC        uint64 `json:"bad_crc"`
	Fixed         uint64 `json:"fixed"`
	SingleBitFix  uint64 `json:"single_bit_fix"`
	TwoBitsFix    uint64 `json:"two_bits_fix"`
	OutOfPhase    uint64 `json:"out_of_phase"`
	NoiseRejected uint64 `json:"noise_rejected"`
	CacheMiss     uint64 `json:"cache_miss"`
	RemoteFrames  uint64 `json:"remote_frames"`
	Accepted      uint64 `json:"accepted"`
}

// Snapshot copies the current counter values
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ValidPreamble: s.ValidPreamble.Load(),
		Demodulated:   s.Demodulated.Load(),
		GoodCRC:       s.GoodCRC.Load(),
		BadCRC:        s.BadCRC.Load(),
		Fixed:         s.Fixed.Load(),
		SingleBitFix:  s.SingleBitFix.Load(),
		TwoBitsFix:    s.TwoBitsFix.Load(),
		OutOfPhase:    s.OutOfPhase.Load(),
		NoiseRejected: s.NoiseRejected.Load(),
		CacheMiss:     s.CacheMiss.Load(),
		RemoteFrames:  s.RemoteFrames.Load(),
		Accepted:      s.Accepted.Load(),
	}
}

// record applies the per-message counter rules. clean is true when the
// slicer saw no low-confidence bits.
func (s *Stats) record(m *Message, clean bool) {
	if clean {
		s.Demodulated.Add(1)
	}

	switch len(m.ErrorBits) {
	case 0:
		if m.CRCOK {
			s.GoodCRC.Add(1)
		} else {
			s.BadCRC.Add(1)
		}
	case 1:
		s.BadCRC.Add(1)
		s.Fixed.Add(1)
		s.SingleBitFix.Add(1)
	default:
		s.BadCRC.Add(1)
		s.Fixed.Add(1)
		s.TwoBitsFix.Add(1)
	}
}
