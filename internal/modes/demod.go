package modes

import (
	"time"

	"github.com/sirupsen/logrus"
)

// windowLen is the number of samples one long frame spans, plus one sample
// touched by phase correction
const windowLen = FullLen*2 + 1

// Demodulator finds Mode S frames in a magnitude buffer at 2 MHz. It keeps
// scratch space between calls and is not safe for concurrent use.
type Demodulator struct {
	decoder *Decoder
	logger  *logrus.Logger
	scratch [windowLen]uint16
	bits    [LongMsgBits]byte
	msg     [LongMsgBytes]byte
}

// NewDemodulator creates a demodulator that validates through decoder
func NewDemodulator(decoder *Decoder, logger *logrus.Logger) *Demodulator {
	return &Demodulator{
		decoder: decoder,
		logger:  logger,
	}
}

// Decoder returns the decoder used to validate frames
func (d *Demodulator) Decoder() *Decoder {
	return d.decoder
}

// isPreamble checks the pulse shape and quiet zones of a preamble starting at m[0]
func isPreamble(m []uint16) bool {
	// pulses at 0, 2, 7 and 9 (0-0.5, 1-1.5, 3.5-4 and 4.5-5 us)
	if !(m[0] > m[1] &&
		m[1] < m[2] &&
		m[2] > m[3] &&
		m[3] < m[0] &&
		m[4] < m[0] &&
		m[5] < m[0] &&
		m[6] < m[0] &&
		m[7] > m[8] &&
		m[8] < m[9] &&
		m[9] > m[6]) {
		return false
	}

	high := (int(m[0]) + int(m[2]) + int(m[7]) + int(m[9])) / 6
	if int(m[4]) >= high || int(m[5]) >= high {
		return false
	}

	for _, s := range m[11:15] {
		if int(s) >= high {
			return false
		}
	}
	return true
}

// detectOutOfPhase returns non-zero when the preamble energy leaks into
// neighbouring samples, meaning bits likely straddle sample boundaries.
// m[0] is the preamble start and m must be preceded by one sample (m0 > 0).
func detectOutOfPhase(prev uint16, m []uint16) int {
	if m[3] > m[2]/3 {
		return 1
	}
	if m[10] > m[9]/3 {
		return 1
	}
	if m[6] > m[7]/3 {
		return -1
	}
	if prev > m[1]/3 {
		return -1
	}
	return 0
}

// applyPhaseCorrection nudges each sample following a bit pair towards the
// value implied by that pair. The preamble is left untouched.
func applyPhaseCorrection(m []uint16) {
	data := m[PreambleUS*2:]
	for j := 0; j < (LongMsgBits-1)*2; j += 2 {
		var v int
		if data[j] > data[j+1] {
			v = int(data[j+2]) * 5 / 4
		} else {
			v = int(data[j+2]) * 4 / 5
		}
		if v > 65535 {
			v = 65535
		}
		data[j+2] = uint16(v)
	}
}

// sliceBits demodulates 112 bits from the data region following a preamble
// and returns the number of low-confidence bits inside the first 56.
func (d *Demodulator) sliceBits(m []uint16) int {
	errors := 0
	data := m[PreambleUS*2:]
	for i := 0; i < LongMsgBits*2; i += 2 {
		low := int(data[i])
		high := int(data[i+1])
		delta := low - high
		if delta < 0 {
			delta = -delta
		}

		switch {
		case i > 0 && delta < tieDelta:
			d.bits[i/2] = d.bits[i/2-1]
		case low == high:
			// equal neighbours are a strong sign of noise
			d.bits[i/2] = 2
			if i < ShortMsgBits*2 {
				errors++
			}
		case low > high:
			d.bits[i/2] = 1
		default:
			d.bits[i/2] = 0
		}
	}

	for i := range d.msg {
		var b byte
		for k := 0; k < 8; k++ {
			b <<= 1
			if d.bits[i*8+k] == 1 {
				b |= 1
			}
		}
		d.msg[i] = b
	}
	return errors
}

// signalDelta returns the average inter-sample difference over the message
func signalDelta(m []uint16, bits int) int {
	data := m[PreambleUS*2:]
	delta := 0
	for i := 0; i < bits*2; i += 2 {
		diff := int(data[i]) - int(data[i+1])
		if diff < 0 {
			diff = -diff
		}
		delta += diff
	}
	return delta / (bits / 8 * 4)
}

// DecodeBuffer scans a magnitude buffer and returns every message that passed
// validation, or every accepted candidate when CRC checking is disabled.
func (d *Demodulator) DecodeBuffer(m []uint16, now time.Time) []*Message {
	var out []*Message
	stats := d.decoder.stats
	cfg := d.decoder.config
	useCorrection := false

	for j := 0; j < len(m)-FullLen*2; j++ {
		window := m[j : j+windowLen]
		goodMessage := false

		if !useCorrection {
			if !isPreamble(window) {
				continue
			}
			stats.ValidPreamble.Add(1)
		}

		samples := window
		if useCorrection {
			copy(d.scratch[:], window)
			samples = d.scratch[:]
			if j > 0 && detectOutOfPhase(m[j-1], samples) != 0 {
				applyPhaseCorrection(samples)
				stats.OutOfPhase.Add(1)
			}
		}

		errors := d.sliceBits(samples)
		bits := MessageLenByDF(int(d.msg[0] >> 3))

		// noise check always runs on the uncorrected samples
		if signalDelta(window, bits) < noiseFloor {
			stats.NoiseRejected.Add(1)
			useCorrection = false
			continue
		}

		if errors == 0 || (cfg.Aggressive && errors < aggressiveMaxErrors) {
			msg := d.decoder.Decode(d.msg[:], now)
			msg.DemodErrors = errors

			if msg.CRCOK || useCorrection {
				stats.record(msg, errors == 0)
			}

			if msg.CRCOK {
				j += (PreambleUS + bits) * 2
				goodMessage = true
				msg.PhaseCorrected = useCorrection
			}

			if msg.CRCOK || !cfg.CheckCRC {
				stats.Accepted.Add(1)
				out = append(out, msg)
			}
		} else if useCorrection {
			d.logger.WithFields(logrus.Fields{
				"offset": j,
				"errors": errors,
			}).Trace("Demodulated with errors")
		}

		// retry the same offset once with phase correction
		if !goodMessage && !useCorrection {
			j--
			useCorrection = true
		} else {
			useCorrection = false
		}
	}

	return out
}
