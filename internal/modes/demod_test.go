package modes

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pulseHigh = 40000
)

// synthesize renders frames as ideal 2 MHz magnitude pulses separated by gap
// samples of the background level
func synthesize(frames [][]byte, gap int, background uint16) []uint16 {
	var m []uint16
	pad := func(n int) {
		for i := 0; i < n; i++ {
			m = append(m, background)
		}
	}

	pad(gap)
	for _, frame := range frames {
		preamble := make([]uint16, PreambleUS*2)
		for i := range preamble {
			preamble[i] = background
		}
		for _, p := range []int{0, 2, 7, 9} {
			preamble[p] = pulseHigh
		}
		m = append(m, preamble...)

		for i := 0; i < len(frame)*8; i++ {
			if frame[i/8]&(1<<(7-uint(i%8))) != 0 {
				m = append(m, pulseHigh, background)
			} else {
				m = append(m, background, pulseHigh)
			}
		}
		pad(gap)
	}
	pad(FullLen * 2)
	return m
}

func newTestDemodulator(config DecoderConfig) *Demodulator {
	return NewDemodulator(newTestDecoder(config), testLogger())
}

// TestDecodeBuffer_SingleFrame demodulates one clean frame
func TestDecodeBuffer_SingleFrame(t *testing.T) {
	d := newTestDemodulator(DefaultDecoderConfig())
	m := synthesize([][]byte{mustHex(t, frameIdent)}, 100, 0)

	msgs := d.DecodeBuffer(m, time.Now())
	require.Len(t, msgs, 1)
	assert.Equal(t, frameIdent, msgs[0].Hex())
	assert.True(t, msgs[0].CRCOK)
	assert.False(t, msgs[0].PhaseCorrected)
	assert.Zero(t, msgs[0].DemodErrors)

	snap := d.Decoder().Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.ValidPreamble)
	assert.Equal(t, uint64(1), snap.Demodulated)
	assert.Equal(t, uint64(1), snap.GoodCRC)
	assert.Equal(t, uint64(1), snap.Accepted)
}

// TestDecodeBuffer_MultipleFrames demodulates short and long frames in sequence
func TestDecodeBuffer_MultipleFrames(t *testing.T) {
	d := newTestDemodulator(DefaultDecoderConfig())
	frames := [][]byte{
		mustHex(t, frameAllCall),
		mustHex(t, frameEvenPos),
		mustHex(t, frameOddPos),
		mustHex(t, frameVelocity),
	}
	m := synthesize(frames, 37, 0)

	msgs := d.DecodeBuffer(m, time.Now())
	require.Len(t, msgs, len(frames))
	for i, msg := range msgs {
		assert.Equal(t, frames[i], msg.Raw)
	}
}

// TestDecodeBuffer_Noise finds nothing in random magnitudes
func TestDecodeBuffer_Noise(t *testing.T) {
	d := newTestDemodulator(DefaultDecoderConfig())
	rng := rand.New(rand.NewSource(1))

	m := make([]uint16, 200000)
	for i := range m {
		m[i] = uint16(rng.Intn(6000))
	}

	assert.Empty(t, d.DecodeBuffer(m, time.Now()))
}

// TestDecodeBuffer_TooShort ignores buffers shorter than one frame
func TestDecodeBuffer_TooShort(t *testing.T) {
	d := newTestDemodulator(DefaultDecoderConfig())
	assert.Empty(t, d.DecodeBuffer(make([]uint16, FullLen*2), time.Now()))
	assert.Empty(t, d.DecodeBuffer(nil, time.Now()))
}

// TestDecodeBuffer_Aggressive accepts a low-confidence first bit only in aggressive mode
func TestDecodeBuffer_Aggressive(t *testing.T) {
	frame := mustHex(t, frameAllCall)
	build := func() []uint16 {
		m := synthesize([][]byte{frame}, 50, 0)
		// first data bit of DF11 is 0; make both samples equal
		start := 50 + PreambleUS*2
		m[start], m[start+1] = pulseHigh, pulseHigh
		return m
	}

	normal := newTestDemodulator(DefaultDecoderConfig())
	assert.Empty(t, normal.DecodeBuffer(build(), time.Now()))

	cfg := DefaultDecoderConfig()
	cfg.Aggressive = true
	aggressive := newTestDemodulator(cfg)
	msgs := aggressive.DecodeBuffer(build(), time.Now())
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].DemodErrors)
	assert.Equal(t, frame, msgs[0].Raw)

	snap := aggressive.Decoder().Stats().Snapshot()
	assert.Zero(t, snap.Demodulated)
	assert.Equal(t, uint64(1), snap.GoodCRC)
}

// TestDecodeBuffer_RetryLeavesInputIntact checks the phase retry works on a copy
func TestDecodeBuffer_RetryLeavesInputIntact(t *testing.T) {
	d := newTestDemodulator(DefaultDecoderConfig())

	msg := mustHex(t, frameIdent)
	flipBit(msg, 20)
	flipBit(msg, 60)
	flipBit(msg, 90)
	m := synthesize([][]byte{msg}, 64, 1000)
	orig := append([]uint16(nil), m...)

	msgs := d.DecodeBuffer(m, time.Now())
	assert.Empty(t, msgs)
	assert.Equal(t, orig, m)

	snap := d.Decoder().Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.OutOfPhase)
	assert.Equal(t, uint64(1), snap.BadCRC, "retry outcome is counted")
}

// TestDecodeBuffer_NoCRCCheck returns candidates that failed validation
func TestDecodeBuffer_NoCRCCheck(t *testing.T) {
	cfg := DecoderConfig{CheckCRC: false}
	d := newTestDemodulator(cfg)

	msg := mustHex(t, frameIdent)
	flipBit(msg, 20)
	flipBit(msg, 60)
	flipBit(msg, 90)

	msgs := d.DecodeBuffer(synthesize([][]byte{msg}, 64, 0), time.Now())
	require.NotEmpty(t, msgs)
	for _, m := range msgs {
		assert.False(t, m.CRCOK)
		assert.Equal(t, 17, m.DF)
	}
}

// TestIsPreamble tests shape and quiet-zone checks
func TestIsPreamble(t *testing.T) {
	base := func() []uint16 {
		m := make([]uint16, 16)
		for _, p := range []int{0, 2, 7, 9} {
			m[p] = pulseHigh
		}
		return m
	}

	assert.True(t, isPreamble(base()))

	m := base()
	m[2] = 0
	assert.False(t, isPreamble(m), "missing pulse")

	m = base()
	m[4] = pulseHigh * 3 / 4
	assert.False(t, isPreamble(m), "energy between pulse pairs")

	m = base()
	m[12] = pulseHigh * 3 / 4
	assert.False(t, isPreamble(m), "energy before data")
}

// TestDetectOutOfPhase tests leakage detection
func TestDetectOutOfPhase(t *testing.T) {
	base := func() []uint16 {
		m := make([]uint16, 16)
		for _, p := range []int{0, 2, 7, 9} {
			m[p] = 3000
		}
		return m
	}

	assert.Equal(t, 0, detectOutOfPhase(0, base()))

	m := base()
	m[3] = 1500
	assert.Equal(t, 1, detectOutOfPhase(0, m))

	m = base()
	m[6] = 1500
	assert.Equal(t, -1, detectOutOfPhase(0, m))

	assert.Equal(t, -1, detectOutOfPhase(1500, base()))
}

// TestApplyPhaseCorrection tests the sample nudges and clamping
func TestApplyPhaseCorrection(t *testing.T) {
	m := make([]uint16, windowLen)
	data := m[PreambleUS*2:]
	data[0], data[1], data[2] = 1000, 500, 60000 // bit 1 boosts the next sample
	data[3] = 0
	data[4] = 1000 // follows 60000 > 0 after clamping, boosted again

	applyPhaseCorrection(m)
	assert.Equal(t, uint16(65535), data[2])
	assert.Equal(t, uint16(1250), data[4])

	for i := range m[:PreambleUS*2] {
		assert.Zero(t, m[i], "preamble must not change")
	}

	m = make([]uint16, windowLen)
	data = m[PreambleUS*2:]
	data[0], data[1], data[2] = 500, 1000, 1000 // bit 0 attenuates
	applyPhaseCorrection(m)
	assert.Equal(t, uint16(800), data[2])
}
