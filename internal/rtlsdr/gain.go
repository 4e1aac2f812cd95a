package rtlsdr

import "modes1090/internal/modes"

const (
	// AutoGain selects the tuner's automatic gain.
	AutoGain = -100

	// DefaultFrequency is the Mode S downlink frequency in Hz.
	DefaultFrequency = 1090000000

	// DefaultGain is the manual tuner gain in dB.
	DefaultGain = 49.6

	// SampleRate is fixed by the demodulator.
	SampleRate = modes.SampleRate
)

// Config describes how to open and tune a dongle.
type Config struct {
	Index     int
	Frequency uint32
	GainDB    float64 // AutoGain for automatic
	AGC       bool
}

// gainTenths converts a gain in dB to the tenths of dB librtlsdr expects.
func gainTenths(db float64) int {
	if db < 0 {
		return int(db*10 - 0.5)
	}
	return int(db*10 + 0.5)
}

// nearestGain picks the supported gain closest to want, all in tenths of dB.
// It returns want unchanged when the tuner reports no gain table.
func nearestGain(supported []int, want int) int {
	if len(supported) == 0 {
		return want
	}

	best := supported[0]
	for _, g := range supported[1:] {
		if abs(g-want) < abs(best-want) {
			best = g
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
