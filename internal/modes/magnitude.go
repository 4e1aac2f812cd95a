package modes

import "math"

// lutSide is the number of distinct |I-127| (or |Q-127|) values
const lutSide = 129

// magnitudeLUT maps (|I-127|, |Q-127|) to round(sqrt(i²+q²)*360)
var magnitudeLUT [lutSide * lutSide]uint16

func init() {
	for i := 0; i < lutSide; i++ {
		for q := 0; q < lutSide; q++ {
			magnitudeLUT[i*lutSide+q] = uint16(math.Round(math.Sqrt(float64(i*i+q*q)) * 360))
		}
	}
}

func absDiff127(v byte) int {
	d := int(v) - 127
	if d < 0 {
		return -d
	}
	return d
}

// Magnitude returns the magnitude of one DC-biased I/Q pair
func Magnitude(i, q byte) uint16 {
	return magnitudeLUT[absDiff127(i)*lutSide+absDiff127(q)]
}

// ComputeMagnitudes converts interleaved I/Q bytes into magnitude samples.
// out is reused when it has enough capacity; a trailing odd byte is ignored.
func ComputeMagnitudes(iq []byte, out []uint16) []uint16 {
	n := len(iq) / 2
	if cap(out) < n {
		out = make([]uint16, n)
	}
	out = out[:n]
	for k := 0; k < n; k++ {
		out[k] = magnitudeLUT[absDiff127(iq[2*k])*lutSide+absDiff127(iq[2*k+1])]
	}
	return out
}
