package modes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMagnitude tests table lookups around the DC offset
func TestMagnitude(t *testing.T) {
	tests := []struct {
		name string
		i, q byte
		want uint16
	}{
		{name: "DC", i: 127, q: 127, want: 0},
		{name: "I only", i: 137, q: 127, want: 3600},
		{name: "Q negative", i: 127, q: 117, want: 3600},
		{name: "3-4-5", i: 130, q: 123, want: 1800},
		{name: "Full scale", i: 255, q: 255, want: uint16(math.Round(math.Sqrt(2*128*128) * 360))},
		{name: "Low rail", i: 0, q: 0, want: uint16(math.Round(math.Sqrt(2*127*127) * 360))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Magnitude(tt.i, tt.q))
		})
	}
}

// TestComputeMagnitudes tests buffer conversion and reuse
func TestComputeMagnitudes(t *testing.T) {
	iq := []byte{127, 127, 137, 127, 130, 123, 99}

	out := ComputeMagnitudes(iq, nil)
	assert.Equal(t, []uint16{0, 3600, 1800}, out)

	buf := make([]uint16, 0, 16)
	out = ComputeMagnitudes(iq[:4], buf)
	assert.Len(t, out, 2)
	assert.Equal(t, &buf[:1][0], &out[0], "buffer should be reused")
}
