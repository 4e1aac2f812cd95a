package view

import (
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modes1090/internal/modes"
)

func decodeHex(t *testing.T, s string) *modes.Message {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d := modes.NewDecoder(modes.DefaultDecoderConfig(), nil, logger)
	return d.Decode(raw, testNow)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		contains []string
	}{
		{
			name:  "identification",
			frame: "8D4840D6202CC371C32CE0576098",
			contains: []string{
				"*8D4840D6202CC371C32CE0576098;",
				"(ok)",
				"DF 17: ADS-B message.",
				"ICAO Address   : 4840D6",
				"Extended Squitter  Type: 4",
				"Aircraft Identification and Category",
				"Aircraft Type A",
				"Identification : KLM1023",
			},
		},
		{
			name:  "airborne position",
			frame: "8D40621D58C382D690C8AC2863A7",
			contains: []string{
				"Airborne Position (Baro Altitude)",
				"F flag   : even",
				"Altitude : 38000 feet",
				"(not decoded)",
			},
		},
		{
			name:  "velocity",
			frame: "8D485020994409940838175B284F",
			contains: []string{
				"Airborne Velocity",
				"Speed             : 159.20 kt",
				"Track             : 182.88",
				"Vertical rate     : -832 ft/min",
			},
		},
		{
			name:  "airspeed and heading",
			frame: "8DA05F219B06B6AF189400CBC33F",
			contains: []string{
				"Heading           : 241.875",
				"Airspeed          : 375 kt (TAS)",
				"Vertical rate     : -2304 ft/min",
			},
		},
		{
			name:  "all call",
			frame: "5D4840D6F8740F",
			contains: []string{
				"DF 11: All Call Reply.",
				"ICAO Address   : 4840D6",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Describe(decodeHex(t, tt.frame))
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			assert.True(t, strings.HasSuffix(out, "\n\n"))
		})
	}
}

func TestDescribe_CorrectedBit(t *testing.T) {
	raw, err := hex.DecodeString("8D4840D6202CC371C32CE0576098")
	require.NoError(t, err)
	raw[6] ^= 0x10

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d := modes.NewDecoder(modes.DefaultDecoderConfig(), nil, logger)
	m := d.Decode(raw, testNow)
	require.True(t, m.CRCOK)

	out := Describe(m)
	assert.Contains(t, out, "Single bit error fixed, bit 51")
	assert.Contains(t, out, "KLM1023")
}

func TestExtendedSquitterName(t *testing.T) {
	tests := []struct {
		typeCode, subtype int
		want              string
	}{
		{1, 0, "Aircraft Identification and Category"},
		{6, 0, "Surface Position"},
		{11, 0, "Airborne Position (Baro Altitude)"},
		{19, 1, "Airborne Velocity"},
		{19, 5, "Unknown"},
		{21, 0, "Airborne Position (GNSS Height)"},
		{31, 0, "Aircraft Operational Status Message"},
		{0, 0, "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtendedSquitterName(tt.typeCode, tt.subtype), "type %d sub %d", tt.typeCode, tt.subtype)
	}
}
