package modes

import (
	"encoding/hex"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Reference frames captured from live traffic
const (
	frameIdent    = "8D4840D6202CC371C32CE0576098" // KLM1023
	frameEvenPos  = "8D40621D58C382D690C8AC2863A7" // 38000 ft, even
	frameOddPos   = "8D40621D58C386435CC412692AD6" // 38000 ft, odd
	frameVelocity = "8D485020994409940838175B284F" // 159 kt, 182.9 deg, -832 ft/min
	frameAllCall  = "5D4840D6F8740F"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// withAddressParity fills the parity field of an address-overlaid frame
func withAddressParity(msg []byte, addr uint32) []byte {
	bits := len(msg) * 8
	n := len(msg)
	msg[n-3], msg[n-2], msg[n-1] = 0, 0, 0
	p := Checksum(msg, bits) ^ addr
	msg[n-3] = byte(p >> 16)
	msg[n-2] = byte(p >> 8)
	msg[n-1] = byte(p)
	return msg
}

// withParity fills the parity field of a DF11/17 frame
func withParity(msg []byte) []byte {
	return withAddressParity(msg, 0)
}
