package modes

// Mode S parity table (1090ES CRC-24, generator 0xfff409). Entry n is the
// checksum contribution of bit n of a 112-bit message; the last 24 entries
// cover the parity field itself and are zero.
var checksumTable = [LongMsgBits]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

// Checksum computes the 24-bit Mode S parity of a 56 or 112 bit message
func Checksum(msg []byte, bits int) uint32 {
	offset := 0
	if bits != LongMsgBits {
		offset = LongMsgBits - ShortMsgBits
	}

	var crc uint32
	for j := 0; j < bits; j++ {
		if msg[j/8]&(1<<(7-uint(j%8))) != 0 {
			crc ^= checksumTable[j+offset]
		}
	}
	return crc
}

// Trailer returns the 24-bit parity field carried in the last three bytes
func Trailer(msg []byte, bits int) uint32 {
	n := bits / 8
	return uint32(msg[n-3])<<16 | uint32(msg[n-2])<<8 | uint32(msg[n-1])
}

func flipBit(msg []byte, bit int) {
	msg[bit/8] ^= 1 << (7 - uint(bit%8))
}

// FixSingleBit searches for a single flipped bit that makes the parity match.
// On success the fix is applied to msg and the bit index is returned, -1 otherwise.
func FixSingleBit(msg []byte, bits int) int {
	n := bits / 8
	var aux [LongMsgBytes]byte
	for j := 0; j < bits; j++ {
		copy(aux[:n], msg[:n])
		flipBit(aux[:n], j)

		if Checksum(aux[:n], bits) == Trailer(aux[:n], bits) {
			copy(msg[:n], aux[:n])
			return j
		}
	}
	return -1
}

// FixTwoBits searches every pair of bits j < i for a flip that makes the parity
// match. On success the fix is applied and j | i<<8 is returned, -1 otherwise.
// This is O(bits²) checksum computations.
func FixTwoBits(msg []byte, bits int) int {
	n := bits / 8
	var aux [LongMsgBytes]byte
	for j := 0; j < bits; j++ {
		for i := j + 1; i < bits; i++ {
			copy(aux[:n], msg[:n])
			flipBit(aux[:n], j)
			flipBit(aux[:n], i)

			if Checksum(aux[:n], bits) == Trailer(aux[:n], bits) {
				copy(msg[:n], aux[:n])
				return j | i<<8
			}
		}
	}
	return -1
}

// SplitTwoBits decodes a FixTwoBits result into its two bit positions
func SplitTwoBits(v int) (int, int) {
	return v & 0xff, v >> 8
}
