package modes

// Pulse bits of a Mode A code laid out as hex digits A4A2A1 B4B2B1 C4C2C1 D4D2D1
// in the 0xABCD style used by Mode A/C decoders.
const (
	pulseC1 = 0x0010
	pulseC2 = 0x0020
	pulseC4 = 0x0040
	pulseD1 = 0x0001
	pulseD2 = 0x0002
	pulseD4 = 0x0004
	pulseA1 = 0x1000
	pulseA2 = 0x2000
	pulseA4 = 0x4000
	pulseB1 = 0x0100
	pulseB2 = 0x0200
	pulseB4 = 0x0400
)

// id13Pulses maps each bit of a 13-bit ID/AC field (bit 12 first) to its pulse.
// Bit 6 is the X/M bit and carries no pulse.
var id13Pulses = [13]uint32{
	12: pulseC1, 11: pulseA1, 10: pulseC2, 9: pulseA2, 8: pulseC4, 7: pulseA4,
	5: pulseB1, 4: pulseD1, 3: pulseB2, 2: pulseD2, 1: pulseB4, 0: pulseD4,
}

// id13ToGillham rearranges a 13-bit field into pulse order
func id13ToGillham(field uint32) uint32 {
	var code uint32
	for bit, pulse := range id13Pulses {
		if field&(1<<uint(bit)) != 0 {
			code |= pulse
		}
	}
	return code
}

// gillhamToAltitude converts a Gillham-coded Mode C value to hundreds of feet.
// ok is false for codes that cannot occur.
func gillhamToAltitude(code uint32) (int, bool) {
	if code&0xffff8889 != 0 || code&0x00f0 == 0 {
		return 0, false
	}

	oneHundreds := 0
	if code&pulseC1 != 0 {
		oneHundreds ^= 7
	}
	if code&pulseC2 != 0 {
		oneHundreds ^= 3
	}
	if code&pulseC4 != 0 {
		oneHundreds ^= 1
	}
	// 5 and 7 are illegal; 7 is folded onto 5
	if oneHundreds&5 == 5 {
		oneHundreds ^= 2
	}
	if oneHundreds > 5 {
		return 0, false
	}

	fiveHundreds := 0
	for _, p := range []struct {
		pulse uint32
		mask  int
	}{
		{pulseD2, 0xff}, {pulseD4, 0x7f},
		{pulseA1, 0x3f}, {pulseA2, 0x1f}, {pulseA4, 0x0f},
		{pulseB1, 0x07}, {pulseB2, 0x03}, {pulseB4, 0x01},
	} {
		if code&p.pulse != 0 {
			fiveHundreds ^= p.mask
		}
	}

	// odd five-hundreds reverse the hundreds count
	if fiveHundreds&1 != 0 {
		oneHundreds = 6 - oneHundreds
	}

	return fiveHundreds*5 + oneHundreds - 13, true
}

// decodeAC13 decodes the 13-bit altitude field of DF0/4/16/20
func decodeAC13(field uint32) Altitude {
	mBit := field&0x0040 != 0
	qBit := field&0x0010 != 0

	if mBit {
		// metric altitude is not decoded
		return Altitude{Unit: UnitMeters}
	}

	if qBit {
		n := (field&0x1f80)>>2 | (field&0x0020)>>1 | field&0x000f
		return Altitude{Value: int(n)*25 - 1000, Unit: UnitFeet, Valid: true}
	}

	hundreds, ok := gillhamToAltitude(id13ToGillham(field))
	if !ok {
		return Altitude{Unit: UnitFeet}
	}
	return Altitude{Value: hundreds * 100, Unit: UnitFeet, Valid: true}
}

// decodeAC12 decodes the 12-bit altitude field of airborne position squitters
func decodeAC12(field uint32) Altitude {
	if field&0x0010 != 0 {
		n := (field&0x0fe0)>>1 | field&0x000f
		return Altitude{Value: int(n)*25 - 1000, Unit: UnitFeet, Valid: true}
	}

	// reinsert a zero M bit to get the 13-bit layout
	n13 := (field&0x0fc0)<<1 | field&0x003f
	hundreds, ok := gillhamToAltitude(id13ToGillham(n13))
	if !ok {
		return Altitude{Unit: UnitFeet}
	}
	return Altitude{Value: hundreds * 100, Unit: UnitFeet, Valid: true}
}
