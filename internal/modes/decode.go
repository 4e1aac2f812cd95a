package modes

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrFrameLength is returned when a frame is shorter than its format requires
var ErrFrameLength = errors.New("frame length does not match downlink format")

// DecoderConfig controls validation policy
type DecoderConfig struct {
	FixErrors  bool // try single-bit (and in aggressive mode two-bit) correction on DF11/17
	CheckCRC   bool // drop messages whose parity does not validate
	Aggressive bool
}

// DefaultDecoderConfig returns the normal validation policy
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{FixErrors: true, CheckCRC: true}
}

// Decoder validates raw frames and decodes their fields. It owns no goroutines
// and is not safe for concurrent use.
type Decoder struct {
	config DecoderConfig
	cache  *ICAOCache
	stats  *Stats
	logger *logrus.Logger
}

// NewDecoder creates a decoder backed by the given address cache
func NewDecoder(config DecoderConfig, cache *ICAOCache, logger *logrus.Logger) *Decoder {
	if cache == nil {
		cache = NewICAOCache(DefaultICAOCacheSize, DefaultICAOCacheTTL*time.Second)
	}
	return &Decoder{
		config: config,
		cache:  cache,
		stats:  &Stats{},
		logger: logger,
	}
}

// Config returns the validation policy
func (d *Decoder) Config() DecoderConfig {
	return d.config
}

// Cache returns the ICAO address cache
func (d *Decoder) Cache() *ICAOCache {
	return d.cache
}

// Stats returns the counters shared by the decoder and its demodulator
func (d *Decoder) Stats() *Stats {
	return d.stats
}

// Decode validates a 7 or 14 byte frame and decodes its fields. raw must hold
// at least as many bytes as its downlink format implies; it is copied.
func (d *Decoder) Decode(raw []byte, now time.Time) *Message {
	df := int(raw[0] >> 3)
	bits := MessageLenByDF(df)
	msg := make([]byte, bits/8)
	copy(msg, raw)

	m := &Message{
		DF:        df,
		Bits:      bits,
		Raw:       msg,
		Timestamp: now,
	}

	m.CRC = Trailer(msg, bits)
	computed := Checksum(msg, bits)
	m.CRCOK = m.CRC == computed

	if !m.CRCOK && d.config.FixErrors && (df == 11 || df == 17) {
		if bit := FixSingleBit(msg, bits); bit != -1 {
			m.ErrorBits = []int{bit}
			m.CRC = Trailer(msg, bits)
			m.CRCOK = true
		} else if d.config.Aggressive && df == 17 {
			if pair := FixTwoBits(msg, bits); pair != -1 {
				j, i := SplitTwoBits(pair)
				m.ErrorBits = []int{j, i}
				m.CRC = Trailer(msg, bits)
				m.CRCOK = true
			}
		}
	}

	m.Address = uint32(msg[1])<<16 | uint32(msg[2])<<8 | uint32(msg[3])
	m.Body = DecodeFields(msg)

	if df != 11 && df != 17 {
		m.CRCOK = false
		if hasAddressParity(df) {
			if addr, ok := d.recoverAddress(m.CRC ^ computed); ok {
				m.Address = addr
				m.CRCOK = true
			} else {
				d.stats.CacheMiss.Add(1)
			}
		}
	} else if m.CRCOK && m.ErrorBits == nil {
		d.cache.Insert(m.Address)
	}

	if m.ErrorBits != nil {
		d.logger.WithFields(logrus.Fields{
			"df":   df,
			"icao": m.ICAO(),
			"bits": m.ErrorBits,
		}).Debug("Corrected bit errors")
	}

	return m
}

// DecodeFrame validates a frame that arrived already demodulated (hex or
// Beast input) and updates the counters the way the demodulator does.
func (d *Decoder) DecodeFrame(raw []byte, now time.Time) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrFrameLength)
	}
	if want := MessageLenByDF(int(raw[0]>>3)) / 8; len(raw) < want {
		return nil, fmt.Errorf("%w: DF%d needs %d bytes, got %d", ErrFrameLength, raw[0]>>3, want, len(raw))
	}

	m := d.Decode(raw, now)
	d.stats.RemoteFrames.Add(1)
	d.stats.record(m, false)
	return m, nil
}

// hasAddressParity reports whether df overlays the address on its parity
func hasAddressParity(df int) bool {
	switch df {
	case 0, 4, 5, 16, 20, 21, 24:
		return true
	}
	return false
}

// recoverAddress checks the address overlaid on the parity field (trailer XOR
// computed parity); it is accepted only if recently seen on DF11/17.
func (d *Decoder) recoverAddress(addr uint32) (uint32, bool) {
	if d.cache.Lookup(addr) {
		return addr, true
	}
	return 0, false
}

// DecodeFields decodes the format-specific fields of a frame. It never
// rejects: unknown formats return nil.
func DecodeFields(msg []byte) Body {
	df := int(msg[0] >> 3)

	switch df {
	case 0, 16:
		return &AltitudeReply{Altitude: decodeAC13(ac13Field(msg))}
	case 4, 20:
		status := decodeStatus(msg)
		return &AltitudeReply{Status: &status, Altitude: decodeAC13(ac13Field(msg))}
	case 5, 21:
		return &IdentityReply{Status: decodeStatus(msg), Squawk: decodeIdentity(msg)}
	case 11:
		return &AllCallReply{Capability: int(msg[0] & 7)}
	case 17:
		return decodeExtendedSquitter(msg)
	}
	return nil
}

func ac13Field(msg []byte) uint32 {
	return uint32(msg[2]&0x1f)<<8 | uint32(msg[3])
}

func decodeStatus(msg []byte) SurveillanceStatus {
	return SurveillanceStatus{
		FlightStatus:    int(msg[0] & 7),
		DownlinkRequest: int(msg[1]>>3) & 31,
		UtilityMessage:  int((msg[1]&7)<<3 | msg[2]>>5),
	}
}

// decodeIdentity extracts the four octal digits of the 13-bit identity field
func decodeIdentity(msg []byte) int {
	a := int((msg[3]&0x80)>>5 | msg[2]&0x02 | (msg[2]&0x08)>>3)
	b := int((msg[3]&0x02)<<1 | (msg[3]&0x08)>>2 | (msg[3]&0x20)>>5)
	c := int((msg[2]&0x01)<<2 | (msg[2]&0x04)>>1 | (msg[2]&0x10)>>4)
	d := int((msg[3]&0x01)<<2 | (msg[3]&0x04)>>1 | (msg[3]&0x10)>>4)
	return a*1000 + b*100 + c*10 + d
}

func decodeExtendedSquitter(msg []byte) *ExtendedSquitter {
	es := &ExtendedSquitter{
		Capability: int(msg[0] & 7),
		Type:       int(msg[4] >> 3),
		Subtype:    int(msg[4] & 7),
	}

	switch {
	case es.Type >= 1 && es.Type <= 4:
		es.ES = decodeIdentification(msg, es.Type)
	case es.Type >= 9 && es.Type <= 18:
		es.ES = decodeAirbornePosition(msg)
	case es.Type == 19 && (es.Subtype == 1 || es.Subtype == 2):
		es.ES = decodeVelocity(msg, es.Subtype)
	case es.Type == 19 && (es.Subtype == 3 || es.Subtype == 4):
		es.ES = decodeAirspeedHeading(msg, es.Subtype)
	}
	return es
}

func decodeIdentification(msg []byte, typeCode int) *Identification {
	chars := [8]byte{
		msg[5] >> 2,
		(msg[5]&3)<<4 | msg[6]>>4,
		(msg[6]&15)<<2 | msg[7]>>6,
		msg[7] & 63,
		msg[8] >> 2,
		(msg[8]&3)<<4 | msg[9]>>4,
		(msg[9]&15)<<2 | msg[10]>>6,
		msg[10] & 63,
	}

	var callsign [8]byte
	for i, c := range chars {
		callsign[i] = callsignCharset[c]
	}

	return &Identification{
		// category set A..D for type codes 4..1
		Category: (4-typeCode)<<3 | int(msg[4]&7),
		Callsign: string(callsign[:]),
	}
}

func decodeAirbornePosition(msg []byte) *AirbornePosition {
	ac12 := uint32(msg[5])<<4 | uint32(msg[6])>>4
	return &AirbornePosition{
		Altitude: decodeAC12(ac12),
		CPR: CPRReport{
			Lat: uint32(msg[6]&3)<<15 | uint32(msg[7])<<7 | uint32(msg[8])>>1,
			Lon: uint32(msg[8]&1)<<16 | uint32(msg[9])<<8 | uint32(msg[10]),
			Odd: msg[6]&4 != 0,
		},
		UTC: msg[6]&8 != 0,
	}
}

// verticalRate decodes the source, sign and 9-bit rate shared by all type 19 subtypes
func verticalRate(msg []byte) (source int, rate int, ok bool) {
	source = int(msg[8]&0x10) >> 4
	sign := msg[8]&0x08 != 0
	raw := int(msg[8]&7)<<6 | int(msg[9]&0xfc)>>2
	if raw == 0 {
		return source, 0, false
	}
	rate = (raw - 1) * 64
	if sign {
		rate = -rate
	}
	return source, rate, true
}

func decodeVelocity(msg []byte, subtype int) *Velocity {
	v := &Velocity{
		EWDir: int(msg[5]&4) >> 2,
		EWRaw: int(msg[5]&3)<<8 | int(msg[6]),
		NSDir: int(msg[7]&0x80) >> 7,
		NSRaw: int(msg[7]&0x7f)<<3 | int(msg[8]&0xe0)>>5,
	}
	v.VerticalRateSource, v.VerticalRate, v.VerticalRateAvailable = verticalRate(msg)

	if v.EWRaw == 0 || v.NSRaw == 0 {
		return v
	}

	scale := 1
	if subtype == 2 {
		scale = 4
	}
	v.EW = (v.EWRaw - 1) * scale
	v.NS = (v.NSRaw - 1) * scale
	if v.EWDir == 1 {
		v.EW = -v.EW
	}
	if v.NSDir == 1 {
		v.NS = -v.NS
	}

	v.Available = true
	v.Speed = math.Sqrt(float64(v.NS*v.NS + v.EW*v.EW))
	v.Track = normalizeDegrees(math.Atan2(float64(v.EW), float64(v.NS)) * 180 / math.Pi)
	return v
}

func decodeAirspeedHeading(msg []byte, subtype int) *AirspeedHeading {
	h := &AirspeedHeading{
		HeadingValid: msg[5]&4 != 0,
		Heading:      (360.0 / 128) * float64(int(msg[5]&3)<<5|int(msg[6]>>3)),
		AirspeedTrue: msg[7]&0x80 != 0,
	}

	raw := int(msg[7]&0x7f)<<3 | int(msg[8]>>5)
	if raw != 0 {
		h.AirspeedAvailable = true
		h.Airspeed = raw - 1
		if subtype == 4 {
			h.Airspeed *= 4
		}
	}

	h.VerticalRateSource, h.VerticalRate, h.VerticalRateAvailable = verticalRate(msg)
	return h
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
