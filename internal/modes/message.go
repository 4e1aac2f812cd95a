package modes

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AltitudeUnit is the unit an altitude was reported in
type AltitudeUnit int

const (
	UnitFeet AltitudeUnit = iota
	UnitMeters
)

func (u AltitudeUnit) String() string {
	if u == UnitMeters {
		return "m"
	}
	return "ft"
}

// Altitude is a decoded altitude. Valid is false when the field is present
// but could not be decoded (metric encoding, illegal Gillham code).
type Altitude struct {
	Value int
	Unit  AltitudeUnit
	Valid bool
}

// Message is a demodulated and validated Mode S frame
type Message struct {
	DF             int
	Bits           int
	Raw            []byte    // Bits/8 bytes, after correction
	CRC            uint32    // parity field as received (after correction)
	CRCOK          bool      // parity matched or address recovered from cache
	ErrorBits      []int     // corrected bit positions, nil when none
	Address        uint32    // 24-bit ICAO address
	PhaseCorrected bool      // decoded on the phase-correction retry
	DemodErrors    int       // low-confidence bits seen by the slicer
	Timestamp      time.Time // receive time
	Body           Body      // nil for formats without decoded fields
}

// Hex returns the raw frame as upper-case hex
func (m *Message) Hex() string {
	return strings.ToUpper(hex.EncodeToString(m.Raw))
}

// ICAO returns the address as six hex digits
func (m *Message) ICAO() string {
	return FormatICAO(m.Address)
}

// FormatICAO renders a 24-bit address as six upper-case hex digits
func FormatICAO(addr uint32) string {
	return fmt.Sprintf("%06X", addr&0xffffff)
}

// Corrected returns how many bits were flipped to validate the message
func (m *Message) Corrected() int {
	return len(m.ErrorBits)
}

// Body is the format-specific part of a message. The concrete type is one of
// *AltitudeReply, *IdentityReply, *AllCallReply or *ExtendedSquitter.
type Body interface {
	isBody()
}

// SurveillanceStatus carries the flight status and request fields of DF4/5/20/21
type SurveillanceStatus struct {
	FlightStatus    int
	DownlinkRequest int
	UtilityMessage  int
}

// AltitudeReply is DF0, DF4, DF16 or DF20. Status is nil for DF0 and DF16.
type AltitudeReply struct {
	Status   *SurveillanceStatus
	Altitude Altitude
}

// IdentityReply is DF5 or DF21
type IdentityReply struct {
	Status SurveillanceStatus
	Squawk int // four octal digits written as a decimal number
}

// AllCallReply is DF11
type AllCallReply struct {
	Capability int
}

// ExtendedSquitter is DF17. ES is nil for type codes without a decoder.
type ExtendedSquitter struct {
	Capability int
	Type       int
	Subtype    int
	ES         ESPayload
}

func (*AltitudeReply) isBody()    {}
func (*IdentityReply) isBody()    {}
func (*AllCallReply) isBody()     {}
func (*ExtendedSquitter) isBody() {}

// ESPayload is the type-specific part of an extended squitter. The concrete
// type is one of *Identification, *AirbornePosition, *Velocity or *AirspeedHeading.
type ESPayload interface {
	isES()
}

// Identification is ES type 1-4
type Identification struct {
	Category int
	Callsign string
}

// AirbornePosition is ES type 9-18
type AirbornePosition struct {
	Altitude Altitude
	CPR      CPRReport
	UTC      bool
}

// Velocity is ES type 19 subtype 1 or 2 (ground speed)
type Velocity struct {
	EWDir int // 1 = west
	EWRaw int
	NSDir int // 1 = south
	NSRaw int

	// Available is false when either component reports "no information"
	Available bool
	EW        int // knots, positive east
	NS        int // knots, positive north
	Speed     float64
	Track     float64 // degrees, [0, 360)

	VerticalRateSource    int // 0 = GNSS, 1 = barometric
	VerticalRateAvailable bool
	VerticalRate          int // ft/min, positive up
}

// AirspeedHeading is ES type 19 subtype 3 or 4
type AirspeedHeading struct {
	HeadingValid bool
	Heading      float64

	AirspeedTrue      bool // false = indicated
	AirspeedAvailable bool
	Airspeed          int // knots

	VerticalRateSource    int
	VerticalRateAvailable bool
	VerticalRate          int
}

func (*Identification) isES()   {}
func (*AirbornePosition) isES() {}
func (*Velocity) isES()         {}
func (*AirspeedHeading) isES()  {}

// AltitudeOf returns the altitude carried by a message, if any
func AltitudeOf(m *Message) (Altitude, bool) {
	switch b := m.Body.(type) {
	case *AltitudeReply:
		return b.Altitude, true
	case *ExtendedSquitter:
		if p, ok := b.ES.(*AirbornePosition); ok {
			return p.Altitude, true
		}
	}
	return Altitude{}, false
}

// SquawkOf returns the identity code carried by a message, if any
func SquawkOf(m *Message) (int, bool) {
	if b, ok := m.Body.(*IdentityReply); ok {
		return b.Squawk, true
	}
	return 0, false
}

// StatusOf returns the surveillance status fields carried by a message, if any
func StatusOf(m *Message) (SurveillanceStatus, bool) {
	switch b := m.Body.(type) {
	case *AltitudeReply:
		if b.Status != nil {
			return *b.Status, true
		}
	case *IdentityReply:
		return b.Status, true
	}
	return SurveillanceStatus{}, false
}
