package view

import (
	"fmt"
	"strings"

	"modes1090/internal/modes"
)

var capabilityNames = [8]string{
	"Level 1 (Surveillance Only)",
	"Level 2 (DF0,4,5,11)",
	"Level 3 (DF0,4,5,11,20,21)",
	"Level 4 (DF0,4,5,11,20,21,24)",
	"Level 2+3+4 (DF0,4,5,11,20,21,24,code7 - is on ground)",
	"Level 2+3+4 (DF0,4,5,11,20,21,24,code7 - is airborne)",
	"Level 2+3+4 (DF0,4,5,11,20,21,24,code7)",
	"Level 7 ???",
}

var flightStatusNames = [8]string{
	"Normal, Airborne",
	"Normal, On the ground",
	"ALERT, Airborne",
	"ALERT, On the ground",
	"ALERT & Special Position Identification. Airborne or Ground",
	"Special Position Identification. Airborne or Ground",
	"Value 6 is not assigned",
	"Value 7 is not assigned",
}

var aircraftTypeNames = [4]string{
	"Aircraft Type D",
	"Aircraft Type C",
	"Aircraft Type B",
	"Aircraft Type A",
}

// ExtendedSquitterName names an ES type/subtype pair.
func ExtendedSquitterName(typeCode, subtype int) string {
	switch {
	case typeCode >= 1 && typeCode <= 4:
		return "Aircraft Identification and Category"
	case typeCode >= 5 && typeCode <= 8:
		return "Surface Position"
	case typeCode >= 9 && typeCode <= 18:
		return "Airborne Position (Baro Altitude)"
	case typeCode == 19 && subtype >= 1 && subtype <= 4:
		return "Airborne Velocity"
	case typeCode >= 20 && typeCode <= 22:
		return "Airborne Position (GNSS Height)"
	case typeCode == 23 && subtype == 0:
		return "Test Message"
	case typeCode == 24 && subtype == 1:
		return "Surface System Status"
	case typeCode == 28 && subtype == 1:
		return "Extended Squitter Aircraft Status (Emergency)"
	case typeCode == 28 && subtype == 2:
		return "Extended Squitter Aircraft Status (1090ES TCAS RA)"
	case typeCode == 29 && (subtype == 0 || subtype == 1):
		return "Target State and Status Message"
	case typeCode == 31 && (subtype == 0 || subtype == 1):
		return "Aircraft Operational Status Message"
	}
	return "Unknown"
}

// Describe renders a message as a multi-line human readable dump, ending
// with a blank line.
func Describe(m *modes.Message) string {
	var b strings.Builder

	fmt.Fprintln(&b, modes.FormatHexFrame(m.Raw))
	status := "ok"
	if !m.CRCOK {
		status = "wrong"
	}
	fmt.Fprintf(&b, "CRC: %06x (%s)\n", m.CRC, status)
	switch len(m.ErrorBits) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "Single bit error fixed, bit %d\n", m.ErrorBits[0])
	default:
		fmt.Fprintf(&b, "Two bit errors fixed, bits %d and %d\n", m.ErrorBits[0], m.ErrorBits[1])
	}
	if m.PhaseCorrected {
		fmt.Fprintln(&b, "Decoded after phase correction")
	}

	switch body := m.Body.(type) {
	case *modes.AltitudeReply:
		describeAltitudeReply(&b, m, body)
	case *modes.IdentityReply:
		kind := "Surveillance"
		if m.DF == 21 {
			kind = "Comm-B"
		}
		fmt.Fprintf(&b, "DF %d: %s, Identity Reply.\n", m.DF, kind)
		describeStatus(&b, body.Status)
		fmt.Fprintf(&b, "  Squawk         : %04d\n", body.Squawk)
		fmt.Fprintf(&b, "  ICAO Address   : %s\n", m.ICAO())
	case *modes.AllCallReply:
		fmt.Fprintln(&b, "DF 11: All Call Reply.")
		fmt.Fprintf(&b, "  Capability     : %s\n", capabilityNames[body.Capability&7])
		fmt.Fprintf(&b, "  ICAO Address   : %s\n", m.ICAO())
	case *modes.ExtendedSquitter:
		describeExtendedSquitter(&b, m, body)
	default:
		fmt.Fprintf(&b, "DF %d with good CRC received (decoding not implemented).\n", m.DF)
	}

	fmt.Fprintln(&b)
	return b.String()
}

func describeAltitudeReply(b *strings.Builder, m *modes.Message, body *modes.AltitudeReply) {
	switch m.DF {
	case 0:
		fmt.Fprintln(b, "DF 0: Short Air-Air Surveillance.")
	case 16:
		fmt.Fprintln(b, "DF 16: Long Air-Air Surveillance.")
	case 4:
		fmt.Fprintln(b, "DF 4: Surveillance, Altitude Reply.")
	default:
		fmt.Fprintf(b, "DF %d: Comm-B, Altitude Reply.\n", m.DF)
	}
	if body.Status != nil {
		describeStatus(b, *body.Status)
	}
	fmt.Fprintf(b, "  Altitude       : %s\n", formatAltitude(body.Altitude))
	fmt.Fprintf(b, "  ICAO Address   : %s\n", m.ICAO())
}

func describeStatus(b *strings.Builder, s modes.SurveillanceStatus) {
	fmt.Fprintf(b, "  Flight Status  : %s\n", flightStatusNames[s.FlightStatus&7])
	fmt.Fprintf(b, "  DR             : %d\n", s.DownlinkRequest)
	fmt.Fprintf(b, "  UM             : %d\n", s.UtilityMessage)
}

func describeExtendedSquitter(b *strings.Builder, m *modes.Message, es *modes.ExtendedSquitter) {
	fmt.Fprintln(b, "DF 17: ADS-B message.")
	fmt.Fprintf(b, "  Capability     : %d (%s)\n", es.Capability, capabilityNames[es.Capability&7])
	fmt.Fprintf(b, "  ICAO Address   : %s\n", m.ICAO())
	fmt.Fprintf(b, "  Extended Squitter  Type: %d\n", es.Type)
	fmt.Fprintf(b, "  Extended Squitter  Sub : %d\n", es.Subtype)
	fmt.Fprintf(b, "  Extended Squitter  Name: %s\n", ExtendedSquitterName(es.Type, es.Subtype))

	switch p := es.ES.(type) {
	case *modes.Identification:
		fmt.Fprintf(b, "    Aircraft Type  : %s\n", aircraftTypeNames[(es.Type-1)&3])
		fmt.Fprintf(b, "    Identification : %s\n", p.Callsign)
	case *modes.AirbornePosition:
		flag := "even"
		if p.CPR.Odd {
			flag = "odd"
		}
		utc := "non-UTC"
		if p.UTC {
			utc = "UTC"
		}
		fmt.Fprintf(b, "    F flag   : %s\n", flag)
		fmt.Fprintf(b, "    T flag   : %s\n", utc)
		fmt.Fprintf(b, "    Altitude : %s\n", formatAltitude(p.Altitude))
		fmt.Fprintf(b, "    Latitude : %d (not decoded)\n", p.CPR.Lat)
		fmt.Fprintf(b, "    Longitude: %d (not decoded)\n", p.CPR.Lon)
	case *modes.Velocity:
		fmt.Fprintf(b, "    EW direction      : %d\n", p.EWDir)
		fmt.Fprintf(b, "    EW velocity       : %d\n", p.EWRaw)
		fmt.Fprintf(b, "    NS direction      : %d\n", p.NSDir)
		fmt.Fprintf(b, "    NS velocity       : %d\n", p.NSRaw)
		if p.Available {
			fmt.Fprintf(b, "    Speed             : %.2f kt\n", p.Speed)
			fmt.Fprintf(b, "    Track             : %.2f\n", p.Track)
		}
		describeVerticalRate(b, p.VerticalRateSource, p.VerticalRateAvailable, p.VerticalRate)
	case *modes.AirspeedHeading:
		if p.HeadingValid {
			fmt.Fprintf(b, "    Heading           : %.3f\n", p.Heading)
		} else {
			fmt.Fprintln(b, "    Heading           : not available")
		}
		if p.AirspeedAvailable {
			kind := "IAS"
			if p.AirspeedTrue {
				kind = "TAS"
			}
			fmt.Fprintf(b, "    Airspeed          : %d kt (%s)\n", p.Airspeed, kind)
		}
		describeVerticalRate(b, p.VerticalRateSource, p.VerticalRateAvailable, p.VerticalRate)
	default:
		fmt.Fprintln(b, "    Unrecognized ME type")
	}
}

func describeVerticalRate(b *strings.Builder, source int, ok bool, rate int) {
	src := "GNSS"
	if source == 1 {
		src = "Baro"
	}
	fmt.Fprintf(b, "    Vertical rate src : %s\n", src)
	if ok {
		fmt.Fprintf(b, "    Vertical rate     : %d ft/min\n", rate)
	}
}

func formatAltitude(a modes.Altitude) string {
	if !a.Valid {
		return "not available"
	}
	if a.Unit == modes.UnitMeters {
		return fmt.Sprintf("%d meters", a.Value)
	}
	return fmt.Sprintf("%d feet", a.Value)
}
