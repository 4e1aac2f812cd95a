package basestation

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"modes1090/internal/modes"
	"modes1090/internal/tracker"
)

// BaseStation transmission types
const (
	TransmissionIDCategory     = 1 // Extended Squitter Aircraft ID and Category
	TransmissionSurface        = 2 // Extended Squitter Surface Position
	TransmissionAirborne       = 3 // Extended Squitter Airborne Position
	TransmissionVelocity       = 4 // Extended Squitter Airborne Velocity
	TransmissionSurveillance   = 5 // Surveillance Alt, Squawk change
	TransmissionSurveillanceID = 6 // Surveillance ID change
	TransmissionAirToAir       = 7 // Air-to-Air Message
	TransmissionAllCall        = 8 // All Call Reply
)

// Record is one BaseStation MSG line before formatting.
type Record struct {
	TransmissionType int
	SessionID        int
	AircraftID       int
	HexIdent         string
	FlightID         int
	Generated        time.Time
	Logged           time.Time
	Callsign         string
	Altitude         string
	GroundSpeed      string
	Track            string
	Latitude         string
	Longitude        string
	VerticalRate     string
	Squawk           string
	Alert            string
	Emergency        string
	SPI              string
	IsOnGround       string
}

// String formats the record as a 22-field CSV line without a newline.
func (r *Record) String() string {
	fields := []string{
		"MSG",
		strconv.Itoa(r.TransmissionType),
		strconv.Itoa(r.SessionID),
		strconv.Itoa(r.AircraftID),
		r.HexIdent,
		strconv.Itoa(r.FlightID),
		r.Generated.Format("2006/01/02"),
		r.Generated.Format("15:04:05.000"),
		r.Logged.Format("2006/01/02"),
		r.Logged.Format("15:04:05.000"),
		r.Callsign,
		r.Altitude,
		r.GroundSpeed,
		r.Track,
		r.Latitude,
		r.Longitude,
		r.VerticalRate,
		r.Squawk,
		r.Alert,
		r.Emergency,
		r.SPI,
		r.IsOnGround,
	}
	return strings.Join(fields, ",")
}

func flag(set bool) string {
	if set {
		return "-1"
	}
	return "0"
}

// setStatusFlags derives the alert, emergency, SPI and ground columns from
// the flight status and the identity code.
func (r *Record) setStatusFlags(status modes.SurveillanceStatus, squawk int, hasSquawk bool) {
	fs := status.FlightStatus
	r.Alert = flag(fs == 2 || fs == 3 || fs == 4)
	r.SPI = flag(fs == 4 || fs == 5)
	r.IsOnGround = flag(fs == 1 || fs == 3)
	r.Emergency = flag(hasSquawk && (squawk == modes.SquawkHijack ||
		squawk == modes.SquawkRadioFail || squawk == modes.SquawkEmergency))
}

func (r *Record) clearFlags() {
	r.Alert, r.Emergency, r.SPI, r.IsOnGround = "0", "0", "0", "0"
}

// NewRecord converts a message into a BaseStation record. ac supplies the
// resolved position for airborne position messages and may be nil. It
// returns nil for messages with no SBS equivalent.
func NewRecord(m *modes.Message, ac *tracker.Aircraft, now time.Time) *Record {
	generated := m.Timestamp
	if generated.IsZero() {
		generated = now
	}

	r := &Record{
		SessionID:  1,
		AircraftID: 1,
		FlightID:   1,
		HexIdent:   m.ICAO(),
		Generated:  generated,
		Logged:     now,
	}

	switch body := m.Body.(type) {
	case *modes.AltitudeReply:
		if m.DF == 0 || m.DF == 16 {
			r.TransmissionType = TransmissionAirToAir
		} else {
			r.TransmissionType = TransmissionSurveillance
		}
		if body.Altitude.Valid && body.Altitude.Unit == modes.UnitFeet {
			r.Altitude = strconv.Itoa(body.Altitude.Value)
		}
		if body.Status != nil {
			r.setStatusFlags(*body.Status, 0, false)
		}

	case *modes.IdentityReply:
		r.TransmissionType = TransmissionSurveillanceID
		r.Squawk = fmt.Sprintf("%04d", body.Squawk)
		r.setStatusFlags(body.Status, body.Squawk, true)

	case *modes.AllCallReply:
		r.TransmissionType = TransmissionAllCall

	case *modes.ExtendedSquitter:
		switch es := body.ES.(type) {
		case *modes.Identification:
			r.TransmissionType = TransmissionIDCategory
			r.Callsign = strings.TrimSpace(es.Callsign)
		case *modes.AirbornePosition:
			r.TransmissionType = TransmissionAirborne
			if es.Altitude.Valid && es.Altitude.Unit == modes.UnitFeet {
				r.Altitude = strconv.Itoa(es.Altitude.Value)
			}
			if ac != nil && ac.ValidPosition {
				r.Latitude = fmt.Sprintf("%.5f", ac.Latitude)
				r.Longitude = fmt.Sprintf("%.5f", ac.Longitude)
			}
		case *modes.Velocity:
			r.TransmissionType = TransmissionVelocity
			if es.Available {
				r.GroundSpeed = strconv.Itoa(int(es.Speed + 0.5))
				r.Track = strconv.Itoa(int(es.Track+0.5) % 360)
			}
			if es.VerticalRateAvailable {
				r.VerticalRate = strconv.Itoa(es.VerticalRate)
			}
		default:
			return nil
		}
		r.clearFlags()

	default:
		return nil
	}

	return r
}

// FormatSBS returns the BaseStation line for m, or "" when there is none.
func FormatSBS(m *modes.Message, ac *tracker.Aircraft, now time.Time) string {
	r := NewRecord(m, ac, now)
	if r == nil {
		return ""
	}
	return r.String()
}

// FormatRaw returns the frame as a *HEX; line.
func FormatRaw(m *modes.Message) string {
	return modes.FormatHexFrame(m.Raw)
}

// FormatAddress returns the lower-case ICAO address.
func FormatAddress(m *modes.Message) string {
	return fmt.Sprintf("%06x", m.Address)
}

// Format selects what a Writer emits per message.
type Format int

const (
	FormatSBSLines Format = iota
	FormatRawLines
	FormatAddressLines
)

// Writer writes one line per message to an io.Writer, typically stdout or
// a logging.LogRotator.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	format Format
	logger *logrus.Logger
	lines  uint64
}

// NewWriter creates a writer emitting lines in the given format.
func NewWriter(out io.Writer, format Format, logger *logrus.Logger) *Writer {
	return &Writer{
		out:    out,
		format: format,
		logger: logger,
	}
}

// Line formats m without writing it.
func (w *Writer) Line(m *modes.Message, ac *tracker.Aircraft, now time.Time) string {
	switch w.format {
	case FormatRawLines:
		return FormatRaw(m)
	case FormatAddressLines:
		return FormatAddress(m)
	default:
		return FormatSBS(m, ac, now)
	}
}

// WriteMessage formats and writes m. Messages without a line are skipped.
func (w *Writer) WriteMessage(m *modes.Message, ac *tracker.Aircraft, now time.Time) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	line := w.Line(m, ac, now)
	if line == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := io.WriteString(w.out, line+"\n"); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns how many lines have been written.
func (w *Writer) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}
