package view

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"modes1090/internal/modes"
	"modes1090/internal/tracker"
)

const (
	feetPerMeter = 3.2828
	kmhPerKnot   = 1.852
)

// Header returns the column titles for the aircraft table.
func Header(metric bool) string {
	alt, speed := "Altitude", "Speed"
	if metric {
		alt, speed = "Alt (m)", "Spd km/h"
	}
	return fmt.Sprintf("%-6s %-8s %-9s %-8s %-9s %-10s %-5s %-6s %-9s %s",
		"Hex", "Flight", alt, speed, "Lat", "Lon", "Track", "Squawk", "Messages", "Seen")
}

// FormatRow renders one aircraft as a table row.
func FormatRow(ac tracker.Aircraft, metric bool, now time.Time) string {
	altitude, speed := ac.Altitude, ac.Speed
	if metric {
		altitude = int(float64(altitude) / feetPerMeter)
		speed = int(float64(speed) * kmhPerKnot)
	}

	lat, lon := "", ""
	if ac.ValidPosition {
		lat = fmt.Sprintf("%.3f", ac.Latitude)
		lon = fmt.Sprintf("%.3f", ac.Longitude)
	}

	squawk := ""
	if ac.Squawk != 0 {
		squawk = fmt.Sprintf("%04d", ac.Squawk)
	}

	return fmt.Sprintf("%-6s %-8s %-9d %-8d %-9s %-10s %-5d %-6s %-9s %s",
		ac.Hex,
		strings.TrimSpace(ac.Callsign),
		altitude,
		speed,
		lat,
		lon,
		ac.Track,
		squawk,
		humanize.Comma(ac.Messages),
		humanize.RelTime(ac.LastSeen, now, "ago", "from now"),
	)
}

// Render writes the header and up to maxRows aircraft, in the order given.
// maxRows <= 0 means no limit.
func Render(w io.Writer, list []tracker.Aircraft, metric bool, now time.Time, maxRows int) {
	fmt.Fprintln(w, Header(metric))
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for i, ac := range list {
		if maxRows > 0 && i >= maxRows {
			break
		}
		fmt.Fprintln(w, FormatRow(ac, metric, now))
	}
}

// StatusLine summarises the receiver state for the top of the screen.
func StatusLine(aircraft int, stats modes.StatsSnapshot, now time.Time) string {
	return fmt.Sprintf(" Aircraft: %d  Messages: %s  Fixed: %s  Last update: %s",
		aircraft,
		humanize.Comma(int64(stats.Accepted)),
		humanize.Comma(int64(stats.Fixed)),
		now.Format("2006-01-02 15:04:05"))
}
