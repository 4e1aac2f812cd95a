package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/sirupsen/logrus"

	"modes1090/internal/modes"
	"modes1090/internal/tracker"
)

// DefaultRefresh is how often the screen is redrawn.
const DefaultRefresh = 250 * time.Millisecond

// AircraftLister is the part of the tracker the view reads.
type AircraftLister interface {
	Snapshot() []tracker.Aircraft
}

// Interactive is a full-screen aircraft table.
type Interactive struct {
	aircraft AircraftLister
	stats    func() modes.StatsSnapshot
	metric   bool
	refresh  time.Duration
	logger   *logrus.Logger
}

// NewInteractive creates the view. stats may be nil.
func NewInteractive(aircraft AircraftLister, stats func() modes.StatsSnapshot, metric bool, logger *logrus.Logger) *Interactive {
	return &Interactive{
		aircraft: aircraft,
		stats:    stats,
		metric:   metric,
		refresh:  DefaultRefresh,
		logger:   logger,
	}
}

// Run takes over the terminal until Ctrl-C, q, or ctx is done.
func (v *Interactive) Run(ctx context.Context) error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return fmt.Errorf("failed to start terminal UI: %w", err)
	}
	defer g.Close()

	g.SetManagerFunc(v.layout)

	quit := func(g *gocui.Gui, _ *gocui.View) error { return gocui.ErrQuit }
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(v.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
				return
			case <-ticker.C:
				g.Update(v.update)
			}
		}
	}()

	if err := g.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

func (v *Interactive) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if s, err := g.SetView("status", 0, 0, maxX-1, 2); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		s.Frame = true
		fmt.Fprintln(s, " Waiting for data...")
	}

	if l, err := g.SetView("list", 0, 3, maxX-1, maxY-1); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		l.Title = "[ Aircraft ]"
	}
	return nil
}

func (v *Interactive) update(g *gocui.Gui) error {
	now := time.Now()
	list := v.aircraft.Snapshot()

	s, err := g.View("status")
	if err != nil {
		return err
	}
	var snap modes.StatsSnapshot
	if v.stats != nil {
		snap = v.stats()
	}
	s.Clear()
	fmt.Fprintln(s, StatusLine(len(list), snap, now))

	l, err := g.View("list")
	if err != nil {
		return err
	}
	_, rows := l.Size()
	l.Clear()
	// two header lines
	Render(l, list, v.metric, now, rows-2)
	return nil
}
