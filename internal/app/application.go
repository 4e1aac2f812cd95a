package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"modes1090/internal/basestation"
	"modes1090/internal/logging"
	"modes1090/internal/metrics"
	"modes1090/internal/modes"
	"modes1090/internal/publish"
	"modes1090/internal/rtlsdr"
	"modes1090/internal/server"
	"modes1090/internal/source"
	"modes1090/internal/state"
	"modes1090/internal/tracker"
	"modes1090/internal/view"
)

const (
	shutdownTimeout   = 5 * time.Second
	stateSyncInterval = 5 * time.Second
	logCleanupPeriod  = time.Hour
	frameQueueLen     = 256
)

// producer is a sample source that also owns a device or file handle
type producer interface {
	source.Producer
	Close() error
}

// Application represents the main application
type Application struct {
	config Config
	logger *logrus.Logger
	stdout io.Writer

	handoff  *source.Handoff
	producer producer
	demod    *modes.Demodulator
	decoder  *modes.Decoder
	tracker  *tracker.Tracker

	output     *basestation.Writer // nil in interactive and describe modes
	describe   bool
	logRotator *logging.LogRotator
	sbsLog     *basestation.Writer

	frames   chan server.Frame
	rawOut   *server.Broadcaster
	sbsOut   *server.Broadcaster
	rawIn    *server.Input
	beastIn  *server.Input
	http     *server.HTTPServer
	exporter *metrics.Collector

	publisher *publish.Publisher
	store     *state.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates a new application instance. The interactive view
// owns the terminal, so log output is discarded in that mode.
func NewApplication(config Config) *Application {
	var logOut io.Writer = os.Stderr
	if config.Interactive {
		logOut = io.Discard
	}

	return &Application{
		config: config,
		logger: logging.NewLogger(config.Verbose, logOut),
		stdout: os.Stdout,
	}
}

// SetOutput replaces stdout as the destination of per-message output
func (app *Application) SetOutput(w io.Writer) {
	app.stdout = w
}

// Logger returns the application logger
func (app *Application) Logger() *logrus.Logger {
	return app.logger
}

// Start runs the application until SIGINT, SIGTERM, or the end of file input
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			app.logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return app.Run(ctx)
}

// Run initializes every component, processes input until ctx is done or the
// sample source is exhausted, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting Mode S decoder")

	if err := app.config.Validate(); err != nil {
		return err
	}

	app.ctx, app.cancel = context.WithCancel(ctx)
	defer app.cancel()

	if err := app.initializeComponents(); err != nil {
		app.closeResources()
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	app.run()
	<-app.ctx.Done()
	app.shutdown()
	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	cfg := app.config
	var err error

	app.decoder = modes.NewDecoder(modes.DecoderConfig{
		FixErrors:  !cfg.NoFix,
		CheckCRC:   !cfg.NoCRCCheck,
		Aggressive: cfg.Aggressive,
	}, nil, app.logger)
	app.demod = modes.NewDemodulator(app.decoder, app.logger)

	app.tracker = tracker.New(tracker.Config{
		TTL:         time.Duration(cfg.InteractiveTTL) * time.Second,
		CheckCRC:    !cfg.NoCRCCheck,
		HasReceiver: cfg.HasReceiver(),
		ReceiverLat: cfg.Latitude,
		ReceiverLon: cfg.Longitude,
	}, app.logger)

	if err := app.initializeSource(); err != nil {
		return err
	}
	app.initializeOutput()

	if cfg.LogDir != "" {
		app.logRotator, err = logging.NewLogRotator(cfg.LogDir, "sbs", cfg.LogRotateUTC, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize log rotator: %w", err)
		}
		app.sbsLog = basestation.NewWriter(app.logRotator, basestation.FormatSBSLines, app.logger)
	}

	app.exporter = metrics.NewCollector(metrics.Source{
		Stats:    app.decoder.Stats().Snapshot,
		Aircraft: app.tracker.Len,
		Handoff: func() (uint64, uint64) {
			if app.handoff == nil {
				return 0, 0
			}
			return app.handoff.Counters()
		},
	})

	if cfg.NetEnabled() {
		if err := app.initializeNetwork(); err != nil {
			return err
		}
	}

	if cfg.NATSURL != "" {
		app.publisher, err = publish.Connect(cfg.NATSURL, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
	}
	if cfg.RedisAddr != "" {
		app.store, err = state.New(cfg.RedisAddr, 2*time.Duration(cfg.InteractiveTTL)*time.Second, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize state store: %w", err)
		}
	}

	app.tracker.OnEvicted(app.aircraftExpired)
	return nil
}

func (app *Application) initializeSource() error {
	cfg := app.config

	switch {
	case cfg.NetOnly:
		app.logger.Info("Network only mode, no sample source")
		return nil
	case cfg.InputFile != "":
		f, err := source.OpenFile(cfg.InputFile, cfg.Loop, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		app.producer = f
	default:
		dev, err := rtlsdr.Open(rtlsdr.Config{
			Index:     cfg.DeviceIndex,
			Frequency: cfg.Frequency,
			GainDB:    cfg.Gain,
			AGC:       cfg.EnableAGC,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RTL-SDR: %w", err)
		}
		app.producer = dev
	}

	app.handoff = source.NewHandoff(source.DefaultBatchSize)
	return nil
}

func (app *Application) initializeOutput() {
	cfg := app.config

	switch {
	case cfg.Interactive:
	case cfg.Raw:
		app.output = basestation.NewWriter(app.stdout, basestation.FormatRawLines, app.logger)
	case cfg.OnlyAddr:
		app.output = basestation.NewWriter(app.stdout, basestation.FormatAddressLines, app.logger)
	case cfg.SBS:
		app.output = basestation.NewWriter(app.stdout, basestation.FormatSBSLines, app.logger)
	default:
		app.describe = true
	}
}

func (app *Application) initializeNetwork() error {
	cfg := app.config
	var err error

	if app.rawOut, err = server.ListenBroadcaster("raw-out", listenAddr(cfg.NetROPort), app.logger); err != nil {
		return err
	}
	if app.sbsOut, err = server.ListenBroadcaster("sbs-out", listenAddr(cfg.NetSBSPort), app.logger); err != nil {
		return err
	}

	app.frames = make(chan server.Frame, frameQueueLen)
	if app.rawIn, err = server.ListenRawInput(listenAddr(cfg.NetRIPort), app.frames, app.logger); err != nil {
		return err
	}
	if app.beastIn, err = server.ListenBeastInput(listenAddr(cfg.NetBeastInPort), app.frames, app.logger); err != nil {
		return err
	}

	handler := server.NewHandler(app.tracker, metrics.Handler(metrics.NewRegistry(app.exporter)), app.logger)
	if app.http, err = server.ListenHTTP(listenAddr(cfg.NetHTTPPort), handler, app.logger); err != nil {
		return err
	}
	return nil
}

// run starts every goroutine
func (app *Application) run() {
	batches := make(chan []byte)

	if app.producer != nil {
		app.goRun("producer", func() error {
			return app.producer.Run(app.ctx, app.handoff)
		})
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.pumpBatches(batches)
		}()
	} else {
		close(batches)
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.consume(batches)
	}()

	if app.config.NetEnabled() {
		app.goRun("raw-out", func() error { return app.rawOut.Serve(app.ctx) })
		app.goRun("sbs-out", func() error { return app.sbsOut.Serve(app.ctx) })
		app.goRun("raw-in", func() error { return app.rawIn.Serve(app.ctx) })
		app.goRun("beast-in", func() error { return app.beastIn.Serve(app.ctx) })
		app.goRun("http", func() error { return app.http.Serve(app.ctx) })
	}

	if app.logRotator != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logRotator.Run(app.ctx)
		}()
		if app.config.LogMaxDays > 0 {
			app.wg.Add(1)
			go func() {
				defer app.wg.Done()
				app.cleanupLogs()
			}()
		}
	}

	if app.store != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.syncState()
		}()
	}

	if app.config.Stats {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.reportStatistics()
		}()
	}

	if app.config.Interactive {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			v := view.NewInteractive(app.tracker, app.decoder.Stats().Snapshot, app.config.Metric, app.logger)
			if err := v.Run(app.ctx); err != nil {
				app.logger.WithError(err).Error("Interactive view failed")
			}
			// leaving the view ends the program
			app.cancel()
		}()
	}

	app.logger.Info("All components started successfully")
}

// goRun runs fn in a tracked goroutine and logs its error
func (app *Application) goRun(name string, fn func() error) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.WithError(err).WithField("component", name).Error("Component failed")
		}
	}()
}

// pumpBatches moves sample batches from the handoff to the consumer so the
// consumer can also select on network frames. The consumer returns each
// batch with Handoff.Done, and Next does not hand out another one before
// that. It closes out when the producer is finished.
func (app *Application) pumpBatches(out chan<- []byte) {
	defer close(out)
	for {
		batch, err := app.handoff.Next(app.ctx)
		if err != nil {
			if errors.Is(err, source.ErrClosed) {
				app.logger.Info("Sample source finished")
			}
			return
		}
		select {
		case out <- batch:
		case <-app.ctx.Done():
			return
		}
	}
}

// consume is the only goroutine that touches the demodulator and decoder
func (app *Application) consume(batches <-chan []byte) {
	var mags []uint16

	for {
		select {
		case <-app.ctx.Done():
			return

		case batch, ok := <-batches:
			if !ok {
				batches = nil
				// without network input there is nothing left to do
				if !app.config.NetEnabled() {
					app.cancel()
					return
				}
				continue
			}
			mags = modes.ComputeMagnitudes(batch, mags)
			for _, m := range app.demod.DecodeBuffer(mags, time.Now()) {
				app.handleMessage(m)
			}
			app.handoff.Done()

		case f := <-app.frames:
			m, err := app.decoder.DecodeFrame(f.Data, f.Received)
			if err != nil {
				app.logger.WithError(err).WithField("source", f.Source).Debug("Dropped network frame")
				continue
			}
			if m.CRCOK || !app.decoder.Config().CheckCRC {
				app.decoder.Stats().Accepted.Add(1)
				app.handleMessage(m)
			}
		}
	}
}

// handleMessage fans one accepted message out to every configured output
func (app *Application) handleMessage(m *modes.Message) {
	now := time.Now()
	ac := app.tracker.Update(m)

	if app.describe {
		if _, err := io.WriteString(app.stdout, view.Describe(m)); err != nil {
			app.logger.WithError(err).Debug("Failed to write message")
		}
	} else if app.output != nil {
		if err := app.output.WriteMessage(m, ac, now); err != nil {
			app.logger.WithError(err).Debug("Failed to write message")
		}
	}

	var sbs string
	if app.sbsLog != nil || app.sbsOut != nil || app.publisher != nil {
		sbs = basestation.FormatSBS(m, ac, now)
	}

	if app.sbsLog != nil && sbs != "" {
		if err := app.sbsLog.WriteMessage(m, ac, now); err != nil {
			app.logger.WithError(err).Warn("Failed to write SBS log")
		}
	}
	if app.rawOut != nil {
		app.rawOut.Broadcast(basestation.FormatRaw(m))
	}
	if app.sbsOut != nil && sbs != "" {
		app.sbsOut.Broadcast(sbs)
	}
	if app.publisher != nil {
		if err := app.publisher.Publish(m, ac, sbs); err != nil {
			app.logger.WithError(err).WithField("icao", m.ICAO()).Debug("Failed to publish message")
		}
	}
}

// aircraftExpired runs on the tracker's janitor goroutine
func (app *Application) aircraftExpired(ac tracker.Aircraft) {
	app.exporter.AircraftExpired()

	if app.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := app.store.Delete(ctx, ac.Hex); err != nil {
			app.logger.WithError(err).WithField("icao", ac.Hex).Debug("Failed to delete aircraft state")
		}
	}
}

// syncState mirrors the tracker into Redis periodically
func (app *Application) syncState() {
	ticker := time.NewTicker(stateSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, stateSyncInterval)
			if err := app.store.Sync(ctx, app.tracker.Snapshot()); err != nil {
				app.logger.WithError(err).Debug("Aircraft state sync failed")
			}
			cancel()
		}
	}
}

// cleanupLogs removes old SBS logs at start and then hourly
func (app *Application) cleanupLogs() {
	ticker := time.NewTicker(logCleanupPeriod)
	defer ticker.Stop()

	for {
		if _, err := app.logRotator.Cleanup(app.config.LogMaxDays); err != nil {
			app.logger.WithError(err).Warn("Log cleanup failed")
		}
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reportStatistics reports processing statistics periodically
func (app *Application) reportStatistics() {
	ticker := time.NewTicker(app.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.logStatistics()
		}
	}
}

func (app *Application) logStatistics() {
	s := app.decoder.Stats().Snapshot()
	fields := logrus.Fields{
		"valid_preambles":  humanize.Comma(int64(s.ValidPreamble)),
		"demodulated":      humanize.Comma(int64(s.Demodulated)),
		"good_crc":         humanize.Comma(int64(s.GoodCRC)),
		"bad_crc":          humanize.Comma(int64(s.BadCRC)),
		"fixed":            humanize.Comma(int64(s.Fixed)),
		"single_bit_fixes": humanize.Comma(int64(s.SingleBitFix)),
		"two_bit_fixes":    humanize.Comma(int64(s.TwoBitsFix)),
		"out_of_phase":     humanize.Comma(int64(s.OutOfPhase)),
		"noise_rejected":   humanize.Comma(int64(s.NoiseRejected)),
		"icao_cache_miss":  humanize.Comma(int64(s.CacheMiss)),
		"remote_frames":    humanize.Comma(int64(s.RemoteFrames)),
		"accepted":         humanize.Comma(int64(s.Accepted)),
		"aircraft":         app.tracker.Len(),
	}
	if app.handoff != nil {
		published, dropped := app.handoff.Counters()
		fields["batches"] = humanize.Comma(int64(published))
		fields["batches_dropped"] = humanize.Comma(int64(dropped))
	}
	app.logger.WithFields(fields).Info("Decoder statistics")
}

// shutdown gracefully shuts down the application
func (app *Application) shutdown() {
	app.logger.Info("Shutting down application")
	app.cancel()
	if app.handoff != nil {
		app.handoff.Close()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("All goroutines finished")
	case <-time.After(shutdownTimeout):
		app.logger.Warn("Shutdown timeout, forcing exit")
	}

	if app.config.Stats {
		app.logStatistics()
	}
	app.closeResources()
	app.logger.Info("Shutdown completed")
}

// closeResources releases whatever was opened; safe on partial init
func (app *Application) closeResources() {
	if app.producer != nil {
		if err := app.producer.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close sample source")
		}
	}
	if app.rawOut != nil {
		app.rawOut.Close()
	}
	if app.sbsOut != nil {
		app.sbsOut.Close()
	}
	if app.rawIn != nil {
		app.rawIn.Close()
	}
	if app.beastIn != nil {
		app.beastIn.Close()
	}
	if app.http != nil {
		app.http.Close()
	}
	if app.publisher != nil {
		app.publisher.Close()
	}
	if app.store != nil {
		app.store.Close()
	}
	if app.logRotator != nil {
		app.logRotator.Close()
	}
}
