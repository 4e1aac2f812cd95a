//go:build cgo

package rtlsdr

import (
	"context"
	"errors"
	"fmt"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"

	"modes1090/internal/source"
)

// Device is an opened and tuned RTL-SDR dongle.
type Device struct {
	dev    *rtl.Context
	config Config
	logger *logrus.Logger
}

// Open opens the dongle at config.Index and tunes it for Mode S reception.
func Open(config Config, logger *logrus.Logger) (*Device, error) {
	count := rtl.GetDeviceCount()
	if count == 0 {
		return nil, errors.New("no RTL-SDR devices found")
	}
	if config.Index < 0 || config.Index >= count {
		return nil, fmt.Errorf("device index %d out of range (0-%d)", config.Index, count-1)
	}

	dev, err := rtl.Open(config.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	d := &Device{dev: dev, config: config, logger: logger}
	if err := d.configure(); err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) configure() error {
	if d.config.GainDB == AutoGain {
		if err := d.dev.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("failed to set auto gain: %w", err)
		}
	} else {
		if err := d.dev.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("failed to set manual gain mode: %w", err)
		}
		gains, err := d.dev.GetTunerGains()
		if err != nil {
			d.logger.WithError(err).Warn("Could not read tuner gain table")
		}
		gain := nearestGain(gains, gainTenths(d.config.GainDB))
		if err := d.dev.SetTunerGain(gain); err != nil {
			return fmt.Errorf("failed to set gain: %w", err)
		}
	}

	if d.config.AGC {
		if err := d.dev.SetAgcMode(true); err != nil {
			return fmt.Errorf("failed to enable AGC: %w", err)
		}
	}

	if err := d.dev.SetCenterFreq(int(d.config.Frequency)); err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}
	if err := d.dev.SetSampleRate(SampleRate); err != nil {
		return fmt.Errorf("failed to set sample rate: %w", err)
	}
	if err := d.dev.ResetBuffer(); err != nil {
		return fmt.Errorf("failed to reset buffer: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"device":      rtl.GetDeviceName(d.config.Index),
		"index":       d.config.Index,
		"frequency":   d.config.Frequency,
		"sample_rate": SampleRate,
		"gain_tenths": d.dev.GetTunerGain(),
		"agc":         d.config.AGC,
	}).Info("RTL-SDR device configured")

	return nil
}

// Run streams samples into h until ctx is cancelled. Batches the consumer
// has not taken yet are overwritten.
func (d *Device) Run(ctx context.Context, h *source.Handoff) error {
	defer h.Close()

	callback := func(data []byte) {
		if err := h.Publish(data); err != nil {
			// handoff closed by the consumer side
			d.dev.CancelAsync()
		}
	}

	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("RTL-SDR capture panic: %v", r)
			}
		}()
		errc <- d.dev.ReadAsync(callback, nil, 0, h.BatchSize())
	}()

	d.logger.Info("Starting RTL-SDR capture")

	select {
	case <-ctx.Done():
		if err := d.dev.CancelAsync(); err != nil {
			d.logger.WithError(err).Error("Failed to cancel async reading")
		}
		<-errc
		return nil
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("RTL-SDR read failed: %w", err)
		}
		return nil
	}
}

// Close releases the dongle.
func (d *Device) Close() error {
	if d.dev == nil {
		return nil
	}
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	d.dev = nil
	d.logger.Info("RTL-SDR device closed")
	return nil
}
