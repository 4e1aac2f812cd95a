//go:build !cgo

package rtlsdr

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"modes1090/internal/source"
)

// ErrUnsupported is returned when the binary was built without cgo.
var ErrUnsupported = errors.New("RTL-SDR support requires a cgo build; use --ifile or --net instead")

// Device is unavailable without cgo.
type Device struct{}

// Open always fails without cgo.
func Open(config Config, logger *logrus.Logger) (*Device, error) {
	return nil, ErrUnsupported
}

// Run always fails without cgo.
func (d *Device) Run(ctx context.Context, h *source.Handoff) error {
	h.Close()
	return ErrUnsupported
}

// Close is a no-op without cgo.
func (d *Device) Close() error {
	return nil
}
