//go:build !linux

package bus

import (
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/llehouerou/notifyd/internal/engine"
)

// ErrUnsupported is returned by New on platforms without a session bus.
var ErrUnsupported = errors.New("notification server requires linux")

// Options configures an Adapter.
type Options struct {
	Name    string
	Replace bool
}

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New always fails on non-Linux platforms.
func New(_ *dbus.Conn, _ engine.Service, _ zerolog.Logger, _ Options) (*Adapter, error) {
	return nil, ErrUnsupported
}

// Lost never fires on non-Linux platforms.
func (a *Adapter) Lost() <-chan struct{} {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
