// Package inhibit keeps the desktop screensaver off while video plays
package inhibit

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// ScreenSaver D-Bus constants
const (
	screenSaverService = "org.freedesktop.ScreenSaver"
	screenSaverPath    = "/org/freedesktop/ScreenSaver"
	screenSaverIface   = "org.freedesktop.ScreenSaver"
)

// Bus is the part of the screensaver service the inhibitor uses
type Bus interface {
	Inhibit(app, reason string) (uint32, error)
	UnInhibit(cookie uint32) error
	Close() error
}

type sessionBus struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Connect opens the session bus screensaver service
func Connect() (Bus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &sessionBus{
		conn: conn,
		obj:  conn.Object(screenSaverService, screenSaverPath),
	}, nil
}

func (b *sessionBus) Inhibit(app, reason string) (uint32, error) {
	var cookie uint32
	if err := b.obj.Call(screenSaverIface+".Inhibit", 0, app, reason).Store(&cookie); err != nil {
		return 0, fmt.Errorf("screensaver inhibit: %w", err)
	}
	return cookie, nil
}

func (b *sessionBus) UnInhibit(cookie uint32) error {
	if call := b.obj.Call(screenSaverIface+".UnInhibit", 0, cookie); call.Err != nil {
		return fmt.Errorf("screensaver uninhibit: %w", call.Err)
	}
	return nil
}

func (b *sessionBus) Close() error {
	return b.conn.Close()
}

// Inhibitor holds at most one screensaver inhibition
type Inhibitor struct {
	mu     sync.Mutex
	bus    Bus
	app    string
	cookie uint32
	active bool
	log    *zerolog.Logger
}

// New creates an inhibitor on bus reporting itself as app
func New(bus Bus, app string) *Inhibitor {
	return &Inhibitor{bus: bus, app: app, log: logger.WithComponent("inhibit")}
}

// Set takes (on) or drops the inhibition. Repeated calls are no-ops.
func (i *Inhibitor) Set(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if on == i.active {
		return nil
	}
	if on {
		cookie, err := i.bus.Inhibit(i.app, "Playing video")
		if err != nil {
			return err
		}
		i.cookie, i.active = cookie, true
		i.log.Debug().Uint32("cookie", cookie).Msg("Screensaver inhibited")
		return nil
	}

	if err := i.bus.UnInhibit(i.cookie); err != nil {
		return err
	}
	i.log.Debug().Uint32("cookie", i.cookie).Msg("Screensaver released")
	i.cookie, i.active = 0, false
	return nil
}

// Active reports whether an inhibition is held
func (i *Inhibitor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// FollowSpeed is a clock.SpeedListener inhibiting only at normal speed
func (i *Inhibitor) FollowSpeed(_, speed clock.Speed) {
	if err := i.Set(speed == clock.SpeedNormal); err != nil {
		i.log.Warn().Err(err).Msg("Failed to update screensaver inhibition")
	}
}

// Close drops the inhibition and closes the bus
func (i *Inhibitor) Close() error {
	if err := i.Set(false); err != nil {
		i.log.Warn().Err(err).Msg("Failed to release screensaver")
	}
	return i.bus.Close()
}
