package cast

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vishen/go-chromecast/application"
)

// ErrBusy is returned while an earlier timed-out call still holds the session.
var ErrBusy = errors.New("previous receiver call still in progress")

// DefaultMaxBusy is how many calls in a row may fail with ErrBusy before the
// stuck session is abandoned and the next call dials a fresh one.
const DefaultMaxBusy = 3

// Session is an open control connection to a receiver.
type Session interface {
	// DisplayName refreshes receiver status and returns the running app name.
	DisplayName() (string, error)
	Close()
}

// Dialer opens a session to host:port.
type Dialer func(host string, port int) (Session, error)

// Player is the media player probe for one receiver.
type Player struct {
	device  Device
	idleApp string
	dial    Dialer

	maxBusy int

	mu       sync.Mutex
	session  Session
	inflight bool
	gen      uint64 // bumped per call; a stale call must not touch player state
	busy     int    // consecutive ErrBusy results
}

// NewPlayer creates a probe for device. The device counts as active while
// it shows anything other than idleApp.
func NewPlayer(device Device, idleApp string) *Player {
	return NewPlayerWithDialer(device, idleApp, DialChromecast)
}

// NewPlayerWithDialer creates a probe using a custom dialer.
func NewPlayerWithDialer(device Device, idleApp string, dial Dialer) *Player {
	return &Player{
		device:  device,
		idleApp: idleApp,
		dial:    dial,
		maxBusy: DefaultMaxBusy,
	}
}

// Label returns the device friendly name.
func (p *Player) Label() string {
	return p.device.Name
}

// Device returns the tracked device.
func (p *Player) Device() Device {
	return p.device
}

// Connect opens the receiver session. Later calls reconnect on demand.
func (p *Player) Connect(ctx context.Context) error {
	_, err := p.call(ctx, func(s Session) (string, error) { return "", nil })
	if err == nil {
		log.Info().Str("device", p.device.String()).Msg("Connected to cast device")
	}
	return err
}

// IsActive reports whether the receiver runs something other than the idle app.
func (p *Player) IsActive(ctx context.Context) (bool, error) {
	name, err := p.call(ctx, func(s Session) (string, error) { return s.DisplayName() })
	if err != nil {
		return false, err
	}
	return name != p.idleApp, nil
}

// Close closes the session.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
}

type callResult struct {
	name string
	err  error
}

// call runs fn on the session in a goroutine so the caller can give up at
// its deadline. The receiver library has no context support, so a call that
// outlives its deadline keeps the session busy until it returns, or until
// maxBusy later calls have been turned away.
func (p *Player) call(ctx context.Context, fn func(Session) (string, error)) (string, error) {
	p.mu.Lock()
	if p.inflight {
		p.busy++
		if p.busy < p.maxBusy {
			p.mu.Unlock()
			return "", ErrBusy
		}
		p.abandonLocked()
	}
	p.busy = 0
	p.inflight = true
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	done := make(chan callResult, 1)
	go func() {
		name, err := p.run(gen, fn)
		done <- callResult{name: name, err: err}
	}()

	select {
	case r := <-done:
		return r.name, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// abandonLocked drops the session held by a hung call. Closing it usually
// unblocks the call; its result is ignored either way.
func (p *Player) abandonLocked() {
	log.Warn().Str("device", p.device.Name).Int("busy_calls", p.busy).Msg("Cast call stuck, dropping session")
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
	p.inflight = false
}

func (p *Player) run(gen uint64, fn func(Session) (string, error)) (string, error) {
	defer func() {
		p.mu.Lock()
		if p.gen == gen {
			p.inflight = false
		}
		p.mu.Unlock()
	}()

	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	if session == nil {
		s, err := p.dial(p.device.Host, p.device.Port)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		if p.gen != gen {
			// Abandoned while dialing
			p.mu.Unlock()
			s.Close()
			return "", ErrBusy
		}
		p.session = s
		p.mu.Unlock()
		session = s
	}

	name, err := fn(session)
	if err != nil {
		// Drop the connection; the next call dials again
		log.Debug().Err(err).Str("device", p.device.Name).Msg("Dropping cast session")
		p.mu.Lock()
		owned := p.session == session
		if owned {
			p.session = nil
		}
		p.mu.Unlock()
		if owned {
			session.Close()
		}
	}
	return name, err
}

// chromecastSession adapts go-chromecast's application to Session.
type chromecastSession struct {
	app *application.Application
}

// DialChromecast connects to a receiver with go-chromecast.
func DialChromecast(host string, port int) (Session, error) {
	app := application.NewApplication(application.WithCacheDisabled(true))
	if err := app.Start(host, port); err != nil {
		return nil, err
	}
	return &chromecastSession{app: app}, nil
}

func (s *chromecastSession) DisplayName() (string, error) {
	if err := s.app.Update(); err != nil {
		return "", err
	}
	app, _, _ := s.app.Status()
	if app == nil {
		return "", nil
	}
	return app.DisplayName, nil
}

func (s *chromecastSession) Close() {
	s.app.Close(false)
}
