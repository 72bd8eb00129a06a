package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MediaPlayer reports whether the tracked device is in use.
type MediaPlayer interface {
	IsActive(ctx context.Context) (bool, error)
	Label() string
}

// LightGroup reads and sets the power state of the designated group.
type LightGroup interface {
	IsOn(ctx context.Context) (bool, error)
	SetOn(ctx context.Context, on bool) error
}

// Report describes one completed tick.
type Report struct {
	Previous State
	State    State
	Decision Decision
	Active   bool
	Session  string // Activity session the transition belongs to, empty while idle
	Device   string
}

// Message returns the status line for the tick, empty on no-op ticks.
func (r Report) Message() string {
	return r.Decision.Outcome.Message(r.Device)
}

// Machine applies Next against live probes.
// It is not safe for concurrent use; the poll loop owns it.
type Machine struct {
	player      MediaPlayer
	lights      LightGroup
	callTimeout time.Duration
	newSession  func() string

	state   State
	session string
}

// NewMachine creates a machine in the idle state.
// callTimeout bounds every probe and actuator call (0 = unbounded).
func NewMachine(player MediaPlayer, lights LightGroup, callTimeout time.Duration) *Machine {
	return &Machine{
		player:      player,
		lights:      lights,
		callTimeout: callTimeout,
		newSession:  uuid.NewString,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Session returns the ID of the current activity session, empty while idle.
func (m *Machine) Session() string {
	return m.session
}

// Device returns the media player label.
func (m *Machine) Device() string {
	return m.player.Label()
}

// Tick runs one probe/decide/act cycle. On error the state is unchanged
// and the returned error is a *ProbeError.
func (m *Machine) Tick(ctx context.Context) (Report, error) {
	report := Report{
		Previous: m.state,
		State:    m.state,
		Session:  m.session,
		Device:   m.player.Label(),
	}

	active, err := m.isActive(ctx)
	if err != nil {
		return report, &ProbeError{Source: SourceMediaPlayer, Op: "is_active", Err: err}
	}
	report.Active = active

	var lightsOn bool
	if NeedsLightProbe(m.state, active) {
		lightsOn, err = m.isOn(ctx)
		if err != nil {
			return report, &ProbeError{Source: SourceLighting, Op: "is_on", Err: err}
		}
	}

	next, decision := Next(m.state, active, lightsOn)

	switch decision.Command {
	case CommandTurnOff:
		err = m.setOn(ctx, false)
	case CommandTurnOn:
		err = m.setOn(ctx, true)
	}
	if err != nil {
		return report, &ProbeError{Source: SourceLighting, Op: "set_on", Err: err}
	}

	// Commit only after every call went through
	session := m.session
	switch {
	case !m.state.InUse && next.InUse:
		session = m.newSession()
		m.session = session
	case m.state.InUse && !next.InUse:
		m.session = ""
	}

	if decision.Changed() {
		log.Debug().
			Str("from", m.state.Phase().String()).
			Str("to", next.Phase().String()).
			Str("command", decision.Command.String()).
			Str("session", session).
			Msg("Activity transition")
	}

	m.state = next
	report.State = next
	report.Decision = decision
	report.Session = session
	return report, nil
}

func (m *Machine) isActive(ctx context.Context) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.player.IsActive(ctx)
}

func (m *Machine) isOn(ctx context.Context) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.lights.IsOn(ctx)
}

func (m *Machine) setOn(ctx context.Context, on bool) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.lights.SetOn(ctx, on)
}

func (m *Machine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.callTimeout)
}
