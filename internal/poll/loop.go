// Package poll drives the activity machine on a fixed interval.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/activity"
	"github.com/dokzlo13/castlightd/internal/eventbus"
	"github.com/dokzlo13/castlightd/internal/sink"
)

// Stepper runs one control cycle.
type Stepper interface {
	Tick(ctx context.Context) (activity.Report, error)
}

// Options configures a Loop.
type Options struct {
	Interval time.Duration
	Sink     sink.Sink
	Bus      *eventbus.Bus // optional
	Group    string        // light group id, attached to published events
}

// Snapshot is a point-in-time copy of the loop status.
type Snapshot struct {
	Phase                string    `json:"phase"`
	InUse                bool      `json:"in_use"`
	LightsWereAlreadyOff bool      `json:"lights_were_already_off"`
	Active               bool      `json:"active"`
	Session              string    `json:"session,omitempty"`
	Device               string    `json:"device,omitempty"`
	LastOutcome          string    `json:"last_outcome,omitempty"`
	LastTick             time.Time `json:"last_tick"`
	LastError            string    `json:"last_error,omitempty"`
	Ticks                int64     `json:"ticks"`
	Failures             int64     `json:"failures"`
	Ready                bool      `json:"ready"`
}

// Loop invokes the machine once per interval until cancelled.
type Loop struct {
	machine  Stepper
	interval time.Duration
	sink     sink.Sink
	bus      *eventbus.Bus
	group    string

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a poll loop.
func New(machine Stepper, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = sink.NewLogger(log.Logger)
	}

	return &Loop{
		machine:  machine,
		interval: opts.Interval,
		sink:     opts.Sink,
		bus:      opts.Bus,
		group:    opts.Group,
		snap:     Snapshot{Phase: activity.PhaseIdle.String()},
	}
}

// Run blocks until ctx is cancelled. Cancellation is observed between
// ticks only; a tick in progress always runs to completion.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Dur("interval", l.interval).Msg("Poll loop started")

	timer := time.NewTimer(l.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Poll loop stopping")
			return nil
		}

		// Probes are not interrupted by shutdown; their own timeouts bound them
		l.tick(context.WithoutCancel(ctx))

		if ctx.Err() != nil {
			log.Info().Msg("Poll loop stopping")
			return nil
		}

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			log.Info().Msg("Poll loop stopping")
			return nil
		case <-timer.C:
		}
	}
}

// Snapshot returns the current loop status.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *Loop) tick(ctx context.Context) {
	report, err := l.machine.Tick(ctx)
	now := time.Now()

	if err != nil {
		l.recordFailure(report, err, now)
		l.sink.Emit(zerolog.WarnLevel, fmt.Sprintf("Tick failed, keeping %s state: %v", report.State.Phase(), err))
		l.publish(eventbus.EventTypeProbeFailed, report, now, func(data map[string]any) {
			data["error"] = err.Error()
			var probeErr *activity.ProbeError
			if errors.As(err, &probeErr) {
				data["source"] = probeErr.Source
				data["op"] = probeErr.Op
				data["timeout"] = probeErr.Timeout()
			}
		})
		return
	}

	l.recordSuccess(report, now)

	if !report.Decision.Changed() {
		l.sink.Emit(zerolog.TraceLevel, fmt.Sprintf("No change, sleeping for %s", l.interval))
		return
	}

	l.sink.Emit(zerolog.InfoLevel, report.Message())
	l.publish(eventbus.EventTypeTransition, report, now, func(data map[string]any) {
		data["outcome"] = report.Decision.Outcome.String()
		data["command"] = report.Decision.Command.String()
		data["message"] = report.Message()
	})
}

func (l *Loop) recordSuccess(report activity.Report, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snap.Phase = report.State.Phase().String()
	l.snap.InUse = report.State.InUse
	l.snap.LightsWereAlreadyOff = report.State.LightsWereAlreadyOff
	l.snap.Active = report.Active
	l.snap.Session = ""
	if report.State.InUse {
		l.snap.Session = report.Session
	}
	l.snap.Device = report.Device
	if report.Decision.Changed() {
		l.snap.LastOutcome = report.Decision.Outcome.String()
	}
	l.snap.LastTick = now
	l.snap.LastError = ""
	l.snap.Ticks++
	l.snap.Ready = true
}

func (l *Loop) recordFailure(report activity.Report, err error, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snap.Device = report.Device
	l.snap.LastTick = now
	l.snap.LastError = err.Error()
	l.snap.Ticks++
	l.snap.Failures++
}

func (l *Loop) publish(t eventbus.EventType, report activity.Report, now time.Time, fill func(map[string]any)) {
	if l.bus == nil {
		return
	}

	data := map[string]any{
		"phase":   report.State.Phase().String(),
		"in_use":  report.State.InUse,
		"session": report.Session,
		"device":  report.Device,
		"group":   l.group,
	}
	fill(data)

	l.bus.Publish(eventbus.Event{Type: t, Time: now, Data: data})
}
