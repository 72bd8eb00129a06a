// Package sink receives status lines from the control loop. Presentation
// (log line, MQTT message) is the sink's concern, not the loop's.
package sink

import (
	"github.com/rs/zerolog"

	"github.com/dokzlo13/castlightd/internal/eventbus"
)

// Sink receives leveled status messages.
type Sink interface {
	Emit(level zerolog.Level, message string)
}

// Logger writes messages to a zerolog logger.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a sink that logs through l, tagged with component=status.
func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Str("component", "status").Logger()}
}

// Emit implements Sink.
func (s *Logger) Emit(level zerolog.Level, message string) {
	s.logger.WithLevel(level).Msg(message)
}

// Multi fans a message out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(level zerolog.Level, message string) {
	for _, s := range m {
		s.Emit(level, message)
	}
}

// Bus publishes messages as status events.
type Bus struct {
	bus      *eventbus.Bus
	minLevel zerolog.Level
}

// NewBus creates a sink publishing messages at or above minLevel to bus.
func NewBus(bus *eventbus.Bus, minLevel zerolog.Level) *Bus {
	return &Bus{bus: bus, minLevel: minLevel}
}

// Emit implements Sink.
func (s *Bus) Emit(level zerolog.Level, message string) {
	if level < s.minLevel {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeStatus,
		Data: map[string]any{
			"level":   level.String(),
			"message": message,
		},
	})
}
