package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/eventbus"
)

// Recorder writes bus events into the ledger.
type Recorder struct {
	ledger *Ledger
}

// NewRecorder creates a recorder for l.
func NewRecorder(l *Ledger) *Recorder {
	return &Recorder{ledger: l}
}

// Subscribe registers the recorder for transition and probe_failed events.
func (r *Recorder) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeTransition, r.handle)
	bus.Subscribe(eventbus.EventTypeProbeFailed, r.handle)
}

func (r *Recorder) handle(e eventbus.Event) {
	entry := Entry{
		Timestamp: e.Time,
		SessionID: e.String("session"),
		Device:    e.String("device"),
		GroupID:   e.String("group"),
	}

	switch e.Type {
	case eventbus.EventTypeTransition:
		entry.EventType = EventTransition
		entry.Outcome = e.String("outcome")
		entry.Message = e.String("message")
	case eventbus.EventTypeProbeFailed:
		entry.EventType = EventProbeFailed
		entry.Error = e.String("error")
	default:
		return
	}

	if err := r.ledger.Append(entry); err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to append ledger entry")
	}
}

// RunCleanup deletes entries older than retention every interval until ctx
// is cancelled. One pass runs immediately.
func (r *Recorder) RunCleanup(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.cleanup(retention)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Recorder) cleanup(retention time.Duration) {
	n, err := r.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Ledger cleanup failed")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Dur("retention", retention).Msg("Ledger cleanup")
	}
}
