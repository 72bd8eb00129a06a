package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/activity"
	"github.com/dokzlo13/castlightd/internal/config"
	"github.com/dokzlo13/castlightd/internal/eventbus"
	"github.com/dokzlo13/castlightd/internal/poll"
	"github.com/dokzlo13/castlightd/internal/sink"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Bus *eventbus.Bus

	// Collaborators of the control loop
	Hue  *HueService
	Cast *CastService

	// Optional subscribers, nil when disabled
	Ledger *LedgerService
	MQTT   *MQTTService

	Health *HealthService

	// Set in Start once the receiver is known
	Loop     *poll.Loop
	loopDone chan struct{}
}

// NewServices creates all services with proper dependency injection.
// Nothing here touches the network.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	var err error
	s.Hue, err = NewHueService(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Cast = NewCastService(cfg)

	if cfg.Ledger.Enabled {
		s.Ledger, err = NewLedgerService(cfg, s.Bus)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	if cfg.MQTT.Enabled {
		s.MQTT = NewMQTTService(cfg, s.Bus)
	}

	s.Health = NewHealthService(cfg, s)

	return s, nil
}

// Start validates the collaborators and starts the control loop.
// The onFatalError callback is called if the loop exits with an error.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Hue.Start(ctx); err != nil {
		return err
	}
	if err := s.Cast.Start(ctx); err != nil {
		return err
	}

	if s.MQTT != nil {
		if err := s.MQTT.Start(); err != nil {
			return err
		}
	}
	if s.Ledger != nil {
		s.Ledger.StartBackground(ctx)
	}

	machine := activity.NewMachine(s.Cast.Player, s.Hue.Group, s.cfg.Cast.Timeout.Duration())
	s.Loop = poll.New(machine, poll.Options{
		Interval: s.cfg.Poll.Interval.Duration(),
		Sink: sink.Multi{
			sink.NewLogger(log.Logger),
			sink.NewBus(s.Bus, zerolog.InfoLevel),
		},
		Bus:   s.Bus,
		Group: s.Hue.Group.ID(),
	})

	s.loopDone = make(chan struct{})
	go func() {
		defer close(s.loopDone)
		if err := s.Loop.Run(ctx); err != nil && onFatalError != nil {
			onFatalError(err)
		}
	}()

	s.Health.Start(ctx)

	return nil
}

// Snapshot implements StatusProvider.
func (s *Services) Snapshot() poll.Snapshot {
	if s.Loop == nil {
		return poll.Snapshot{Phase: activity.PhaseIdle.String()}
	}
	return s.Loop.Snapshot()
}

// Stop waits for the loop to finish its tick, then releases everything.
func (s *Services) Stop() error {
	timeout := s.cfg.ShutdownTimeout.Duration()

	if s.loopDone != nil {
		select {
		case <-s.loopDone:
		case <-time.After(timeout):
			log.Warn().Dur("timeout", timeout).Msg("Poll loop did not stop in time")
		}
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Ledger != nil {
		s.Ledger.Close()
	}
	if s.Cast != nil {
		s.Cast.Close()
	}
}
