package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/cast"
	"github.com/dokzlo13/castlightd/internal/config"
)

// CastService finds the receiver and owns its player session.
type CastService struct {
	cfg    *config.Config
	Player *cast.Player
}

// NewCastService creates the service. Discovery happens in Start.
func NewCastService(cfg *config.Config) *CastService {
	return &CastService{cfg: cfg}
}

// Start discovers the receiver and opens the session.
// No device found is fatal; a failed first connect is not, the poll loop
// reconnects on its next tick.
func (s *CastService) Start(ctx context.Context) error {
	device, err := cast.Discover(ctx, cast.DiscoveryOptions{
		Address: s.cfg.Cast.Address,
		Name:    s.cfg.Cast.Name,
		Timeout: s.cfg.Cast.DiscoveryTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("cast discovery: %w", err)
	}
	log.Info().Str("device", device.String()).Str("idle_app", s.cfg.Cast.IdleApp).Msg("Tracking cast device")

	s.Player = cast.NewPlayer(device, s.cfg.Cast.IdleApp)

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.Cast.Timeout.Duration())
	defer cancel()
	if err := s.Player.Connect(connectCtx); err != nil {
		log.Warn().Err(err).Str("device", device.Name).Msg("Initial cast connect failed, will retry on next tick")
	}
	return nil
}

// Close closes the receiver session.
func (s *CastService) Close() {
	if s.Player != nil {
		s.Player.Close()
	}
}
