package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/config"
	"github.com/dokzlo13/castlightd/internal/hue"
)

// HueService owns the light group backend.
type HueService struct {
	cfg   *config.Config
	Group hue.LightGroup
}

// NewHueService creates the configured backend without contacting the bridge.
func NewHueService(cfg *config.Config) (*HueService, error) {
	group, err := hue.New(hue.Options{
		Bridge:       cfg.Hue.Bridge,
		Token:        cfg.Hue.Token,
		Group:        cfg.Hue.Group,
		API:          cfg.Hue.API,
		Timeout:      cfg.Hue.Timeout.Duration(),
		RateLimitRPS: cfg.Hue.RateLimitRPS,
	})
	if err != nil {
		return nil, err
	}

	return &HueService{cfg: cfg, Group: group}, nil
}

// Start verifies the group exists. A missing group is fatal.
func (s *HueService) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Hue.Timeout.Duration())
	defer cancel()

	if err := s.Group.Check(ctx); err != nil {
		return fmt.Errorf("hue group check: %w", err)
	}
	log.Info().
		Str("bridge", s.cfg.Hue.Bridge).
		Str("group", s.Group.ID()).
		Str("api", s.cfg.Hue.API).
		Msg("Connected to Hue bridge")
	return nil
}
