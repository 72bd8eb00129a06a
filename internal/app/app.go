package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/config"
)

// App ties the cast probe, the light group and the poll loop together.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New wires the services without touching the network.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Start checks the bridge, finds the receiver and starts polling.
// An error here means the daemon cannot run.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	err := a.services.Start(a.ctx, func(err error) {
		log.Error().Err(err).Msg("Poll loop failed, shutting down")
		a.cancel()
	})
	if err != nil {
		a.cancel()
		return err
	}

	log.Info().
		Str("device", a.services.Cast.Player.Device().String()).
		Str("group", a.services.Hue.Group.ID()).
		Dur("interval", a.cfg.Poll.Interval.Duration()).
		Bool("ledger", a.services.Ledger != nil).
		Bool("mqtt", a.services.MQTT != nil).
		Msg("castlightd running")
	return nil
}

// Wait blocks until a signal or a loop failure cancels the app.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// Stop lets the current tick finish, then drains the bus and closes
// connections. Lights are left as the last completed tick set them.
func (a *App) Stop() error {
	snap := a.services.Snapshot()
	log.Info().
		Str("phase", snap.Phase).
		Int64("ticks", snap.Ticks).
		Int64("failures", snap.Failures).
		Msg("Stopping castlightd")

	if a.cancel != nil {
		a.cancel()
	}
	return a.services.Stop()
}

// SignalContext returns a context cancelled by SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
