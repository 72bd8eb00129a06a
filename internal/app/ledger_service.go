package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/config"
	"github.com/dokzlo13/castlightd/internal/db"
	"github.com/dokzlo13/castlightd/internal/eventbus"
	"github.com/dokzlo13/castlightd/internal/ledger"
)

// LedgerService records transitions into SQLite and prunes old rows.
type LedgerService struct {
	cfg      *config.Config
	DB       *db.DB
	Ledger   *ledger.Ledger
	Recorder *ledger.Recorder
}

// NewLedgerService opens the database and subscribes the recorder to bus.
func NewLedgerService(cfg *config.Config, bus *eventbus.Bus) (*LedgerService, error) {
	database, err := db.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	l := ledger.New(database.DB)
	recorder := ledger.NewRecorder(l)
	recorder.Subscribe(bus)

	log.Info().Str("path", cfg.Ledger.Path).Int("retention_days", cfg.Ledger.RetentionDays).Msg("Transition ledger enabled")

	return &LedgerService{
		cfg:      cfg,
		DB:       database,
		Ledger:   l,
		Recorder: recorder,
	}, nil
}

// StartBackground runs retention cleanup until ctx is cancelled.
func (s *LedgerService) StartBackground(ctx context.Context) {
	go s.Recorder.RunCleanup(ctx, s.cfg.Ledger.Retention(), s.cfg.Ledger.CleanupInterval.Duration())
}

// Close closes the database.
func (s *LedgerService) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
