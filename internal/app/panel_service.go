package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/config"
	"github.com/dokzlo13/trulight/internal/ledger"
	"github.com/dokzlo13/trulight/internal/server"
)

// PanelService runs the WebSocket panel server and the ledger retention loop.
type PanelService struct {
	cfg    *config.Config
	server *server.Server
	ledger *ledger.Ledger
}

// NewPanelService creates a new PanelService.
func NewPanelService(cfg *config.Config, srv *server.Server, l *ledger.Ledger) *PanelService {
	return &PanelService{
		cfg:    cfg,
		server: srv,
		ledger: l,
	}
}

// Start runs the panel server in the background.
// A listen failure is fatal: without it there is no panel.
func (s *PanelService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(err)
		}
	}()

	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
}

// APIBaseURL returns the controller API address used by panel sessions.
func (s *PanelService) APIBaseURL() string {
	return s.server.APIBaseURL()
}

func (s *PanelService) runLedgerCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(s.cfg.Ledger.Retention.Duration())
			if err != nil {
				log.Warn().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if deleted > 0 {
				log.Debug().Int64("deleted", deleted).Msg("Ledger cleanup")
			}
		}
	}
}
