package app

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/config"
	"github.com/dokzlo13/trulight/internal/db"
	"github.com/dokzlo13/trulight/internal/eventbus"
	"github.com/dokzlo13/trulight/internal/ledger"
	"github.com/dokzlo13/trulight/internal/server"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Bus    *eventbus.Bus
	DB     *db.DB
	Ledger *ledger.Ledger

	// High-level services
	Panel     *PanelService
	Simulator *SimulatorService
	Mirror    *MirrorService
	Health    *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)

	// Dispatch ledger lives in memory only
	if cfg.Ledger.Enabled {
		database, err := db.OpenMemory()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	panelServer := server.New(server.Options{
		Addr:           cfg.Server.Addr(),
		WebDir:         cfg.Server.WebDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIURL:         cfg.API.URL,
		APIScheme:      cfg.API.Scheme,
		APIPort:        cfg.API.Port,
		PublicHost:     cfg.Server.PublicHost,
		HTTPClient:     &http.Client{Timeout: cfg.API.Timeout.Duration()},
		ThrottleWindow: cfg.Panel.ThrottleWindow.Duration(),
		CompactWidth:   cfg.Panel.CompactWidth,
		Bus:            s.Bus,
		Ledger:         s.Ledger,
		LedgerLimit:    cfg.Ledger.RecentLimit,
	})
	s.Panel = NewPanelService(cfg, panelServer, s.Ledger)
	s.Simulator = NewSimulatorService(cfg)
	s.Mirror = NewMirrorService(cfg, s.Bus)
	s.Health = NewHealthService(cfg, panelServer)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.cfg.API.URL != "" {
		log.Info().Str("api", s.cfg.API.URL).Msg("Using configured controller API")
	} else {
		log.Info().Int("port", s.cfg.API.Port).Str("api", s.Panel.APIBaseURL()).Msg("Controller API derived from the panel host")
	}

	// Simulator first so early health checks can reach it
	s.Simulator.Start(ctx, onFatalError)
	s.Mirror.Start(ctx)
	s.Panel.Start(ctx, onFatalError)
	s.Health.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Mirror != nil {
		s.Mirror.Stop()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
