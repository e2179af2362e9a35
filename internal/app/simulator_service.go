package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/config"
	"github.com/dokzlo13/trulight/internal/simulator"
)

// SimulatorService wraps the built-in device simulator.
type SimulatorService struct {
	cfg    *config.Config
	Device *simulator.Device
	server *simulator.Server
}

// NewSimulatorService creates a new SimulatorService.
func NewSimulatorService(cfg *config.Config) *SimulatorService {
	device := simulator.NewDevice()
	return &SimulatorService{
		cfg:    cfg,
		Device: device,
		server: simulator.NewServer(cfg.Simulator.Addr(), device),
	}
}

// Start begins the simulator if enabled.
func (s *SimulatorService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.Simulator.Enabled {
		log.Debug().Msg("Device simulator disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(err)
		}
	}()
}
