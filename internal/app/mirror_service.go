package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/config"
	"github.com/dokzlo13/trulight/internal/eventbus"
	"github.com/dokzlo13/trulight/internal/mirror"
)

// MirrorService publishes panel state to MQTT when enabled.
type MirrorService struct {
	cfg    *config.Config
	bus    *eventbus.Bus
	mirror *mirror.Mirror
}

// NewMirrorService creates a new MirrorService.
func NewMirrorService(cfg *config.Config, bus *eventbus.Bus) *MirrorService {
	s := &MirrorService{cfg: cfg, bus: bus}
	if cfg.MQTT.Enabled {
		s.mirror = mirror.New(cfg.MQTT)
	}
	return s
}

// Start connects in the background. A broker that is down is retried by the
// client; the panel keeps working without it.
func (s *MirrorService) Start(ctx context.Context) {
	if s.mirror == nil {
		log.Debug().Msg("MQTT mirror disabled")
		return
	}

	s.mirror.Attach(s.bus)
	go func() {
		if err := s.mirror.Connect(); err != nil {
			log.Error().Err(err).Str("broker", s.cfg.MQTT.Broker).Msg("MQTT mirror unavailable")
		}
	}()
}

// Stop announces offline and disconnects.
func (s *MirrorService) Stop() {
	if s.mirror != nil {
		s.mirror.Disconnect()
	}
}
