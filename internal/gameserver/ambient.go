package gameserver

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/broadcast"
	"github.com/cory-johannsen/plaza/internal/game/world"
	"github.com/cory-johannsen/plaza/internal/protocol"
)

// AmbientConfig tunes the world clock and weather timers.
type AmbientConfig struct {
	// TimeTick is the game clock broadcast period.
	TimeTick time.Duration
	// HoursPerSecond converts elapsed wall time to game hours.
	HoursPerSecond float64
	// WeatherTick is the weather transition consideration period.
	WeatherTick time.Duration
	// WeatherChangeChance is the transition probability per tick.
	WeatherChangeChance float64
}

// Ambient advances the shared world clock and weather on independent
// timers. Both timers derive elapsed time from the last fired timestamp,
// so delayed ticks do not accumulate drift.
type Ambient struct {
	cfg      AmbientConfig
	registry *world.Registry
	router   *broadcast.Router
	logger   *zap.Logger
}

// NewAmbient creates a stopped Ambient service.
//
// Precondition: cfg intervals must be > 0; registry, router, and logger
// must be non-nil.
func NewAmbient(cfg AmbientConfig, registry *world.Registry, router *broadcast.Router, logger *zap.Logger) *Ambient {
	if cfg.TimeTick <= 0 || cfg.WeatherTick <= 0 {
		panic("gameserver.NewAmbient: tick intervals must be > 0")
	}
	return &Ambient{cfg: cfg, registry: registry, router: router, logger: logger}
}

// Start launches the clock and weather loops; both run until ctx is
// cancelled.
func (a *Ambient) Start(ctx context.Context) {
	go a.runClock(ctx)
	go a.runWeather(ctx)
}

func (a *Ambient) runClock(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TimeTick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hours := now.Sub(last).Seconds() * a.cfg.HoursPerSecond
			last = now
			gameTime := a.registry.AdvanceGameTime(hours)
			a.router.Broadcast(protocol.Encode(protocol.TimeUpdate{
				Type:     protocol.TypeTimeUpdate,
				GameTime: gameTime,
			}))
		}
	}
}

func (a *Ambient) runWeather(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(a.cfg.WeatherTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rng.Float64() >= a.cfg.WeatherChangeChance {
				continue
			}
			state := a.transition(rng)
			a.logger.Debug("weather changed",
				zap.String("weather", string(state.Weather)),
				zap.Float64("intensity", state.Intensity),
			)
			a.router.Broadcast(protocol.Encode(protocol.WeatherUpdate{
				Type:      protocol.TypeWeatherUpdate,
				Weather:   string(state.Weather),
				Intensity: state.Intensity,
			}))
		}
	}
}

// transition picks a weather type different from the current one with a
// fresh random intensity.
func (a *Ambient) transition(rng *rand.Rand) world.State {
	current := a.registry.WorldState().Weather
	next := current
	for next == current {
		next = world.AllWeathers[rng.Intn(len(world.AllWeathers))]
	}
	return a.registry.SetWeather(next, rng.Float64())
}
