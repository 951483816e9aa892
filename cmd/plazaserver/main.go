// Package main provides the all-in-one plaza server. It wires together
// configuration, the world registry, the NPC scheduler, moderation, the
// broadcast router, and the websocket frontend.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/broadcast"
	"github.com/cory-johannsen/plaza/internal/config"
	"github.com/cory-johannsen/plaza/internal/frontend/ws"
	"github.com/cory-johannsen/plaza/internal/game/ai"
	"github.com/cory-johannsen/plaza/internal/game/moderation"
	"github.com/cory-johannsen/plaza/internal/game/npc"
	"github.com/cory-johannsen/plaza/internal/game/world"
	"github.com/cory-johannsen/plaza/internal/gameserver"
	"github.com/cory-johannsen/plaza/internal/observability"
	"github.com/cory-johannsen/plaza/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	rosterPath := flag.String("roster", "", "path to NPC roster YAML (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *rosterPath != "" {
		cfg.NPC.RosterPath = *rosterPath
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting plaza server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Float64("half_extent", cfg.World.HalfExtent),
	)

	// Load the NPC roster and spawn the cast
	roster, err := npc.LoadRoster(cfg.NPC.RosterPath)
	if err != nil {
		logger.Fatal("loading NPC roster", zap.Error(err))
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	npcs := npc.NewManager(roster, cfg.World.HalfExtent, cfg.NPC.SpeedMin, cfg.NPC.SpeedMax, rng)
	logger.Info("roster loaded",
		zap.String("path", cfg.NPC.RosterPath),
		zap.Int("npcs", npcs.Count()),
	)

	registry := world.NewRegistry(cfg.World.HalfExtent, world.State{
		Weather:  world.WeatherClear,
		GameTime: 12,
	})

	// The LLM provider backs both moderation and NPC replies; an empty
	// key runs with heuristics and canned lines only.
	var provider moderation.Provider
	var generator gameserver.Generator
	if cfg.Anthropic.APIKey != "" {
		client := ai.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, logger)
		provider = client
		generator = client
		logger.Info("anthropic provider enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		logger.Warn("no anthropic api key configured, moderation runs on local rules only")
	}

	pipeline, err := moderation.NewPipeline(moderation.Config{
		RateWindow:       cfg.Moderation.RateWindow,
		RateLimit:        cfg.Moderation.RateLimit,
		PIIPattern:       cfg.Moderation.PIIPattern,
		SexualPattern:    cfg.Moderation.SexualPattern,
		ProtectedPattern: cfg.Moderation.ProtectedPattern,
		PolitePattern:    cfg.Moderation.PolitePattern,
		PIIDelta:         cfg.Moderation.PIIDelta,
		SexualDelta:      cfg.Moderation.SexualDelta,
		FlaggedDelta:     cfg.Moderation.FlaggedDelta,
		AbuseDelta:       cfg.Moderation.AbuseDelta,
		PoliteDelta:      cfg.Moderation.PoliteDelta,
		ProviderTimeout:  cfg.Moderation.ProviderTimeout,
	}, provider, logger)
	if err != nil {
		logger.Fatal("building moderation pipeline", zap.Error(err))
	}

	// The router's overflow callback disconnects the slow session through
	// the hub, which is constructed right after; the closure late-binds.
	var hub *gameserver.Hub
	router := broadcast.NewRouter(cfg.Server.OutboxBuffer, logger, func(sessionID string) {
		hub.Disconnect(sessionID)
	})
	hub = gameserver.NewHub(gameserver.Config{MaxStep: cfg.World.MaxStep},
		registry, npcs, router, pipeline, generator, gameserver.NewBanList(), logger)

	scheduler := npc.NewScheduler(npc.SchedulerConfig{
		TickInterval:   cfg.NPC.TickInterval,
		DecisionMin:    cfg.NPC.DecisionMin,
		DecisionMax:    cfg.NPC.DecisionMax,
		ArrivalEpsilon: cfg.NPC.ArrivalEpsilon,
		ChatMin:        cfg.NPC.ChatMin,
		ChatMax:        cfg.NPC.ChatMax,
	}, npcs, cfg.World.HalfExtent, logger, hub.BroadcastNPCUpdate, hub.BroadcastNPCChat)

	ambient := gameserver.NewAmbient(gameserver.AmbientConfig{
		TimeTick:            cfg.World.TimeTick,
		HoursPerSecond:      cfg.World.HoursPerSecond,
		WeatherTick:         cfg.World.WeatherTick,
		WeatherChangeChance: cfg.World.WeatherChangeChance,
	}, registry, router, logger)

	acceptor := ws.NewAcceptor(cfg.Server, hub, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	simCtx, stopSim := context.WithCancel(context.Background())
	lifecycle.Add("simulation", &server.FuncService{
		StartFn: func() error {
			scheduler.Start(simCtx)
			ambient.Start(simCtx)
			<-simCtx.Done()
			return nil
		},
		StopFn: stopSim,
	})

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func() error {
			return acceptor.ListenAndServe()
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := acceptor.Stop(shutdownCtx); err != nil {
				logger.Warn("websocket shutdown", zap.Error(err))
			}
		},
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.Server.Addr()+cfg.Server.WSPath),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
