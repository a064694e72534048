// copilotd: in-car companion session daemon.
// Runs the live conversation with the cloud model, drives the robot body,
// and relays the session to mobile viewers over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/cabinworks/go-copilot/internal/config"
	"github.com/cabinworks/go-copilot/internal/log"
	"github.com/cabinworks/go-copilot/pkg/copilot"
	"github.com/cabinworks/go-copilot/pkg/gateway"
	"github.com/cabinworks/go-copilot/pkg/live"
	"github.com/cabinworks/go-copilot/pkg/places"
	"github.com/cabinworks/go-copilot/pkg/relay"
	"github.com/cabinworks/go-copilot/pkg/synth"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "Path to YAML config file")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Local .env is optional; real deployments use the environment.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel, cfg.Environment)
	logger := log.L()

	fmt.Println()
	fmt.Println("🚗 Copilot v" + version)
	fmt.Println("   In-car companion session daemon")
	fmt.Println()

	hub := relay.New(relay.Config{
		HistorySize: cfg.Viewer.HistorySize,
		QueueDepth:  cfg.Viewer.QueueDepth,
		Logger:      logger,
	})

	driver, err := live.NewDriver(live.Config{
		Dial: live.GeminiDialer(live.GeminiConfig{
			Endpoint:     cfg.Model.Endpoint,
			APIKey:       cfg.Model.APIKey,
			Model:        cfg.Model.Model,
			Instructions: cfg.Model.Instructions,
			Tools:        copilot.ToolDecls(),
			Logger:       logger,
		}),
		ConnectAttempts:   cfg.Model.ConnectAttempts,
		ReconnectAttempts: cfg.Model.ReconnectAttempts,
		BackoffBase:       cfg.Model.BackoffBase(),
		BackoffCap:        cfg.Model.BackoffCap(),
		Logger:            logger,
	})
	if err != nil {
		logger.Error("driver setup failed", "error", err)
		os.Exit(1)
	}

	gw := gateway.NewHTTP(cfg.Robot.Address, logger)
	if cfg.Robot.Volume > 0 {
		if err := gw.SetVolume(cfg.Robot.Volume); err != nil {
			logger.Warn("could not set robot volume", "error", err)
		}
	}

	app, err := copilot.New(copilot.Config{
		Hub:      hub,
		Driver:   driver,
		Synth:    buildSynth(&cfg, logger),
		Gateway:  gw,
		Resolver: buildResolver(&cfg, logger),
		Greeting: cfg.Greeting,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("session setup failed", "error", err)
		os.Exit(1)
	}

	// Viewer-facing HTTP server.
	srv := fiber.New(fiber.Config{
		AppName:               "copilotd",
		DisableStartupMessage: true,
	})
	srv.Use(recover.New())
	srv.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		srv.Use(fiberlogger.New())
	}

	hub.RegisterRoutes(srv)

	srv.Get("/api/health", func(c *fiber.Ctx) error {
		session := app.Session()
		return c.JSON(fiber.Map{
			"status":     "ok",
			"version":    version,
			"session_id": session.ID,
			"turns":      session.Turns,
			"floor":      session.Floor.String(),
			"viewers":    hub.ViewerCount(),
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Error("could not start session", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("viewer server listening",
			"addr", cfg.Viewer.Bind,
			"ws", fmt.Sprintf("ws://%s/ws/viewer", cfg.Viewer.Bind),
		)
		if err := srv.Listen(cfg.Viewer.Bind); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	app.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	logger.Info("goodbye")
}

// buildSynth assembles the speech backend chain from config, the configured
// primary first and the fallback second.
func buildSynth(cfg *config.Config, logger *slog.Logger) synth.Synthesizer {
	chain := synth.NewChain(logger)

	add := func(backend string) {
		switch backend {
		case "voicevox":
			v, err := synth.NewVoicevox(synth.VoicevoxConfig{
				URL:       cfg.Synth.Voicevox.URL,
				ModelName: cfg.Synth.Voicevox.ModelName,
				Logger:    logger,
			})
			if err != nil {
				logger.Warn("voicevox backend disabled", "error", err)
				return
			}
			chain.Add("voicevox", v, synth.Profile{
				Voice: strconv.Itoa(cfg.Synth.Voicevox.SpeakerID),
				Style: cfg.Synth.Voicevox.Style,
				Speed: cfg.Synth.Voicevox.Speed,
			})
		case "elevenlabs":
			e, err := synth.NewElevenLabs(synth.ElevenLabsConfig{
				APIKey: cfg.Synth.ElevenLabs.APIKey,
				Model:  cfg.Synth.ElevenLabs.Model,
				Logger: logger,
			})
			if err != nil {
				logger.Warn("elevenlabs backend disabled", "error", err)
				return
			}
			chain.Add("elevenlabs", e, synth.Profile{
				Voice: cfg.Synth.ElevenLabs.VoiceID,
			})
		}
	}

	add(cfg.Synth.Backend)
	if cfg.Synth.Fallback != "" && cfg.Synth.Fallback != cfg.Synth.Backend {
		add(cfg.Synth.Fallback)
	}
	return chain
}

// buildResolver picks the place resolver, the maps API when a key is
// configured and pass-through otherwise.
func buildResolver(cfg *config.Config, logger *slog.Logger) places.Resolver {
	if cfg.Places.APIKey == "" {
		return places.PassThrough{}
	}
	g, err := places.NewGoogle(places.GoogleConfig{
		APIKey:    cfg.Places.APIKey,
		Language:  cfg.Places.Language,
		Latitude:  cfg.Places.Latitude,
		Longitude: cfg.Places.Longitude,
		RadiusM:   cfg.Places.RadiusM,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("place search disabled", "error", err)
		return places.PassThrough{}
	}
	return g
}
