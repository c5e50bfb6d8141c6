package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/conversation"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/httpapi"
	"github.com/lexiqai/voice-calorie-tracker/internal/live"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/stt"
	"github.com/lexiqai/voice-calorie-tracker/internal/tts"
)

type healthChecker interface {
	Healthy(ctx context.Context) (bool, error)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("dialogue_provider", cfg.DialogueProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Calorie tracker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transcriber, transcriberHealth := newTranscriber(cfg)
	generator, generatorHealth, err := newGenerator(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dialogue client")
	}
	synthesizer := tts.NewCartesiaClient(cfg, nil)

	readiness := observability.NewReadiness(5*time.Second,
		observability.NamedCheck{Name: "transcription", Check: transcriberHealth.Healthy},
		observability.NamedCheck{Name: "dialogue", Check: generatorHealth.Healthy},
		observability.NamedCheck{Name: "synthesis", Check: synthesizer.Healthy},
		observability.NamedCheck{Name: "temp_dir", Check: tempDirCheck(cfg.TempDirectory())},
	)

	events := conversation.NewBroadcaster()
	controller := conversation.NewController(transcriber, generator, synthesizer, conversation.ControllerConfig{
		CallTimeout:          cfg.CallTimeout(),
		TempDir:              cfg.TempDirectory(),
		SilenceGateThreshold: cfg.SilenceGateThreshold,
		Observer:             events,
	})
	manager := conversation.NewManager(controller, events)

	router := httpapi.NewRouter(httpapi.Options{
		Conversation:      manager,
		Readiness:         readiness,
		MetricsEnabled:    cfg.MetricsEnabled,
		MaxRecordingBytes: cfg.MaxRecordingBytes,
		Live:              live.NewHandler(manager, cfg),
	})

	// The write timeout must outlast a turn's three remote calls
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      3*cfg.CallTimeout() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCHealthEnabled {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		grpcHealth = observability.NewGRPCHealth(readiness, 15*time.Second)
		go grpcHealth.Watch(ctx)
		go func() {
			logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health service listening")
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health service stopped")
			}
		}()
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("live_endpoint", fmt.Sprintf("ws://localhost:%s/api/live", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	manager.Reset()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, healthChecker) {
	switch cfg.TranscriptionProvider {
	case config.ProviderDeepgram:
		client := stt.NewDeepgramClient(cfg)
		return client, client
	default:
		client := stt.NewGroqClient(cfg, nil)
		return client, client
	}
}

func newGenerator(ctx context.Context, cfg *config.Config) (dialogue.Generator, healthChecker, error) {
	switch cfg.DialogueProvider {
	case config.ProviderArk:
		client, err := dialogue.NewArkClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		client := dialogue.NewGroqClient(cfg, nil)
		return client, client, nil
	}
}

// tempDirCheck verifies recordings can be written before transcription
func tempDirCheck(dir string) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		f, err := os.CreateTemp(dir, "ready-*")
		if err != nil {
			return false, err
		}
		name := f.Name()
		f.Close()
		if err := os.Remove(name); err != nil {
			return false, err
		}
		return true, nil
	}
}
