package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/a7isss/hana-voice-saas/internal/audio"
	"github.com/a7isss/hana-voice-saas/internal/auth"
	"github.com/a7isss/hana-voice-saas/internal/config"
	"github.com/a7isss/hana-voice-saas/internal/gateway"
	"github.com/a7isss/hana-voice-saas/internal/observability"
	"github.com/a7isss/hana-voice-saas/internal/ratelimit"
	"github.com/a7isss/hana-voice-saas/internal/sessions"
	"github.com/a7isss/hana-voice-saas/internal/speech"
	"github.com/a7isss/hana-voice-saas/internal/survey"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)

	logger.Info("starting hana voice service",
		"version", version,
		"commit", commit,
		"config", configPath)

	tokens := auth.NewTokenService(auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		PeerSecret:    cfg.Auth.PeerSecret,
		ServiceSecret: cfg.Survey.ServiceSecret,
		TokenExpiry:   cfg.Auth.TokenExpiry,
	})

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		Enabled:           true,
	})

	registry := sessions.NewRegistry(cfg.Limits.MaxSessions, logger)
	registry.StartSweeper()
	defer registry.StopSweeper()

	transcoder, err := audio.NewTranscoder(audio.TranscoderConfig{
		FFmpegPath: cfg.Audio.FFmpegPath,
		Timeout:    cfg.Audio.TranscodeTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("resolve codec tool: %w", err)
	}

	engine := speech.NewHTTPEngine(speech.Config{
		BaseURL:           cfg.Speech.BaseURL,
		Timeout:           cfg.Speech.Timeout,
		DefaultConfidence: cfg.Speech.DefaultConfidence,
	}, logger)

	surveyEngine := survey.NewEngine(cfg.Speech.DefaultConfidence, logger)
	submitter := survey.NewSubmitter(survey.SubmitterConfig{
		BackendURL: cfg.Survey.BackendURL,
		TemplateID: cfg.Survey.TemplateID,
		HospitalID: cfg.Survey.HospitalID,
	}, tokens, logger)

	server := gateway.NewServer(cfg, gateway.Deps{
		Tokens:     tokens,
		Limiter:    limiter,
		Registry:   registry,
		Transcoder: transcoder,
		Speech:     engine,
		Survey:     surveyEngine,
		Submitter:  submitter,
		Metrics:    observability.NewMetrics(),
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}

	// Pick up limit changes without a restart; secrets and listen
	// addresses stay fixed until the process is replaced.
	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			limiter.SetLimit(next.Limits.RequestsPerMinute)
			registry.SetMaxSessions(next.Limits.MaxSessions)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	server.Stop(context.Background())
	return nil
}

func runToken(configPath, clientIP string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tokens := auth.NewTokenService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
	})

	token, err := tokens.Issue(uuid.New().String(), clientIP)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runStatus(ctx context.Context, addr, apiSecret string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	url := "http://" + addr + "/admin/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if apiSecret != "" {
		req.Header.Set("Authorization", "Bearer "+apiSecret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	out, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
