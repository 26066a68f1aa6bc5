package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/zhouzirui/travel-assistant/backend/internal/config"
	"github.com/zhouzirui/travel-assistant/backend/internal/handler"
	"github.com/zhouzirui/travel-assistant/backend/internal/logging"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
)

func main() {
	if err := run(); err != nil {
		zlog.Fatal().Err(err).Msg("travel assistant backend stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(cfg.Server.Env, cfg.Server.LogLevel)
	zlog.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	settingsStore, closeStore := newSettingsStore(ctx, cfg.Settings, logger)
	defer closeStore()

	defaults, err := settings.LoadDefaults(cfg.Settings.File, settings.AppConfig{
		APIURL:           cfg.Upstream.BaseURL,
		APIKey:           cfg.Upstream.APIKey,
		EnableUploadFile: cfg.Settings.EnableUploadFile,
		EnableSelectMode: cfg.Settings.EnableSelectMode,
	})
	if err != nil {
		return fmt.Errorf("load settings defaults: %w", err)
	}
	if cfg.Settings.File != "" {
		go func() {
			if err := defaults.Watch(ctx, logging.Component(logger, "settings")); err != nil {
				logger.Warn().Err(err).Msg("settings file watcher stopped")
			}
		}()
	}

	profiles := profile.NewMemoryStore(profile.Seed())
	settingsSvc := settings.NewService(settingsStore, defaults, settings.WithAllowedHosts(allowedHosts(cfg)...))
	chatSvc := chat.NewService()
	hub := events.NewHub(logging.Component(logger, "hub"))

	factory := assistant.NewTransportFactory(cfg.Upstream, cfg.AI, &http.Client{}, logging.Component(logger, "ark"))
	assistantSvc := assistant.NewService(chatSvc, profiles, settingsSvc, hub, factory, assistant.Options{
		AppName:     cfg.Upstream.AppName,
		UserID:      cfg.Upstream.UserID,
		StopTimeout: cfg.Upstream.StopTimeout,
	}, logging.Component(logger, "assistant"))
	defer assistantSvc.Close()

	logger.Info().
		Str("transport", cfg.Upstream.Transport).
		Str("upstream", cfg.Upstream.BaseURL).
		Bool("upload", cfg.Settings.EnableUploadFile).
		Bool("select_mode", cfg.Settings.EnableSelectMode).
		Msg("assistant configured")

	router := handler.NewRouter(logging.Component(logger, "http"), cfg.Server.AllowedOrigins, handler.Services{
		Profiles:  profiles,
		Settings:  settingsSvc,
		Chat:      chatSvc,
		Assistant: assistantSvc,
		Hub:       hub,
	})

	// streams and relays end before the server waits for connections to drain
	srv := newServer(cfg.Server.Addr, router, assistantSvc.Close, hub.Close)
	return startServer(ctx, srv, logger)
}

// newSettingsStore uses Redis when REDIS_URL is set and reachable, memory otherwise.
func newSettingsStore(ctx context.Context, cfg config.SettingsConfig, logger zerolog.Logger) (settings.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("settings kept in memory")
		return settings.NewMemoryStore(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := settings.NewRedisStore(connectCtx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, settings kept in memory")
		return settings.NewMemoryStore(), func() {}
	}
	logger.Info().Msg("settings stored in redis")
	return store, func() { _ = store.Close() }
}

func newServer(addr string, handler http.Handler, onShutdown ...func()) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}
	return srv
}

func startServer(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	logger.Info().Str("addr", ln.Addr().String()).Msg("travel assistant backend listening")
	if err := runServer(ctx, srv, ln); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// allowedHosts is SETTINGS_ALLOWED_HOSTS plus the host of the configured upstream.
func allowedHosts(cfg *config.Config) []string {
	hosts := append([]string(nil), cfg.Settings.AllowedHosts...)
	if u, err := url.Parse(cfg.Upstream.BaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}
