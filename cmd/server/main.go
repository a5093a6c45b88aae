package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/bizcore/be-approvals/internal/client"
	"github.com/bizcore/be-approvals/internal/config"
	"github.com/bizcore/be-approvals/internal/database"
	"github.com/bizcore/be-approvals/internal/handler"
	"github.com/bizcore/be-approvals/internal/httpmw"
	"github.com/bizcore/be-approvals/internal/repository"
	"github.com/bizcore/be-approvals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Logger()

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting approvals service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// NATS is optional; without it the engine runs with notifications disabled.
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	instanceRepo := repository.NewInstanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	rulesRepo := repository.NewChainRulesRepository(db)

	var users service.UserDirectory
	if cfg.Identity.BaseURL != "" {
		users = client.NewHTTPUserDirectory(cfg.Identity.BaseURL, cfg.Identity.Timeout)
	}

	svc := service.NewApprovalService(
		instanceRepo,
		auditRepo,
		service.NewRuleChainResolver(rulesRepo),
		users,
		client.NewNotificationPublisher(natsConn, log),
		log,
	)

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	handler.NewHTTPHandler(svc, log).RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.Timeout(cfg.Server.RequestTimeout)(h)
	h = cors.AllowAll().Handler(h)
	h = httpmw.Recovery(log)(h)
	h = httpmw.Logger(log)(h)
	h = httpmw.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
