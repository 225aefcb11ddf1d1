package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/jemiko1/crm-platform-sub005/internal/http"
	"github.com/jemiko1/crm-platform-sub005/internal/notify"
	"github.com/jemiko1/crm-platform-sub005/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	rt, err := bootstrap(ctx, bootstrapOptions{redis: true, mqtt: true})
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	notifications := notify.NewMulti(logger)
	telephony := notify.NewMulti(logger)
	if rt.redis != nil {
		notifications.Add(notify.NewStreamSink(rt.redis, cfg.Notify.Stream))
		telephony.Add(notify.NewStreamSink(rt.redis, cfg.Telephony.Stream))
	}
	if rt.mqtt != nil {
		notifications.Add(notify.NewMQTTSink(rt.mqtt))
		telephony.Add(notify.NewMQTTSink(rt.mqtt))
	}
	if cfg.Notify.WebhookURL != "" {
		notifications.Add(notify.NewWebhookSink(cfg.Notify.WebhookURL))
	}
	logger.Info("event sinks configured",
		zap.Strings("notifications", notifications.Sinks()),
		zap.Strings("telephony", telephony.Sinks()),
	)

	services := service.NewServices(rt.repos, service.Options{
		Cache:                 rt.kv,
		NotificationPublisher: notifications,
		TelephonyPublisher:    telephony,
		JWTSecret:             cfg.Auth.JWTSecret,
		TokenTTL:              cfg.Auth.TokenTTL,
	}, logger)

	// nothing survives a restart in memory mode, so the admin is recreated
	if rt.memory {
		res, err := services.Seed.Seed(ctx, service.SeedRequest{
			TenantID:      cfg.SystemTenantID,
			TenantName:    cfg.Seed.TenantName,
			AdminEmail:    cfg.Seed.AdminEmail,
			AdminPassword: cfg.Seed.AdminPassword,
		})
		if err != nil {
			return err
		}
		logger.Warn("running on in-memory storage, data is lost on exit",
			zap.String("tenant_id", cfg.SystemTenantID),
			zap.String("admin_email", cfg.Seed.AdminEmail),
			zap.Int("roles_created", res.RolesCreated),
		)
	}
	if cfg.Telephony.Secret == "" {
		logger.Warn("TELEPHONY_SECRET is empty, telephony ingestion is disabled")
	}

	deps := httpapi.DepsFrom(services, logger)
	deps.AuthConfig = cfg.Auth
	deps.TelephonySecret = cfg.Telephony.Secret
	deps.TelephonyTenantID = cfg.Telephony.TenantID

	server := service.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(deps), logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
