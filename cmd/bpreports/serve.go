package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/handler"
	"github.com/noah-isme/bp-reports-api/internal/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			embed := a.cfg.Reports.EmbedWorker
			if cmd.Flags().Changed("with-worker") {
				embed = withWorker
			}
			return serve(ctx, a, embed)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume the report stream in this process")
	return cmd
}

func serve(ctx context.Context, a *app, embedWorker bool) error {
	reportSvc := service.NewReportService(
		a.reports,
		a.orgs,
		a.publisher(),
		a.artifacts,
		service.NewValidator(),
		a.metrics,
		a.logger.Named("reports"),
	)
	authSvc := service.NewAuthService(a.logger, service.AuthConfig{
		Secret: a.cfg.JWT.Secret,
		Issuer: a.cfg.JWT.Issuer,
	})

	router := newRouter(routerDeps{
		cfg:     a.cfg,
		logger:  a.logger,
		metrics: a.metrics,
		auth:    authSvc,
		reports: handler.NewReportHandler(reportSvc),
		health:  handler.NewMetricsHandler(a.metrics, a.healthChecks()),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerDone := make(chan struct{})
	if embedWorker {
		go func() {
			defer close(consumerDone)
			if err := a.runConsumer(ctx); err != nil {
				errCh <- fmt.Errorf("report consumer: %w", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown failed", zap.Error(err))
	}
	if runErr == nil {
		<-consumerDone
	}
	return runErr
}
