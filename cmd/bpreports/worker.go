package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/handler"
)

func newWorkerCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume report requests from the stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if metricsAddr != "" {
				srv := observabilityServer(a, metricsAddr)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			return a.runConsumer(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address serving /metrics and /health; empty disables it")
	return cmd
}

func observabilityServer(a *app, addr string) *http.Server {
	h := handler.NewMetricsHandler(a.metrics, a.healthChecks())
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", h.Prometheus)
	r.GET("/health", h.Health)
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
