package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tensorbay/aegis/internal/config"
	"github.com/tensorbay/aegis/internal/metrics"
	"github.com/tensorbay/aegis/internal/scheduler"
)

var (
	serveConfigPath string
	metricsAddr     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admission-and-dispatch scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		logrus.SetLevel(parseLogLevel())

		cfg := config.Default()
		if serveConfigPath != "" {
			loaded, err := config.Load(serveConfigPath)
			if err != nil {
				logrus.Fatalf("loading config: %v", err)
			}
			cfg = loaded
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exporter := metrics.NewPrometheusExporter()
		s, err := scheduler.New(ctx, cfg, scheduler.WithPrometheus(exporter))
		if err != nil {
			logrus.Fatalf("starting scheduler: %v", err)
		}
		defer s.Stop()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(exporter.Registry(), promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.WithError(err).Error("metrics server stopped unexpectedly")
				}
			}()
			defer srv.Close()
			logrus.WithField("addr", metricsAddr).Info("metrics endpoint listening")
		}

		logrus.WithField("tenants", len(cfg.Tenants)).Info("scheduler started")

		<-ctx.Done()
		logrus.Info("shutdown signal received, draining dispatcher")
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a YAML scheduler configuration file")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve /metrics on (empty disables it)")
}
