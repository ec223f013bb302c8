package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/adapters/sqlite/v1"
	"github.com/njit/courier/config"
	"github.com/njit/courier/core"
	"github.com/njit/courier/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var configDir string

var rootCmd = &cobra.Command{
	Use:   "courier-server",
	Short: "Receive messages and files from courier clients",
	Long: `Serves the courier line protocol on TCP, or on websocket when the
transport is set to "websocket". Uploads are written to the upload directory
and recorded in a SQLite database.

The configuration is read from config.json in $CONFIG_PATH or --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configDir, "config", "/etc/config", "Directory holding config.json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// load config
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Fatal("unable to load configuration", helpers.Error(err))
	}
	config.ApplyLogLevel(cfg.Server.LogLevel)
	if err := cfg.Server.ValidateConfig(); err != nil {
		logger.L().Fatal("invalid server configuration", helpers.Error(err))
	}

	// storage
	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		logger.L().Fatal("unable to create upload directory", helpers.Error(err), helpers.String("dir", cfg.Server.UploadDir))
	}
	store, err := sqlite.Open(ctx, cfg.Server.DbPath)
	if err != nil {
		logger.L().Fatal("unable to open database", helpers.Error(err), helpers.String("path", cfg.Server.DbPath))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.L().Error("error closing database", helpers.Error(err))
		}
	}()

	// enable prometheus metrics
	if cfg.Server.Prometheus != nil && cfg.Server.Prometheus.Enabled {
		go func() {
			logger.L().Info("prometheus metrics enabled", helpers.Int("port", cfg.Server.Prometheus.Port))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			_ = http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Prometheus.Port), mux)
		}()
	}

	// start pprof server
	utils.ServePprof()

	// start liveness probe
	utils.StartLivenessProbe()

	srv, err := core.NewServer(ctx, cfg.Server, store)
	if err != nil {
		logger.L().Fatal("unable to create server", helpers.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	hostname, _ := os.Hostname()
	logger.L().Info("starting courier server", helpers.String("port", addr), helpers.String("hostname", hostname),
		helpers.String("transport", cfg.Server.Transport), helpers.String("version", cfg.Server.Version.Current))

	serveErr := make(chan error, 1)
	var httpServer *http.Server
	switch cfg.Server.Transport {
	case config.TransportWebsocket:
		httpServer = &http.Server{Addr: addr, Handler: srv.WebsocketHandler()}
		go func() {
			serveErr <- httpServer.ListenAndServe()
		}()
	default:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			logger.L().Fatal("unable to listen", helpers.Error(err), helpers.String("address", addr))
		}
		go func() {
			serveErr <- srv.Serve(l)
		}()
	}

	select {
	case <-ctx.Done():
		logger.L().Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, core.ErrServerClosed) && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("server stopped unexpectedly", helpers.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.L().Warning("error shutting down http server", helpers.Error(err))
		}
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.L().Warning("error stopping server", helpers.Error(err))
		return err
	}
	return nil
}
