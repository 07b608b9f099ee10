package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modserve/modserve/pkg/config"
	"github.com/modserve/modserve/pkg/logging"
	"github.com/modserve/modserve/pkg/modules"
	"github.com/modserve/modserve/pkg/server"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

type serveFlags struct {
	configFile     string
	addr           string
	maxConnections int
	logLevel       string
	logFormat      string
}

var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server (foreground)",
	Long: `Start the server with the module set described by the configuration
file. Flags override the corresponding file settings. Without a
configuration file the server runs the built-in HTTP/1.1 parser with an
empty handler pipeline.`,
	Example: `  # Start with defaults (every request misses)
  modserve serve

  # Start from a configuration file
  modserve serve --config server.yaml

  # Override the listen address
  modserve serve --config server.yaml --addr :3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(&serveFlagVals)
	},
}

func initServeCmd() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	serveCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to server configuration file")
	serveCmd.Flags().StringVar(&f.addr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().IntVar(&f.maxConnections, "max-connections", 0, "Maximum concurrent connections (0 = unlimited)")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Operational log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Operational log format (text, json)")
}

func runServe(f *serveFlags) error {
	cfg, err := loadConfiguration(f.configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, f)

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
	})

	reg, err := modules.Assemble(cfg)
	if err != nil {
		return err
	}

	srv := server.New(reg,
		server.WithLogger(log),
		server.WithAddr(cfg.Addr),
		server.WithMaxConnections(cfg.MaxConnections),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server",
		"addr", cfg.Addr,
		"handlers", len(reg.Handlers()),
		"sniffers", len(reg.Sniffers()),
		"version", Version,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
		<-errCh
	}

	log.Info("server stopped")
	return nil
}

func loadConfiguration(path string) (*config.ServerConfiguration, error) {
	if path == "" {
		return config.DefaultServerConfiguration(), nil
	}
	return config.LoadFromFile(path)
}

func applyFlagOverrides(cfg *config.ServerConfiguration, f *serveFlags) {
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.maxConnections > 0 {
		cfg.MaxConnections = f.maxConnections
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
}
