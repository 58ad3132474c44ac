package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticVerify/internal/config"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
)

func main() {
	if err := newServerCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	var (
		port           int
		configPath     string
		tempDir        string
		allowedOrigins string
	)

	cmd := &cobra.Command{
		Use:           "acousticverify-server",
		Short:         "HTTP API for registering and verifying recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if lvl, ok := logger.ParseLevel(cfg.Logging.Level); ok {
				logger.SetLevel(lvl)
			}

			opts := append(cfg.ServiceOptions(), acousticverify.WithLogger(logger.With("engine")))
			service, err := acousticverify.NewService(opts...)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer service.Close()

			server := NewServer(service, &ServerConfig{
				Port:           port,
				TempDir:        tempDir,
				SampleRate:     cfg.Features.SampleRate,
				StorageDriver:  cfg.Storage.Driver,
				StoragePath:    cfg.Storage.Path,
				AllowedOrigins: parseOrigins(allowedOrigins),
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path (env: ACOUSTIC_CONFIG)")
	cmd.Flags().StringVar(&tempDir, "temp", getEnvOrDefault("ACOUSTIC_TEMP_DIR", os.TempDir()), "Directory for uploaded audio")
	cmd.Flags().StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	return cmd
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "*" {
		return []string{"*"}
	}
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}
