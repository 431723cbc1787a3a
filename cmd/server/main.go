package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/relaychat/internal/logging"
	"github.com/Tyrowin/relaychat/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	port := flag.String("port", "", "Listen port (overrides PORT)")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg)
	srv.Start()

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	slog.Info("relay started",
		"addr", srv.Config().Addr(),
		"allowed_origins", srv.Config().AllowedOrigins,
		"max_message_size", srv.Config().MaxMessageSize,
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	slog.Info("relay exited", "code", exitCode)
	os.Exit(exitCode)
}

// loadConfig layers defaults, the optional YAML file and the environment.
func loadConfig(path string) (server.Config, error) {
	cfg := server.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = server.LoadConfigFile(path, cfg)
		if err != nil {
			return cfg, err
		}
	}
	return server.ApplyEnv(cfg), nil
}
