package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vidfetch/vidfetch/server"
	"github.com/vidfetch/vidfetch/server/config"

	"github.com/spf13/viper"
)

func main() {
	// Parse optional config path from flag
	var configFile string
	flag.StringVar(&configFile, "conf", "./config.yml", "Config file path")
	flag.Parse()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.queue_size", 0)
	v.SetDefault("paths.download_path", "")
	v.SetDefault("paths.downloader_path", "yt-dlp")
	v.SetDefault("paths.local_database_path", ".")
	v.SetDefault("paths.update_downloader", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_path", "vidfetch.log")
	v.SetDefault("logging.enable_file_logging", false)
	v.SetDefault("session.cookie_name", "vidfetch_session")
	v.SetDefault("session.ttl", "720h")
	v.SetDefault("registry.retention", "1h")
	v.SetDefault("registry.max_finished", 1000)

	// Env binding
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// externally supplied, unprefixed
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("session.secret", "SESSION_SECRET")

	// Load YAML file if exists
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("using defaults")
	} else {
		slog.Info("loaded config", "path", v.ConfigFileUsed())
	}

	cfg := config.Instance()
	if err := v.Unmarshal(cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"queue_size", cfg.Server.QueueSize,
	)

	if err := server.Run(ctx); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited cleanly")
}
