package config

import (
	"path/filepath"
	"sync"
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	// 0 runs every accepted download right away
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

type LoggingConfig struct {
	Level             string `yaml:"level" mapstructure:"level"`
	LogPath           string `yaml:"log_path" mapstructure:"log_path"`
	EnableFileLogging bool   `yaml:"enable_file_logging" mapstructure:"enable_file_logging"`
}

type PathsConfig struct {
	DownloadPath      string `yaml:"download_path" mapstructure:"download_path"`
	DownloaderPath    string `yaml:"downloader_path" mapstructure:"downloader_path"`
	LocalDatabasePath string `yaml:"local_database_path" mapstructure:"local_database_path"`
	// run yt-dlp -U before serving
	UpdateDownloader bool `yaml:"update_downloader" mapstructure:"update_downloader"`
}

type DatabaseConfig struct {
	// SQLite file of the download history, DATABASE_URL in the environment
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type SessionConfig struct {
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	CookieName string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type RegistryConfig struct {
	Retention   time.Duration `yaml:"retention" mapstructure:"retention"`
	MaxFinished int           `yaml:"max_finished" mapstructure:"max_finished"`
}

var (
	instance     *Config
	instanceOnce sync.Once
)

func Instance() *Config {
	if instance == nil {
		instanceOnce.Do(func() {
			instance = &Config{}
			instance.Session.CookieName = "vidfetch_session"
			instance.Session.TTL = time.Hour * 24 * 30
			instance.Registry.Retention = time.Hour
			instance.Registry.MaxFinished = 1000
		})
	}
	return instance
}

// DatabaseDSN falls back to a file next to the local databases.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.Paths.LocalDatabasePath, "vidfetch.db")
}
