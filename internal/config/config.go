package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

const (
	AppName   = "manifest_alert"
	EnvPrefix = "MANIFEST_ALERT"
)

type Config struct {
	Shared      SharedConfig
	Cache       CacheConfig
	Network     NetworkConfig
	Server      ServerConfig
	Maintenance MaintenanceConfig
	Misc        MiscConfig
}

type SharedConfig struct {
	// Path is the network folder shared by every workstation.
	Path string
	// LocalDir holds per-machine state; local backups live in LocalDir/backup.
	LocalDir string
}

// BackupDir is where the local copies of the shared documents are kept.
func (s SharedConfig) BackupDir() string {
	return filepath.Join(s.LocalDir, "backup")
}

type CacheConfig struct {
	NetworkTTL    time.Duration
	FastTTL       time.Duration
	SweepInterval time.Duration
}

type NetworkConfig struct {
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	CreateBackups bool
	BackupsToKeep int
	WatchEnabled  bool
	WatchDebounce time.Duration
}

type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins string
}

type MaintenanceConfig struct {
	Enabled          bool
	RunAt            string
	Poll             time.Duration
	AckRetentionDays int
	TZ               string
}

type MiscConfig struct {
	GinMode  string
	LogLevel string
}

// Location resolves the maintenance timezone.
func (m MaintenanceConfig) Location() (*time.Location, error) {
	if m.TZ == "" || m.TZ == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(m.TZ)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shared.path", "")
	v.SetDefault("shared.local_dir", "")

	v.SetDefault("cache.network_ttl", "30s")
	v.SetDefault("cache.fast_ttl", "5s")
	v.SetDefault("cache.sweep_interval", "60s")

	v.SetDefault("network.timeout", "1s")
	v.SetDefault("network.retries", 2)
	v.SetDefault("network.retry_delay", "100ms")
	v.SetDefault("network.create_backups", true)
	v.SetDefault("network.backups_to_keep", 10)
	v.SetDefault("network.watch_enabled", true)
	v.SetDefault("network.watch_debounce", "200ms")

	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.request_timeout", "3s")
	v.SetDefault("server.cors_allowed_origins", "")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.run_at", "02:00")
	v.SetDefault("maintenance.poll", "1m")
	v.SetDefault("maintenance.ack_retention_days", 30)
	v.SetDefault("maintenance.tz", "Local")

	v.SetDefault("misc.gin_mode", "release")
	v.SetDefault("misc.log_level", "info")
}

// LoadConfig reads config.yaml from confPath into the global viper instance.
// Environment variables like MANIFEST_ALERT_SHARED_PATH override shared.path.
func LoadConfig(confPath string) (*Config, error) {
	return Load(viper.GetViper(), confPath)
}

// Load reads the configuration into v and builds a validated Config.
func Load(v *viper.Viper, confPath string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if confPath != "" {
		v.AddConfigPath(confPath)
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Info("no config file found, using defaults and env vars")
	} else {
		logger.WithComponent("config").Debugf("using config file %s", v.ConfigFileUsed())
	}

	port, err := getEnvOrViperPort(v, "PORT", "server.port")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Shared: SharedConfig{
			Path:     v.GetString("shared.path"),
			LocalDir: v.GetString("shared.local_dir"),
		},
		Cache: CacheConfig{
			NetworkTTL:    v.GetDuration("cache.network_ttl"),
			FastTTL:       v.GetDuration("cache.fast_ttl"),
			SweepInterval: v.GetDuration("cache.sweep_interval"),
		},
		Network: NetworkConfig{
			Timeout:       v.GetDuration("network.timeout"),
			Retries:       v.GetInt("network.retries"),
			RetryDelay:    v.GetDuration("network.retry_delay"),
			CreateBackups: v.GetBool("network.create_backups"),
			BackupsToKeep: v.GetInt("network.backups_to_keep"),
			WatchEnabled:  v.GetBool("network.watch_enabled"),
			WatchDebounce: v.GetDuration("network.watch_debounce"),
		},
		Server: ServerConfig{
			Port:               port,
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    v.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     v.GetDuration("server.request_timeout"),
			CORSAllowedOrigins: v.GetString("server.cors_allowed_origins"),
		},
		Maintenance: MaintenanceConfig{
			Enabled:          v.GetBool("maintenance.enabled"),
			RunAt:            v.GetString("maintenance.run_at"),
			Poll:             v.GetDuration("maintenance.poll"),
			AckRetentionDays: v.GetInt("maintenance.ack_retention_days"),
			TZ:               v.GetString("maintenance.tz"),
		},
		Misc: MiscConfig{
			GinMode:  getEnvOrDefault("GIN_MODE", v.GetString("misc.gin_mode")),
			LogLevel: getEnvOrDefault("LOG_LEVEL", v.GetString("misc.log_level")),
		},
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths expands "~" and fills the per-user data dir when LocalDir is unset.
func (c *Config) resolvePaths() error {
	var err error
	if c.Shared.Path != "" {
		if c.Shared.Path, err = homedir.Expand(c.Shared.Path); err != nil {
			return fmt.Errorf("expand shared.path: %w", err)
		}
	}
	if c.Shared.LocalDir == "" {
		dir, err := defaultLocalDir()
		if err != nil {
			return err
		}
		c.Shared.LocalDir = dir
		return nil
	}
	if c.Shared.LocalDir, err = homedir.Expand(c.Shared.LocalDir); err != nil {
		return fmt.Errorf("expand shared.local_dir: %w", err)
	}
	return nil
}

func defaultLocalDir() (string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.DataDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("cannot find a user data directory: %w", err)
	}
	return dirs[0], nil
}

func (c *Config) validate() error {
	if c.Shared.Path == "" {
		return errors.New("shared.path cannot be empty")
	}
	if c.Shared.LocalDir == "" {
		return errors.New("shared.local_dir cannot be empty")
	}
	if c.Cache.NetworkTTL <= 0 || c.Cache.FastTTL <= 0 {
		return errors.New("cache TTLs must be > 0")
	}
	if c.Cache.SweepInterval <= 0 {
		return errors.New("cache.sweep_interval must be > 0")
	}
	if c.Network.Timeout <= 0 {
		return errors.New("network.timeout must be > 0")
	}
	if c.Network.Retries < 1 {
		return errors.New("network.retries must be >= 1")
	}
	if c.Network.RetryDelay < 0 {
		return errors.New("network.retry_delay must be >= 0")
	}
	if c.Network.BackupsToKeep < 0 {
		return errors.New("network.backups_to_keep must be >= 0")
	}
	if c.Network.WatchEnabled && c.Network.WatchDebounce <= 0 {
		return errors.New("network.watch_debounce must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutDownTimeout <= 0 {
		return errors.New("server timeouts must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be > 0")
	}
	if c.Maintenance.Enabled {
		if !repository.IsClock(c.Maintenance.RunAt) {
			return fmt.Errorf("maintenance.run_at must be HH:MM, got %q", c.Maintenance.RunAt)
		}
		if c.Maintenance.Poll <= 0 {
			return errors.New("maintenance.poll must be > 0")
		}
		if c.Maintenance.AckRetentionDays <= 0 {
			return errors.New("maintenance.ack_retention_days must be > 0")
		}
	}
	if _, err := c.Maintenance.Location(); err != nil {
		return fmt.Errorf("invalid maintenance.tz: %w", err)
	}
	return nil
}

// ConfigPath is the directory searched for config.yaml, overridable with
// MANIFEST_ALERT_CONFIG_PATH.
func ConfigPath() string {
	return getEnvOrDefault(EnvPrefix+"_CONFIG_PATH", "./config")
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrViperPort(v *viper.Viper, envKey, viperKey string) (int, error) {
	if s := os.Getenv(envKey); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", envKey, err)
		}
		return p, nil
	}
	return v.GetInt(viperKey), nil
}
