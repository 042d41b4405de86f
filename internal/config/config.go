package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration, loaded from YAML with
// environment overrides (BLOCKFALL_ prefix, underscores for nesting).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	AI       AIConfig       `mapstructure:"ai"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig covers the websocket listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig covers optional match persistence. With Enabled false
// the server runs without a database and finished matches are not
// recorded.
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GameConfig tunes the simulation engines of every room.
type GameConfig struct {
	BoardWidth   int           `mapstructure:"board_width"`
	BoardHeight  int           `mapstructure:"board_height"`
	QueueSize    int           `mapstructure:"queue_size"`
	StarCapacity int           `mapstructure:"star_capacity"`
	BlackholeCap time.Duration `mapstructure:"blackhole_cap"`
	// CatalogPath overrides the embedded ability catalog. Empty keeps
	// the shipped table.
	CatalogPath string `mapstructure:"catalog_path"`
}

// AIConfig tunes the server-side opponent.
type AIConfig struct {
	DefaultPersona string        `mapstructure:"default_persona"`
	DecisionPeriod time.Duration `mapstructure:"decision_period"`
}

// ReplayConfig covers deterministic replay recording.
type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// Load reads the configuration file at path and applies environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("BLOCKFALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("game.board_width", 10)
	v.SetDefault("game.board_height", 20)
	v.SetDefault("game.queue_size", 5)
	v.SetDefault("game.star_capacity", 100)
	v.SetDefault("game.blackhole_cap", 2*time.Minute)
	v.SetDefault("game.catalog_path", "")

	v.SetDefault("ai.default_persona", "normal")
	v.SetDefault("ai.decision_period", 50*time.Millisecond)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")
}

func (c *Config) validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: must be debug, info, warn, or error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: must be json or console", c.Logging.Format)
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.enabled requires database.url")
	}

	if c.Game.BoardWidth < 4 || c.Game.BoardHeight < 8 {
		return fmt.Errorf("game board %dx%d too small", c.Game.BoardWidth, c.Game.BoardHeight)
	}
	if c.Game.QueueSize <= 0 {
		return fmt.Errorf("game.queue_size must be positive")
	}
	if c.Game.StarCapacity <= 0 {
		return fmt.Errorf("game.star_capacity must be positive")
	}

	if c.AI.DecisionPeriod <= 0 {
		return fmt.Errorf("ai.decision_period must be positive")
	}

	if c.Replay.Enabled && c.Replay.Directory == "" {
		return fmt.Errorf("replay.enabled requires replay.directory")
	}
	return nil
}
