// Package config loads the YAML configuration for the zone server and the
// events worker. A missing file yields defaults; environment variables
// override the connection-level settings so container deployments need no
// config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "TOWERWARS_CONFIG"

// ZoneServer holds all configuration for the zone server process.
type ZoneServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Observability
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // text, pretty
	MetricsAddr string `yaml:"metrics_addr"`

	// Shared infrastructure
	Redis RedisConfig `yaml:"redis"`

	// Bonus provider. When URL is empty the static in-process provider is
	// used, which suits local development without a progression service.
	AuthService AuthServiceConfig `yaml:"auth_service"`

	// Simulation
	Game GameConfig `yaml:"game"`

	// Event publishing
	Events EventsConfig `yaml:"events"`
}

// RedisConfig holds the shared Redis connection parameters. The same
// instance carries connection tokens and the event stream.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthServiceConfig points at the progression service for tower bonus
// lookups.
type AuthServiceConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupWorkers int           `yaml:"lookup_workers"`
}

// GameConfig tunes the simulation.
type GameConfig struct {
	TickRate         int           `yaml:"tick_rate"`
	VictoryWave      uint32        `yaml:"victory_wave"`
	PreparationDelay time.Duration `yaml:"preparation_delay"`
	PauseGrace       time.Duration `yaml:"pause_grace"` // paused-with-nobody window before force-end
	DropExpiry       time.Duration `yaml:"drop_expiry"`
}

// EventsConfig tunes the publisher.
type EventsConfig struct {
	Stream    string `yaml:"stream"`
	QueueSize int    `yaml:"queue_size"`
	MaxLen    int64  `yaml:"max_len"`
}

// EventsWorker holds all configuration for the events worker process.
type EventsWorker struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`

	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`

	Stream        string        `yaml:"stream"`
	BatchSize     int64         `yaml:"batch_size"`
	BlockTime     time.Duration `yaml:"block_time"`
	ClaimMinIdle  time.Duration `yaml:"claim_min_idle"`
	MaxDeliveries int64         `yaml:"max_deliveries"`
}

// DatabaseConfig holds PostgreSQL connection parameters. A non-empty URL
// takes precedence over the individual fields.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultZoneServer returns ZoneServer config with sensible defaults.
func DefaultZoneServer() ZoneServer {
	return ZoneServer{
		BindAddress: "0.0.0.0",
		Port:        7100,
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: ":8090",
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		AuthService: AuthServiceConfig{
			Timeout:       2 * time.Second,
			CacheTTL:      time.Hour,
			LookupWorkers: 8,
		},
		Game: GameConfig{
			TickRate:         20,
			VictoryWave:      30,
			PreparationDelay: 5 * time.Second,
			PauseGrace:       90 * time.Second,
			DropExpiry:       60 * time.Second,
		},
		Events: EventsConfig{
			Stream:    "stream:game-events",
			QueueSize: 4096,
			MaxLen:    100_000,
		},
	}
}

// DefaultEventsWorker returns EventsWorker config with sensible defaults.
func DefaultEventsWorker() EventsWorker {
	return EventsWorker{
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: ":8091",
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "towerwars",
			Password: "towerwars",
			DBName:   "towerwars",
			SSLMode:  "disable",
		},
		Stream:        "stream:game-events",
		BatchSize:     64,
		BlockTime:     5 * time.Second,
		ClaimMinIdle:  time.Minute,
		MaxDeliveries: 5,
	}
}

// LoadZoneServer loads zone server config from a YAML file.
// If the file doesn't exist, returns defaults. Environment overrides apply
// last: TOWERWARS_PORT, TOWERWARS_REDIS_ADDR, TOWERWARS_AUTH_URL.
func LoadZoneServer(path string) (ZoneServer, error) {
	cfg := DefaultZoneServer()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if v := os.Getenv("TOWERWARS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing TOWERWARS_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("TOWERWARS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TOWERWARS_AUTH_URL"); v != "" {
		cfg.AuthService.URL = v
	}
	return cfg, nil
}

// LoadEventsWorker loads events worker config from a YAML file.
// If the file doesn't exist, returns defaults. Environment overrides:
// TOWERWARS_REDIS_ADDR and TOWERWARS_POSTGRES_DSN, the latter replacing the
// whole database block.
func LoadEventsWorker(path string) (EventsWorker, error) {
	cfg := DefaultEventsWorker()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if v := os.Getenv("TOWERWARS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TOWERWARS_POSTGRES_DSN"); v != "" {
		cfg.Database.URL = v
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
