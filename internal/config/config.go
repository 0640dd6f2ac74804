package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auction        AuctionConfig        `yaml:"auction"`
	Broadcast      BroadcastConfig      `yaml:"broadcast"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Discord        DiscordConfig        `yaml:"discord"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins is passed to the CORS middleware; "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// AuctionConfig holds room defaults applied when a room is created
// without explicit values.
type AuctionConfig struct {
	MaxTeams        int   `yaml:"max_teams"`
	MinBidIncrement int64 `yaml:"min_bid_increment"`
	TimePerBidSec   int   `yaml:"time_per_bid_sec"`
	TeamBudget      int64 `yaml:"team_budget"`
	// RetireUnsold marks players that settle without a bid as inactive for
	// the room instead of leaving them re-auctionable.
	RetireUnsold bool `yaml:"retire_unsold"`
}

// BroadcastConfig selects how engine events reach room subscribers.
// The "websocket" driver fans out in process; "nats" additionally
// publishes every event to NATS so other instances' gateways can relay.
type BroadcastConfig struct {
	Driver        string `yaml:"driver"` // "websocket" or "nats"
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// DiscordConfig holds the optional results announcer. The announcer is
// disabled when Token is empty.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
		},
		Auction: AuctionConfig{
			MaxTeams:        8,
			MinBidIncrement: 50_000,
			TimePerBidSec:   30,
			TeamBudget:      10_000_000,
		},
		Broadcast: BroadcastConfig{
			Driver:        "websocket",
			SubjectPrefix: "auction.room",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays secret-bearing fields from the environment so they
// can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUCTIOND_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("AUCTIOND_DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("AUCTIOND_NATS_URL"); v != "" {
		c.Broadcast.NATSURL = v
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}

	switch c.Broadcast.Driver {
	case "websocket", "nats":
		// valid
	default:
		return fmt.Errorf("unsupported broadcast driver %q: must be \"websocket\" or \"nats\"", c.Broadcast.Driver)
	}
	if c.Broadcast.Driver == "nats" && c.Broadcast.NATSURL == "" {
		return fmt.Errorf("broadcast driver \"nats\" requires nats_url")
	}

	if c.Auction.MaxTeams < 2 || c.Auction.MaxTeams > 16 {
		return fmt.Errorf("auction max_teams %d out of range [2,16]", c.Auction.MaxTeams)
	}
	if c.Auction.TimePerBidSec < 10 || c.Auction.TimePerBidSec > 120 {
		return fmt.Errorf("auction time_per_bid_sec %d out of range [10,120]", c.Auction.TimePerBidSec)
	}
	if c.Auction.MinBidIncrement < 10_000 {
		return fmt.Errorf("auction min_bid_increment %d below minimum 10000", c.Auction.MinBidIncrement)
	}
	return nil
}
