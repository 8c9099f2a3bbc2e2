package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cummap/config.yaml",
}

const (
	BackendMemory    = "memory"
	BackendRTDB      = "rtdb"
	BackendFirestore = "firestore"

	CapabilityAuto   = "auto"
	CapabilityNative = "native"
	CapabilityWeb    = "web"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Firebase FirebaseConfig `koanf:"firebase"`
	Store    StoreConfig    `koanf:"store"`
	Notify   NotifyConfig   `koanf:"notify"`
	Votes    VotesConfig    `koanf:"votes"`
	Resend   ResendConfig   `koanf:"resend"`
	Event    EventConfig    `koanf:"event"`
	History  HistoryConfig  `koanf:"history"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port        string   `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type FirebaseConfig struct {
	ProjectID       string `koanf:"project_id"`
	CredentialsJSON string `koanf:"credentials_json"`
	DatabaseURL     string `koanf:"database_url"`
}

type StoreConfig struct {
	// Backend is one of memory, rtdb or firestore.
	Backend string `koanf:"backend"`
	// PollInterval drives change detection for the rtdb backend.
	PollInterval time.Duration `koanf:"poll_interval"`
}

type NotifyConfig struct {
	// ServerSecret is the bearer token the relay endpoints expect.
	ServerSecret  string        `koanf:"server_secret"`
	Capability    string        `koanf:"capability"`
	DedupeWindow  time.Duration `koanf:"dedupe_window"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
}

type VotesConfig struct {
	Workers          int      `koanf:"workers"`
	ReportRecipients []string `koanf:"report_recipients"`
	ReportSender     string   `koanf:"report_sender"`
}

type ResendConfig struct {
	APIKey string `koanf:"api_key"`
}

type EventConfig struct {
	Timezone    string `koanf:"timezone"`
	CatalogPath string `koanf:"catalog_path"`
}

type HistoryConfig struct {
	Capacity int `koanf:"capacity"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Store: StoreConfig{
			Backend:      BackendRTDB,
			PollInterval: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Capability:    CapabilityAuto,
			DedupeWindow:  30 * time.Second,
			RatePerSecond: 5,
			Burst:         10,
		},
		Votes: VotesConfig{
			Workers:      8,
			ReportSender: "onboarding@resend.dev",
		},
		Event: EventConfig{
			Timezone: "Europe/Paris",
		},
		History: HistoryConfig{
			Capacity: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional YAML file and the environment, in that
// order of increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRTDB, BackendFirestore:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.Backend == BackendRTDB && c.Firebase.DatabaseURL == "" {
		return fmt.Errorf("%w: firebase.database_url is required for the rtdb backend", ErrInvalidConfig)
	}
	switch c.Notify.Capability {
	case CapabilityAuto, CapabilityNative, CapabilityWeb:
	default:
		return fmt.Errorf("%w: unknown notify capability %q", ErrInvalidConfig, c.Notify.Capability)
	}
	if c.Votes.Workers < 1 {
		return fmt.Errorf("%w: votes.workers must be positive", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Event.Timezone); err != nil {
		return fmt.Errorf("%w: event.timezone: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Location returns the event time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Event.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings keeps the variable names the deployment already uses.
var envMappings = map[string]string{
	"port":                      "server.port",
	"cors_hosts":                "server.cors_origins",
	"firebase_project_id":       "firebase.project_id",
	"firebase_credentials_json": "firebase.credentials_json",
	"firebase_database_url":     "firebase.database_url",
	"store_backend":             "store.backend",
	"store_poll_interval":       "store.poll_interval",
	"server_secret":             "notify.server_secret",
	"notify_capability":         "notify.capability",
	"notify_dedupe_window":      "notify.dedupe_window",
	"notify_rate_per_second":    "notify.rate_per_second",
	"notify_burst":              "notify.burst",
	"votes_workers":             "votes.workers",
	"votes_report_recipients":   "votes.report_recipients",
	"votes_report_sender":       "votes.report_sender",
	"resend_key":                "resend.api_key",
	"event_timezone":            "event.timezone",
	"event_catalog_path":        "event.catalog_path",
	"history_capacity":          "history.capacity",
	"log_level":                 "log.level",
	"log_development":           "log.development",
}

// envTransformFunc maps known variables onto config keys and drops the rest.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
