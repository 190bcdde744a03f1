// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the chatdesk client.
// It loads the YAML configuration file, applies defaults and environment
// overrides, and gives structured access to the gateway endpoint, storage,
// streaming, session and export settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/traylinx/chatdesk/internal/util"
)

const (
	// DefaultBaseURL is the gateway API root used when none is configured.
	DefaultBaseURL = "http://localhost:8000/api"
	// DefaultRole is assigned when the profile response carries no roles.
	DefaultRole = "ROLE_DEFAULT"
	// DefaultCompleteEvent is the server-push event name that ends a stream.
	DefaultCompleteEvent = "complete"
	// DefaultTimeoutSeconds bounds every non-streaming request.
	DefaultTimeoutSeconds = 30
)

// Storage backends for the persistent store.
const (
	StorageBackendFile     = "file"
	StorageBackendSQLite   = "sqlite"
	StorageBackendPostgres = "postgres"
)

// Stream transports.
const (
	StreamTransportSSE       = "sse"
	StreamTransportWebSocket = "websocket"
)

// Export sinks.
const (
	ExportSinkFile = "file"
	ExportSinkS3   = "s3"
)

// Config represents the client configuration, loaded from a YAML file.
type Config struct {
	// BaseURL is the API root of the gateway, e.g. http://localhost:8000/api.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// TimeoutSeconds bounds non-streaming requests. Streams are not subject to it.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`

	// ProxyURL is an optional http, https or socks5 proxy for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// Headers are added to every outbound request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to a rotating file under the state directory.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxSizeMB bounds one log file before rotation.
	LogsMaxSizeMB int `yaml:"logs-max-size-mb" json:"logs-max-size-mb"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Stream  StreamConfig  `yaml:"stream" json:"stream"`
	Session SessionConfig `yaml:"session" json:"session"`
	Export  ExportConfig  `yaml:"export" json:"export"`
}

// StorageConfig selects and configures the persistent key/value store.
type StorageConfig struct {
	// Dir overrides the state directory (default ~/.chatdesk).
	Dir string `yaml:"dir" json:"dir"`

	// Backend is one of file, sqlite or postgres.
	Backend string `yaml:"backend" json:"backend"`

	// DSN is the database file (sqlite) or connection string (postgres).
	// For sqlite an empty DSN places chatdesk.db in the storage directory.
	DSN string `yaml:"dsn" json:"-"`

	// Encrypt seals the file backend with a key derived from Passphrase.
	Encrypt bool `yaml:"encrypt" json:"encrypt"`

	// Passphrase is normally supplied through CHATDESK_STORAGE_PASSPHRASE.
	Passphrase string `yaml:"passphrase,omitempty" json:"-"`
}

// StreamConfig controls the server-push channel used for streaming replies.
type StreamConfig struct {
	// Transport is sse or websocket.
	Transport string `yaml:"transport" json:"transport"`

	// Path of the streaming endpoint below BaseURL.
	Path string `yaml:"path" json:"path"`

	// CompleteEvent is the event name that terminates a stream.
	CompleteEvent string `yaml:"complete-event" json:"complete-event"`

	// CompleteTypes lists payload "type" values that also terminate a stream
	// after being delivered. Empty by default.
	CompleteTypes []string `yaml:"complete-types,omitempty" json:"complete-types,omitempty"`
}

// SessionConfig tunes the user session store.
type SessionConfig struct {
	DefaultRole   string `yaml:"default-role" json:"default-role"`
	DefaultAvatar string `yaml:"default-avatar" json:"default-avatar"`
	// WatchStorage mirrors token changes made by other processes into memory.
	WatchStorage bool `yaml:"watch-storage" json:"watch-storage"`
}

// ExportConfig selects where exported conversations are written.
type ExportConfig struct {
	Sink string   `yaml:"sink" json:"sink"`
	Dir  string   `yaml:"dir" json:"dir"`
	S3   S3Config `yaml:"s3" json:"s3"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
	AccessKey string `yaml:"access-key,omitempty" json:"-"`
	SecretKey string `yaml:"secret-key,omitempty" json:"-"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.BaseURL = DefaultBaseURL
	cfg.TimeoutSeconds = DefaultTimeoutSeconds
	cfg.LogsMaxSizeMB = 10
	cfg.Storage.Backend = StorageBackendFile
	cfg.Stream.Transport = StreamTransportSSE
	cfg.Stream.Path = "/chat/messages/stream"
	cfg.Stream.CompleteEvent = DefaultCompleteEvent
	cfg.Session.DefaultRole = DefaultRole
	cfg.Session.WatchStorage = true
	cfg.Export.Sink = ExportSinkFile
}

// LoadConfig reads a YAML configuration file from the given path, applies
// environment overrides and returns it.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, the defaults are returned.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		// defaults are already in place so absent keys keep them
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays CHATDESK_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v := GetEnv("CHATDESK_BASE_URL", ""); v != "" {
		cfg.BaseURL = v
	}
	if v := GetEnv(util.StateDirEnv, ""); v != "" {
		cfg.Storage.Dir = v
	}
	if v := GetEnv("CHATDESK_DEBUG", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := GetEnv("CHATDESK_STORAGE_PASSPHRASE", ""); v != "" {
		cfg.Storage.Passphrase = v
	}
	if v := GetEnv("CHATDESK_S3_ACCESS_KEY", ""); v != "" {
		cfg.Export.S3.AccessKey = v
	}
	if v := GetEnv("CHATDESK_S3_SECRET_KEY", ""); v != "" {
		cfg.Export.S3.SecretKey = v
	}
}

func (cfg *Config) normalize() {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TimeoutSeconds < 0 {
		cfg.TimeoutSeconds = 0
	}
	if cfg.LogsMaxSizeMB < 0 {
		cfg.LogsMaxSizeMB = 0
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendFile
	}
	cfg.Stream.Transport = strings.ToLower(strings.TrimSpace(cfg.Stream.Transport))
	if cfg.Stream.Transport == "" {
		cfg.Stream.Transport = StreamTransportSSE
	}
	if cfg.Stream.CompleteEvent == "" {
		cfg.Stream.CompleteEvent = DefaultCompleteEvent
	}
	if cfg.Session.DefaultRole == "" {
		cfg.Session.DefaultRole = DefaultRole
	}
	if cfg.Export.Sink == "" {
		cfg.Export.Sink = ExportSinkFile
	}
}

// Validate rejects unknown enumerations and incomplete sections.
func (cfg *Config) Validate() error {
	switch cfg.Storage.Backend {
	case StorageBackendFile, StorageBackendSQLite:
	case StorageBackendPostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage: postgres backend requires a dsn")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Encrypt && cfg.Storage.Passphrase == "" {
		return fmt.Errorf("storage: encryption enabled but no passphrase (set CHATDESK_STORAGE_PASSPHRASE)")
	}
	switch cfg.Stream.Transport {
	case StreamTransportSSE, StreamTransportWebSocket:
	default:
		return fmt.Errorf("stream: unknown transport %q", cfg.Stream.Transport)
	}
	switch cfg.Export.Sink {
	case ExportSinkFile:
	case ExportSinkS3:
		if cfg.Export.S3.Endpoint == "" || cfg.Export.S3.Bucket == "" {
			return fmt.Errorf("export: s3 sink requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("export: unknown sink %q", cfg.Export.Sink)
	}
	return nil
}

// SaveConfig writes cfg to configFile atomically.
// Secrets that came from the environment are not written back.
func SaveConfig(configFile string, cfg *Config) error {
	out := *cfg
	if _, ok := os.LookupEnv("CHATDESK_STORAGE_PASSPHRASE"); ok {
		out.Storage.Passphrase = ""
	}
	if _, ok := os.LookupEnv("CHATDESK_S3_ACCESS_KEY"); ok {
		out.Export.S3.AccessKey = ""
	}
	if _, ok := os.LookupEnv("CHATDESK_S3_SECRET_KEY"); ok {
		out.Export.S3.SecretKey = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return util.SecureWrite(nil, configFile, data, &util.SecureWriteOptions{CreateBackup: true})
}

// GetEnv returns the value of the environment variable named by the key,
// or fallback if the variable is not present.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
