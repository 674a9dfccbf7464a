// Package config loads runtime settings for the forge pipeline from
// TOML files with environment overrides layered on top.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultOutputDir       = "generated_games"
	defaultServerAddr      = ":8001"
	defaultBridgeTool      = "node"
	defaultBridgeTimeout   = 5 * time.Minute
	defaultBridgeMaxTurns  = 10
	defaultChatBaseURL     = "https://api.openai.com/v1"
	defaultChatModel       = "gpt-4o"
	defaultChatTimeout     = 2 * time.Minute
	defaultLogLevel        = "info"
	defaultLogMaxSizeBytes = 10 * 1024 * 1024
	defaultLogMaxFiles     = 5
)

// Config stores runtime settings loaded from TOML files and the
// environment.
type Config struct {
	BackendOrder    []string
	OutputDir       string
	LogLevel        string
	LogMaxSizeBytes int64
	LogMaxFiles     int
	Bridge          BridgeConfig
	Chat            ChatConfig
	Server          ServerConfig
	Telemetry       TelemetryConfig
}

// BridgeConfig stores settings for the subprocess generation backend.
type BridgeConfig struct {
	Tool          string
	GeneratorPath string
	Timeout       time.Duration
	MaxTurns      int
}

// ChatConfig stores settings for the hosted chat-completion backend.
// The credential itself is read from the environment by the backend.
type ChatConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ServerConfig stores the HTTP API listener settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// TelemetryConfig stores trace export settings.
type TelemetryConfig struct {
	Enabled  bool
	Endpoint string
}

type fileConfig struct {
	BackendOrder []string         `toml:"backend_order"`
	OutputDir    *string          `toml:"output_dir"`
	LogLevel     *string          `toml:"log_level"`
	LogMaxSizeMB *int             `toml:"log_max_size_mb"`
	LogMaxFiles  *int             `toml:"log_max_files"`
	Bridge       *bridgeConfig    `toml:"bridge"`
	Chat         *chatConfig      `toml:"chat"`
	Server       *serverConfig    `toml:"server"`
	Telemetry    *telemetryConfig `toml:"telemetry"`
}

type bridgeConfig struct {
	Tool          *string `toml:"tool"`
	GeneratorPath *string `toml:"generator_path"`
	Timeout       *string `toml:"timeout"`
	MaxTurns      *int    `toml:"max_turns"`
}

type chatConfig struct {
	BaseURL *string `toml:"base_url"`
	Model   *string `toml:"model"`
	Timeout *string `toml:"timeout"`
}

type serverConfig struct {
	Addr           *string  `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type telemetryConfig struct {
	Enabled  *bool   `toml:"enabled"`
	Endpoint *string `toml:"endpoint"`
}

// Load reads config from ~/.forge/config.toml, overlays a project-local
// .forge/config.toml, then applies environment overrides.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".forge", "config.toml"),
		filepath.Join(workingDir, ".forge", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	overlayFromEnv(&cfg, os.LookupEnv)

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		BackendOrder:    []string{"bridge", "chat"},
		OutputDir:       defaultOutputDir,
		LogLevel:        defaultLogLevel,
		LogMaxSizeBytes: defaultLogMaxSizeBytes,
		LogMaxFiles:     defaultLogMaxFiles,
		Bridge: BridgeConfig{
			Tool:     defaultBridgeTool,
			Timeout:  defaultBridgeTimeout,
			MaxTurns: defaultBridgeMaxTurns,
		},
		Chat: ChatConfig{
			BaseURL: defaultChatBaseURL,
			Model:   defaultChatModel,
			Timeout: defaultChatTimeout,
		},
		Server: ServerConfig{
			Addr:           defaultServerAddr,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	applyTopLevelOverrides(cfg, decoded)
	if err := applyLogOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyBridgeOverrides(cfg, decoded.Bridge, path); err != nil {
		return err
	}
	if err := applyChatOverrides(cfg, decoded.Chat, path); err != nil {
		return err
	}
	applyServerOverrides(cfg, decoded.Server)
	applyTelemetryOverrides(cfg, decoded.Telemetry)

	return nil
}

// overlayFromEnv applies environment overrides with the lookup
// injected so tests never touch the real environment. Variable names
// follow the original service where one existed.
func overlayFromEnv(cfg *Config, lookup func(string) (string, bool)) {
	if value, ok := lookup("OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		cfg.OutputDir = strings.TrimSpace(value)
	}
	if value, ok := lookup("ALLOWED_ORIGINS"); ok && strings.TrimSpace(value) != "" {
		var origins []string
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			cfg.Server.AllowedOrigins = origins
		}
	}
	host, hasHost := lookup("API_HOST")
	port, hasPort := lookup("API_PORT")
	if hasHost || hasPort {
		currentHost, currentPort, err := net.SplitHostPort(cfg.Server.Addr)
		if err != nil {
			currentHost, currentPort = "", strings.TrimPrefix(cfg.Server.Addr, ":")
		}
		if hasHost && strings.TrimSpace(host) != "" {
			currentHost = strings.TrimSpace(host)
		}
		if hasPort && strings.TrimSpace(port) != "" {
			currentPort = strings.TrimSpace(port)
		}
		cfg.Server.Addr = net.JoinHostPort(currentHost, currentPort)
	}
	if value, ok := lookup("DEFAULT_MODEL"); ok && strings.TrimSpace(value) != "" {
		cfg.Chat.Model = strings.TrimSpace(value)
	}
	if value, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		cfg.Telemetry.Endpoint = strings.TrimSpace(value)
		cfg.Telemetry.Enabled = true
	}
}

func applyTopLevelOverrides(cfg *Config, decoded fileConfig) {
	if len(decoded.BackendOrder) > 0 {
		var order []string
		for _, name := range decoded.BackendOrder {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				order = append(order, strings.ToLower(trimmed))
			}
		}
		if len(order) > 0 {
			cfg.BackendOrder = order
		}
	}
	if decoded.OutputDir != nil && strings.TrimSpace(*decoded.OutputDir) != "" {
		cfg.OutputDir = strings.TrimSpace(*decoded.OutputDir)
	}
	if decoded.LogLevel != nil && strings.TrimSpace(*decoded.LogLevel) != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
	}
}

func applyLogOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.LogMaxSizeMB != nil {
		if *decoded.LogMaxSizeMB <= 0 {
			return fmt.Errorf("parse log_max_size_mb in %q: must be > 0", path)
		}
		cfg.LogMaxSizeBytes = int64(*decoded.LogMaxSizeMB) * 1024 * 1024
	}
	if decoded.LogMaxFiles != nil {
		if *decoded.LogMaxFiles <= 0 {
			return fmt.Errorf("parse log_max_files in %q: must be > 0", path)
		}
		cfg.LogMaxFiles = *decoded.LogMaxFiles
	}
	return nil
}

func applyBridgeOverrides(cfg *Config, decoded *bridgeConfig, path string) error {
	if decoded == nil {
		return nil
	}
	if decoded.Tool != nil && strings.TrimSpace(*decoded.Tool) != "" {
		cfg.Bridge.Tool = strings.TrimSpace(*decoded.Tool)
	}
	if decoded.GeneratorPath != nil {
		cfg.Bridge.GeneratorPath = strings.TrimSpace(*decoded.GeneratorPath)
	}
	if decoded.Timeout != nil {
		value, err := parseDuration(*decoded.Timeout, "bridge.timeout", path)
		if err != nil {
			return err
		}
		cfg.Bridge.Timeout = value
	}
	if decoded.MaxTurns != nil {
		if *decoded.MaxTurns <= 0 {
			return fmt.Errorf("parse bridge.max_turns in %q: must be > 0", path)
		}
		cfg.Bridge.MaxTurns = *decoded.MaxTurns
	}
	return nil
}

func applyChatOverrides(cfg *Config, decoded *chatConfig, path string) error {
	if decoded == nil {
		return nil
	}
	if decoded.BaseURL != nil && strings.TrimSpace(*decoded.BaseURL) != "" {
		cfg.Chat.BaseURL = strings.TrimSpace(*decoded.BaseURL)
	}
	if decoded.Model != nil && strings.TrimSpace(*decoded.Model) != "" {
		cfg.Chat.Model = strings.TrimSpace(*decoded.Model)
	}
	if decoded.Timeout != nil {
		value, err := parseDuration(*decoded.Timeout, "chat.timeout", path)
		if err != nil {
			return err
		}
		cfg.Chat.Timeout = value
	}
	return nil
}

func applyServerOverrides(cfg *Config, decoded *serverConfig) {
	if decoded == nil {
		return
	}
	if decoded.Addr != nil && strings.TrimSpace(*decoded.Addr) != "" {
		cfg.Server.Addr = strings.TrimSpace(*decoded.Addr)
	}
	if len(decoded.AllowedOrigins) > 0 {
		var origins []string
		for _, origin := range decoded.AllowedOrigins {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			cfg.Server.AllowedOrigins = origins
		}
	}
}

func applyTelemetryOverrides(cfg *Config, decoded *telemetryConfig) {
	if decoded == nil {
		return
	}
	if decoded.Enabled != nil {
		cfg.Telemetry.Enabled = *decoded.Enabled
	}
	if decoded.Endpoint != nil && strings.TrimSpace(*decoded.Endpoint) != "" {
		cfg.Telemetry.Endpoint = strings.TrimSpace(*decoded.Endpoint)
	}
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}
