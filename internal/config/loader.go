// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/videoforge/insights/internal/log"
)

// Loader handles configuration loading with precedence: defaults, then an
// optional YAML file, then environment variables. It records every
// environment key it reads in ConsumedEnvKeys.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
	lookupEnvFn     envLookupFunc
}

// NewLoader creates a Loader reading from the real process environment.
func NewLoader(configPath, version string) *Loader {
	return NewLoaderWithEnv(configPath, version, os.LookupEnv)
}

// NewLoaderWithEnv creates a Loader with an injected environment lookup,
// for deterministic tests.
func NewLoaderWithEnv(configPath, version string, lookup envLookupFunc) *Loader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
		lookupEnvFn:     lookup,
	}
}

func (l *Loader) envLookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	return l.lookupEnvFn(key)
}

func (l *Loader) envString(key, defaultVal string) string {
	return parseStringWithLookup(log.WithComponent("config"), l.envLookup, key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return parseBoolWithLookup(log.WithComponent("config"), l.envLookup, key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return parseIntWithLookup(log.WithComponent("config"), l.envLookup, key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return parseDurationWithLookup(log.WithComponent("config"), l.envLookup, key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return parseFloatWithLookup(log.WithComponent("config"), l.envLookup, key, defaultVal)
}

func (l *Loader) envStringList(key string, defaultVal []string) []string {
	return parseStringListWithLookup(l.envLookup, key, defaultVal)
}

// defaults returns an AppConfig with every field set to its baseline
// value, before a file or the environment overrides anything.
func defaults() AppConfig {
	return AppConfig{
		DataDir:            "./data",
		LogLevel:           "info",
		LogDir:             "",
		LogRotationEnabled: false,
		MCPServer:          MCPServerConfig{Host: "localhost", Port: 9000},
		Tools: ToolsConfig{
			ExecutionTimeout:        600 * time.Second,
			RequestTimeout:          10 * time.Second,
			MaxFramesPerVideo:       100,
			FrameExtractionInterval: time.Second,
		},
		Cache: CacheConfig{
			TTLHours: 24,
			L1Size:   100,
			L3TTL:    time.Minute,
		},
		HTTP: HTTPConfig{
			ListenAddr:       ":8080",
			RateLimitEnabled: true,
			RateLimitRPS:     10,
			RateLimitBurst:   20,
			MetricsEnabled:   true,
		},
		Queue: QueueConfig{Workers: 2},
		Tracing: TracingConfig{
			ServiceName:  "videoinsights",
			SamplingRate: 0.1,
		},
	}
}

// Load resolves configuration with precedence ENV > File > Defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogDir != "" {
		cfg.LogDir = file.LogDir
	}
	if file.MCPServer.Host != "" {
		cfg.MCPServer.Host = file.MCPServer.Host
	}
	if file.MCPServer.Port != 0 {
		cfg.MCPServer.Port = file.MCPServer.Port
	}
	if file.Tools.ExecutionTimeout != 0 {
		cfg.Tools.ExecutionTimeout = file.Tools.ExecutionTimeout
	}
	if file.Tools.RequestTimeout != 0 {
		cfg.Tools.RequestTimeout = file.Tools.RequestTimeout
	}
	if file.Tools.MaxFramesPerVideo != 0 {
		cfg.Tools.MaxFramesPerVideo = file.Tools.MaxFramesPerVideo
	}
	if file.Tools.FrameExtractionInterval != 0 {
		cfg.Tools.FrameExtractionInterval = file.Tools.FrameExtractionInterval
	}
	if file.Cache.RedisURL != "" {
		cfg.Cache.RedisURL = file.Cache.RedisURL
	}
	if file.Cache.TTLHours != 0 {
		cfg.Cache.TTLHours = file.Cache.TTLHours
	}
	if file.Cache.L1Size != 0 {
		cfg.Cache.L1Size = file.Cache.L1Size
	}
	if file.Cache.L3TTL != 0 {
		cfg.Cache.L3TTL = file.Cache.L3TTL
	}
	if file.HTTP.ListenAddr != "" {
		cfg.HTTP.ListenAddr = file.HTTP.ListenAddr
	}
	if len(file.HTTP.AllowedOrigins) > 0 {
		cfg.HTTP.AllowedOrigins = file.HTTP.AllowedOrigins
	}
	if file.Queue.Workers != 0 {
		cfg.Queue.Workers = file.Queue.Workers
	}
	if file.Tracing.ServiceName != "" {
		cfg.Tracing.ServiceName = file.Tracing.ServiceName
	}
	if file.Tracing.Endpoint != "" {
		cfg.Tracing.Endpoint = file.Tracing.Endpoint
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogDir = l.envString("LOG_DIR", cfg.LogDir)
	cfg.LogRotationEnabled = l.envBool("LOG_ROTATION_ENABLED", cfg.LogRotationEnabled)

	cfg.MCPServer.Host = l.envString("MCP_SERVER_HOST", cfg.MCPServer.Host)
	cfg.MCPServer.Port = l.envInt("MCP_SERVER_PORT", cfg.MCPServer.Port)

	cfg.Tools.ExecutionTimeout = l.envDuration("TOOL_EXECUTION_TIMEOUT", cfg.Tools.ExecutionTimeout)
	cfg.Tools.RequestTimeout = l.envDuration("REQUEST_TIMEOUT", cfg.Tools.RequestTimeout)
	cfg.Tools.MaxFramesPerVideo = l.envInt("MAX_FRAMES_PER_VIDEO", cfg.Tools.MaxFramesPerVideo)
	cfg.Tools.FrameExtractionInterval = l.envDuration("FRAME_EXTRACTION_INTERVAL", cfg.Tools.FrameExtractionInterval)

	cfg.Cache.RedisURL = l.envString("REDIS_URL", cfg.Cache.RedisURL)
	cfg.Cache.TTLHours = l.envInt("CACHE_TTL_HOURS", cfg.Cache.TTLHours)
	cfg.Cache.L1Size = l.envInt("CACHE_L1_SIZE", cfg.Cache.L1Size)

	cfg.HTTP.ListenAddr = l.envString("API_LISTEN_ADDR", cfg.HTTP.ListenAddr)
	cfg.HTTP.AllowedOrigins = l.envStringList("ALLOWED_ORIGINS", cfg.HTTP.AllowedOrigins)
	cfg.HTTP.RateLimitEnabled = l.envBool("RATE_LIMIT_ENABLED", cfg.HTTP.RateLimitEnabled)
	cfg.HTTP.RateLimitRPS = l.envInt("RATE_LIMIT_RPS", cfg.HTTP.RateLimitRPS)
	cfg.HTTP.RateLimitBurst = l.envInt("RATE_LIMIT_BURST", cfg.HTTP.RateLimitBurst)
	cfg.HTTP.RateLimitWhitelist = l.envStringList("RATE_LIMIT_WHITELIST", cfg.HTTP.RateLimitWhitelist)
	cfg.HTTP.MetricsEnabled = l.envBool("METRICS_ENABLED", cfg.HTTP.MetricsEnabled)

	cfg.Queue.Workers = l.envInt("QUEUE_WORKERS", cfg.Queue.Workers)

	cfg.Tracing.Enabled = l.envBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = l.envString("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.Endpoint = l.envString("TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = l.envFloat("TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
}
