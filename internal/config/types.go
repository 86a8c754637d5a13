// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// FileConfig is the optional YAML configuration structure. Every field
// mirrors an AppConfig field of the same concern; environment variables
// still take precedence over whatever a file sets.
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`
	LogDir   string `yaml:"logDir,omitempty"`

	MCPServer MCPServerConfig `yaml:"mcpServer,omitempty"`
	Tools     ToolsConfig     `yaml:"tools,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	HTTP      HTTPConfig      `yaml:"http,omitempty"`
	Queue     QueueConfig     `yaml:"queue,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
}

// MCPServerConfig addresses the external model/tool server that builtin
// tools (internal/tools.ModelClient) call over HTTP.
type MCPServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Addr returns the model server's dial address as host:port.
func (c MCPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToolsConfig tunes per-call timeouts and the frame-extraction tool's
// sampling policy.
type ToolsConfig struct {
	ExecutionTimeout        time.Duration `yaml:"executionTimeout,omitempty"`
	RequestTimeout          time.Duration `yaml:"requestTimeout,omitempty"`
	MaxFramesPerVideo       int           `yaml:"maxFramesPerVideo,omitempty"`
	FrameExtractionInterval time.Duration `yaml:"frameExtractionInterval,omitempty"`
}

// CacheConfig tunes the tiered cache (internal/cache): Redis is optional,
// its absence collapses L2 out of the tier chain.
type CacheConfig struct {
	RedisURL string        `yaml:"redisUrl,omitempty"`
	TTLHours int           `yaml:"ttlHours,omitempty"`
	L1Size   int           `yaml:"l1Size,omitempty"`
	L3TTL    time.Duration `yaml:"l3TTL,omitempty"`
}

// TTL converts the configured hour count into a time.Duration for
// cache.NewTiered.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// HTTPConfig tunes the chi-based HTTP surface (internal/httpapi).
type HTTPConfig struct {
	ListenAddr         string   `yaml:"listenAddr,omitempty"`
	AllowedOrigins     []string `yaml:"allowedOrigins,omitempty"`
	RateLimitEnabled   bool     `yaml:"rateLimitEnabled,omitempty"`
	RateLimitRPS       int      `yaml:"rateLimitRPS,omitempty"`
	RateLimitBurst     int      `yaml:"rateLimitBurst,omitempty"`
	RateLimitWhitelist []string `yaml:"rateLimitWhitelist,omitempty"`
	MetricsEnabled     bool     `yaml:"metricsEnabled,omitempty"`
}

// QueueConfig tunes the priority job queue (internal/queue).
type QueueConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// TracingConfig tunes OpenTelemetry export (internal/telemetry).
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// AppConfig holds the fully resolved configuration for one process.
// The Loader reads only the environment keys it knows, so unknown keys
// are ignored; they are not logged. Its ConsumedEnvKeys map records
// which keys were read.
type AppConfig struct {
	DataDir          string
	LogLevel         string
	LogDir           string
	LogRotationEnabled bool

	MCPServer MCPServerConfig
	Tools     ToolsConfig
	Cache     CacheConfig
	HTTP      HTTPConfig
	Queue     QueueConfig
	Tracing   TracingConfig

	Version string
}

// String implements fmt.Stringer with secrets (e.g. a credentialed Redis
// URL) masked, so AppConfig can be logged directly at startup.
func (c AppConfig) String() string {
	c.Cache.RedisURL = MaskURL(c.Cache.RedisURL)
	masked := MaskSecrets(c)
	return fmt.Sprintf("%+v", masked)
}
