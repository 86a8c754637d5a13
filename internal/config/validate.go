// SPDX-License-Identifier: MIT

package config

import "fmt"

// Validate checks that a resolved AppConfig is internally consistent
// before the rest of the application wires against it.
func Validate(cfg AppConfig) error {
	if cfg.MCPServer.Port <= 0 || cfg.MCPServer.Port > 65535 {
		return fmt.Errorf("mcp_server_port out of range: %d", cfg.MCPServer.Port)
	}
	if cfg.Tools.ExecutionTimeout <= 0 {
		return fmt.Errorf("tool_execution_timeout must be positive, got %s", cfg.Tools.ExecutionTimeout)
	}
	if cfg.Tools.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", cfg.Tools.RequestTimeout)
	}
	if cfg.Tools.MaxFramesPerVideo <= 0 {
		return fmt.Errorf("max_frames_per_video must be positive, got %d", cfg.Tools.MaxFramesPerVideo)
	}
	if cfg.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache_ttl_hours must be positive, got %d", cfg.Cache.TTLHours)
	}
	if cfg.Queue.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive, got %d", cfg.Queue.Workers)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unrecognized log_level: %q", cfg.LogLevel)
	}
	return nil
}
