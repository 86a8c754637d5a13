// SPDX-License-Identifier: MIT

// Package config provides environment-first configuration loading for the
// video analysis orchestrator: a Loader reads defaults, then an optional
// YAML file, then environment variables (highest precedence), tracking
// which environment keys were actually consumed for diagnostics.
package config
