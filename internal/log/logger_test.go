// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigure_SetsServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "analyzer", Version: "1.2.3"})

	L().Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "analyzer" {
		t.Errorf("service = %v, want analyzer", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
}

func TestSetLevel_RejectsGarbage(t *testing.T) {
	Configure(Config{})
	if err := SetLevel("not-a-level"); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if err := SetLevel("warn"); err != nil {
		t.Fatalf("unexpected error for valid level: %v", err)
	}
}

func TestWithComponent_AddsField(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	WithComponent("queue").Info().Msg("tick")

	if !strings.Contains(buf.String(), `"component":"queue"`) {
		t.Errorf("expected component field in output, got %s", buf.String())
	}
}
