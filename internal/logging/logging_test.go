/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWithOptionsLevels(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "WARN", zerolog.WarnLevel},
	}
	for _, tt := range tests {
		logger, closer, err := SetupWithOptions(tt.env, &bytes.Buffer{}, Options{Level: tt.level})
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.env, tt.level, err)
		}
		closer.Close()
		if logger.GetLevel() != tt.want {
			t.Fatalf("%s/%s: level %s, want %s", tt.env, tt.level, logger.GetLevel(), tt.want)
		}
	}
}

func TestSetupWithOptionsRejectsUnknownLevel(t *testing.T) {
	if _, _, err := SetupWithOptions("production", &bytes.Buffer{}, Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "backdrop.log")
	var out bytes.Buffer
	logger, closer, err := SetupWithOptions("production", &out, Options{File: path})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info().Str("theme", "forest").Msg("engine ready")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"theme":"forest"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
	if !strings.Contains(out.String(), "engine ready") {
		t.Fatalf("stdout writer missing entry: %s", out.String())
	}
}
