// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" ERROR ", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWritesFileLog(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   "debug",
		LogDir:  dir,
		Service: "scoping",
		Quiet:   true,
	})

	logger.Info("decision persisted", "run_id", "run1")
	logger.Debug("stage completed", "stage", "parse-asset")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log files, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "scoping_") || !strings.HasSuffix(entries[0].Name(), ".log") {
		t.Errorf("log file name = %q", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file log is not JSON: %v", err)
	}
	if entry["msg"] != "decision persisted" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "scoping" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["run_id"] != "run1" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
}

func TestLevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: "warn", LogDir: dir, Service: "scoping", Quiet: true})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Errorf("file log = %q, want only the warning", string(data))
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logger := &Logger{slog: base}

	child := logger.With("run_id", "run1")
	child.Info("stage completed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["run_id"] != "run1" {
		t.Errorf("run_id = %v, want run1 on child logger", entry["run_id"])
	}
}

func TestCloseWithoutFileIsNoop(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}
	logger := slog.New(h)
	logger.Info("hello")

	if a.Len() == 0 || b.Len() == 0 {
		t.Error("record did not reach every handler")
	}
}

func TestMultiHandlerEnabled(t *testing.T) {
	warnOnly := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := &multiHandler{handlers: []slog.Handler{warnOnly}}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = true with a warn-only handler")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(error) = false")
	}
}
