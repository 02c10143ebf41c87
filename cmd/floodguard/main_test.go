package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoCommandPrintsUsage(t *testing.T) {
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: floodguard") {
		t.Errorf("usage not printed:\n%s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("got %v, want unknown command error", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("got %v, want unknown flag error", err)
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out.String()), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Error("version field missing")
	}
}

func TestRunVersionBadFormat(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"-o", "yaml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("got %v, want output format error", err)
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"ask"})
	if err == nil || !strings.Contains(err.Error(), "usage: floodguard ask") {
		t.Errorf("got %v, want usage error", err)
	}
}

func TestRunAskLatWithoutLon(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"ask", "-lat", "14.9", "hello"})
	if err == nil || !strings.Contains(err.Error(), "must be given together") {
		t.Errorf("got %v, want paired flag error", err)
	}
}

func TestRunInitCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, []string{"init", dir}); err != nil {
		t.Fatalf("run init: %v", err)
	}

	configPath := filepath.Join(dir, "floodguard.yaml")
	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(raw), "relay:") {
		t.Errorf("config missing relay section:\n%s", raw)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestRunInitDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "floodguard.yaml")
	if err := os.WriteFile(configPath, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut strings.Builder
	if err := run(context.Background(), &out, &errOut, []string{"init", dir}); err != nil {
		t.Fatalf("run init: %v", err)
	}

	raw, _ := os.ReadFile(configPath)
	if string(raw) != "custom: true\n" {
		t.Errorf("existing config overwritten: %q", raw)
	}
}

func TestRunExplicitConfigMissing(t *testing.T) {
	var out, errOut strings.Builder
	err := run(context.Background(), &out, &errOut, []string{"-config", "/nonexistent/floodguard.yaml", "history"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("got %v, want missing config error", err)
	}
}
