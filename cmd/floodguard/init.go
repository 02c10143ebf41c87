package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/garrellmacarilay/floodguard-agent/internal/defaults"
)

// runInit initializes a FloodGuard working directory. It creates the
// data directory and writes the example config. Existing files are
// never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing FloodGuard workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "floodguard.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit floodguard.yaml to point at your relay and set GEMINI_API_KEY")
	fmt.Fprintln(w, "in the environment to enable the direct fallback channel.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
