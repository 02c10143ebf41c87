// Package config handles FloodGuard agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./floodguard.yaml, ~/.config/floodguard/floodguard.yaml,
// /etc/floodguard/floodguard.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"floodguard.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "floodguard", "floodguard.yaml"))
	}

	paths = append(paths, "/etc/floodguard/floodguard.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all FloodGuard agent configuration.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	Relay    RelayConfig  `yaml:"relay"`
	Gemini   GeminiConfig `yaml:"gemini"`
	Region   RegionConfig `yaml:"region"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// RelayConfig defines the server-mediated relay channel.
type RelayConfig struct {
	// URL is the relay base URL; the channel posts to {url}/api/ask-ai.
	URL string `yaml:"url"`
	// TimeoutSec bounds each relay request, probe included. A hanging
	// relay attempt would otherwise block fallback to the direct
	// channel. Default 15.
	TimeoutSec int `yaml:"timeout_sec"`
}

// GeminiConfig defines the direct provider channel.
type GeminiConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// RegionConfig defines the serviced municipality used for location
// fallback and shelter ranking.
type RegionConfig struct {
	Name string `yaml:"name"`
	// FallbackLat/FallbackLon is the reference point substituted when
	// the device position is unavailable or outside the serviced region.
	FallbackLat float64 `yaml:"fallback_lat"`
	FallbackLon float64 `yaml:"fallback_lon"`
	// MaxDistanceKm is the radius beyond which a real position is
	// treated as "outside the serviced region". Default 50.
	MaxDistanceKm float64 `yaml:"max_distance_km"`
	// RankLimit caps the number of shelters folded into prompts. Default 8.
	RankLimit int `yaml:"rank_limit"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables, so api_key: ${GEMINI_API_KEY} works.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration targeting the Apalit,
// Pampanga deployment.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Relay: RelayConfig{
			URL:        "http://localhost:8000",
			TimeoutSec: 15,
		},
		Gemini: GeminiConfig{
			Model:           "gemini-2.5-flash",
			Temperature:     0.4,
			MaxOutputTokens: 1024,
		},
		Region: RegionConfig{
			Name:          "Apalit, Pampanga",
			FallbackLat:   14.9495,
			FallbackLon:   120.7587,
			MaxDistanceKm: 50,
			RankLimit:     8,
		},
		DataDir: "data",
	}
}
