package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// settings is the persistent node configuration loaded from a YAML file.
// Command-line flags override it; it overrides built-in defaults.
//
// Example:
//
//	seed: 44
//	port: 8040
//	relay:
//	  host: p2pmidirelay.fly.dev
//	  port: 8040
//	  seed: 42
//	peer_book: ~/.p2pmidi/peers.json
//	metrics_addr: 127.0.0.1:9090
type settings struct {
	Seed *uint8 `yaml:"seed,omitempty"`
	Port uint16 `yaml:"port,omitempty"`
	IPv6 bool   `yaml:"ipv6,omitempty"`

	Relay struct {
		Host string `yaml:"host,omitempty"`
		Port uint16 `yaml:"port,omitempty"`
		Seed *uint8 `yaml:"seed,omitempty"`
	} `yaml:"relay,omitempty"`

	PeerBook    string `yaml:"peer_book,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// loadSettings reads the YAML settings file. A missing file is not an
// error when the path is the default location.
func loadSettings(path string, required bool) (*settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return &settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return &s, nil
}

// applyEnvOverrides applies environment variables on top of the settings
// file. Environment beats the file, flags beat both.
//
// Supported variables, all with the P2PMIDI_ prefix:
//   - P2PMIDI_SEED: identity seed (0-255)
//   - P2PMIDI_PORT: listen port
//   - P2PMIDI_RELAY: relay host, optionally host:port
//   - P2PMIDI_PEER_BOOK: peer book file path
func applyEnvOverrides(s *settings) {
	if v := os.Getenv("P2PMIDI_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			seed := uint8(n)
			s.Seed = &seed
		}
	}
	if v := os.Getenv("P2PMIDI_PORT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			s.Port = uint16(n)
		}
	}
	if v := os.Getenv("P2PMIDI_RELAY"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		s.Relay.Host = host
		if ok {
			if n, err := strconv.ParseUint(port, 10, 16); err == nil {
				s.Relay.Port = uint16(n)
			}
		}
	}
	if v := os.Getenv("P2PMIDI_PEER_BOOK"); v != "" {
		s.PeerBook = v
	}
}
