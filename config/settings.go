// File: config/settings.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Parsed transport settings. The engine itself accepts these as
// structured values; Load exists for embedders that keep transport
// settings in a TOML file.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML text values like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Settings are the transport-wide knobs.
type Settings struct {
	NodeName          string   `toml:"node_name"`
	ConnectTimeout    Duration `toml:"connect_timeout"`
	HandshakeTimeout  Duration `toml:"handshake_timeout"`
	PingInterval      Duration `toml:"ping_interval"`
	Compress          bool     `toml:"compress"`
	CompressResponses bool     `toml:"compress_responses"`

	// MaxInboundBytes is the inbound memory budget. One frame may claim
	// at most 90% of it.
	MaxInboundBytes int64 `toml:"max_inbound_bytes"`

	// Lanes configures the default connection profile: physical channel
	// counts per traffic class.
	Lanes Lanes `toml:"lanes"`
}

// Lanes are per-class channel counts for the default profile.
type Lanes struct {
	Regular  int `toml:"regular"`
	Bulk     int `toml:"bulk"`
	State    int `toml:"state"`
	Recovery int `toml:"recovery"`
	Ping     int `toml:"ping"`
}

// DefaultSettings mirrors the defaults the original system ships with:
// pings disabled, compression off, a 30s connect window and the classic
// 13/3/1 lane split.
func DefaultSettings() Settings {
	return Settings{
		NodeName:         "node",
		ConnectTimeout:   Duration{30 * time.Second},
		HandshakeTimeout: Duration{30 * time.Second},
		PingInterval:     Duration{-1},
		MaxInboundBytes:  256 << 20,
		Lanes: Lanes{
			Regular:  6,
			Bulk:     3,
			State:    1,
			Recovery: 2,
			Ping:     1,
		},
	}
}

// Load reads settings from a TOML file, applying defaults for absent
// keys.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings no transport can run with.
func (s Settings) Validate() error {
	if s.MaxInboundBytes <= 0 {
		return fmt.Errorf("config: max_inbound_bytes must be positive, got %d", s.MaxInboundBytes)
	}
	if s.Lanes.Regular <= 0 {
		return fmt.Errorf("config: lanes.regular must be positive, got %d", s.Lanes.Regular)
	}
	if s.ConnectTimeout.Duration <= 0 || s.HandshakeTimeout.Duration <= 0 {
		return fmt.Errorf("config: connect and handshake timeouts must be positive")
	}
	return nil
}
