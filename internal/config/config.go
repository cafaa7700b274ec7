// Package config loads the server's structured TOML configuration
// into the typed surface the rest of the daemon consumes: listener
// address, server identity, timeouts, limits, and the access-control
// lines fed into an access.Policy at startup.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/paigeadele/clandestine/internal/access"
)

// Server is the top-level [server] table.
type Server struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	SID         string `toml:"sid"`
	Network     string `toml:"network"`
	Version     string `toml:"version"`
	CreatedDate string `toml:"created_date"`
	ListenAddr  string `toml:"listen_addr"`
	PeerAddr    string `toml:"peer_listen_addr"`
}

// Limits is the [limits] table.
type Limits struct {
	MaxClients         int `toml:"max_clients"`
	MaxChannels        int `toml:"max_channels"`
	MaxChannelsPerUser int `toml:"max_channels_per_user"`
}

// Timeouts is the [timeouts] table, in human durations ("16s").
type Timeouts struct {
	PingInterval string `toml:"ping_interval"`
	PingTimeout  string `toml:"ping_timeout"`
}

// AccessLine is one row of an access-control table ([[access.k]] etc).
type AccessLine struct {
	Mask     string `toml:"mask"`
	Reason   string `toml:"reason"`
	Setter   string `toml:"setter"`
	Duration string `toml:"duration"` // "" or "0" = permanent
	Password string `toml:"password"` // I-line password, or O-line bcrypt hash
	Class    string `toml:"class"`    // I-line only
}

// AccessTables is the [access] table, one slice per line kind.
type AccessTables struct {
	K []AccessLine `toml:"k"`
	D []AccessLine `toml:"d"`
	G []AccessLine `toml:"g"`
	I []AccessLine `toml:"i"`
	O []AccessLine `toml:"o"` // Password here is a bcrypt hash
	U []AccessLine `toml:"u"`
}

// PeerLink is one configured outbound server link ([[links]]).
type PeerLink struct {
	Name        string `toml:"name"`
	Address     string `toml:"address"`
	SID         string `toml:"sid"`
	Secret      string `toml:"secret"`
	Description string `toml:"description"`
}

// Database is the [database] table, for the LineStore adapter.
type Database struct {
	Path string `toml:"path"`
}

// Config is the full parsed configuration file.
type Config struct {
	Server   Server         `toml:"server"`
	Limits   Limits         `toml:"limits"`
	Timeouts Timeouts       `toml:"timeouts"`
	Access   AccessTables   `toml:"access"`
	Links    []PeerLink     `toml:"links"`
	Database Database       `toml:"database"`
	MOTD     []string       `toml:"motd"`
}

// Load parses the TOML file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, errors.Wrap(err, "decoding configuration file")
	}
	if c.Server.Name == "" {
		return nil, fmt.Errorf("configuration missing required server.name")
	}
	if c.Server.SID == "" {
		return nil, fmt.Errorf("configuration missing required server.sid")
	}
	return &c, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// PingInterval returns the configured ping interval, or fallback if
// unset/unparsable.
func (c *Config) PingInterval(fallback time.Duration) time.Duration {
	return parseDuration(c.Timeouts.PingInterval, fallback)
}

// PingTimeout returns the configured ping timeout, or fallback if
// unset/unparsable.
func (c *Config) PingTimeout(fallback time.Duration) time.Duration {
	return parseDuration(c.Timeouts.PingTimeout, fallback)
}

// toAccessLine converts one table row into an access.Line of kind.
func toAccessLine(kind access.Kind, l AccessLine) access.Line {
	var dur time.Duration
	if l.Duration != "" && l.Duration != "0" {
		dur, _ = time.ParseDuration(l.Duration)
	}
	return access.Line{
		Kind:     kind,
		Mask:     l.Mask,
		Reason:   l.Reason,
		Setter:   l.Setter,
		SetTime:  time.Now(),
		Duration: dur,
		Password: l.Password,
		Class:    l.Class,
	}
}

// LoadPolicy populates pol with every access line from the config
// file's [access] table.
func (c *Config) LoadPolicy(pol *access.Policy) {
	for kind, rows := range map[access.Kind][]AccessLine{
		access.KindK: c.Access.K,
		access.KindD: c.Access.D,
		access.KindG: c.Access.G,
		access.KindI: c.Access.I,
		access.KindO: c.Access.O,
		access.KindU: c.Access.U,
	} {
		lines := make([]access.Line, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, toAccessLine(kind, row))
		}
		pol.Load(kind, lines)
	}
}
