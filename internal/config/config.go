// Package config loads and validates the JSON run configuration described
// by the external-interfaces section of the design: cluster membership,
// the two share endpoints, and tuning knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// System names the remote-filesystem family in use for this run.
type System string

const (
	SystemNfs   System = "Nfs"
	SystemSamba System = "Samba"
)

// Config is the on-disk JSON shape read at startup.
type Config struct {
	Nodes      []string `json:"nodes"`
	SrcServer  string   `json:"src_server"`
	DestServer string   `json:"dest_server"`
	SrcShare   string   `json:"src_share"`
	DestShare  string   `json:"dest_share"`
	System     System   `json:"system"`
	DebugLevel uint     `json:"debug_level"`
	NumThreads uint     `json:"num_threads"`
	Workgroup  string   `json:"workgroup"`
	SrcPath    string   `json:"src_path"`
	DestPath   string   `json:"dest_path"`
	DatabaseURL *string `json:"database_url"`

	// LDAPURL, when set, enables directory-backed SID resolution as a
	// fallback for the name->SID cache (SPEC_FULL §4.7 addendum).
	LDAPURL string `json:"ldap_url,omitempty"`
	// LogPath is the ambient logging sink; empty means stderr.
	LogPath string `json:"log_path,omitempty"`
	// ListenAddr serves the read-only status/progress HTTP surface.
	ListenAddr string `json:"listen_addr,omitempty"`
}

// Load reads and validates a config file from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate enforces the invariants spec.md §8 lists at config-parse time:
// at least one node, and no two nodes sharing an (ip, port) endpoint.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: nodes must be non-empty")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n] {
			return fmt.Errorf("config: duplicate node endpoint %q", n)
		}
		seen[n] = true
	}
	if c.System != SystemNfs && c.System != SystemSamba {
		return fmt.Errorf("config: system must be %q or %q, got %q", SystemNfs, SystemSamba, c.System)
	}
	if c.NumThreads == 0 {
		c.NumThreads = 4
	}
	if c.Workgroup == "" {
		c.Workgroup = "WORKGROUP"
	}
	if c.System == SystemSamba {
		wantPrefix := "smb://" + c.SrcServer + "/"
		_ = wantPrefix // exact validation of full smb:// shape is left to the filesystem client
		if c.SrcPath == "" || c.DestPath == "" {
			return fmt.Errorf("config: src_path/dest_path required for Samba system")
		}
	}
	return nil
}
