package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/sshtabs/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	ProfilesPath  string        `mapstructure:"profiles_path" yaml:"profiles_path"`
	KeyStorePath  string        `mapstructure:"key_store_path" yaml:"key_store_path"`
	UI            UIConfig      `mapstructure:"ui" yaml:"ui"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// UIConfig controls the full-screen interface.
type UIConfig struct {
	Theme             string `mapstructure:"theme" yaml:"theme"`
	RefreshIntervalMS int    `mapstructure:"refresh_interval_ms" yaml:"refresh_interval_ms"`
	SidebarPercent    int    `mapstructure:"sidebar_percent" yaml:"sidebar_percent"`
	ShowBanner        bool   `mapstructure:"show_banner" yaml:"show_banner"`
}

// SSHConfig configures outbound SSH connections.
type SSHConfig struct {
	DialTimeoutSeconds       int    `mapstructure:"dial_timeout_seconds" yaml:"dial_timeout_seconds"`
	KnownHostsPath           string `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`
	StrictHostKeyChecking    bool   `mapstructure:"strict_host_key_checking" yaml:"strict_host_key_checking"`
	UseAgent                 bool   `mapstructure:"use_agent" yaml:"use_agent"`
	Term                     string `mapstructure:"term" yaml:"term"`
	KeepaliveIntervalSeconds int    `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
}

// LoggingConfig controls the log file used while the terminal UI owns the screen.
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	base := filepath.Join(home, ".sshtabs")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(base, "state"),
		ProfilesPath:  filepath.Join(base, "profiles.yaml"),
		KeyStorePath:  filepath.Join(base, "state", "keys.bundle"),
		UI: UIConfig{
			Theme:             string(schema.DefaultTheme),
			RefreshIntervalMS: 16,
			SidebarPercent:    25,
			ShowBanner:        true,
		},
		SSH: SSHConfig{
			DialTimeoutSeconds:       15,
			KnownHostsPath:           filepath.Join(home, ".ssh", "known_hosts"),
			StrictHostKeyChecking:    false,
			UseAgent:                 true,
			Term:                     "xterm-256color",
			KeepaliveIntervalSeconds: 30,
		},
		Logging: LoggingConfig{
			File:  filepath.Join(base, "state", "sshtabs.log"),
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sshtabs", "config.yaml"), nil
}
