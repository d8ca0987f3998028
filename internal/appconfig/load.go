package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/sshtabs/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("profiles_path", cfg.ProfilesPath)
	v.SetDefault("key_store_path", cfg.KeyStorePath)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.refresh_interval_ms", cfg.UI.RefreshIntervalMS)
	v.SetDefault("ui.sidebar_percent", cfg.UI.SidebarPercent)
	v.SetDefault("ui.show_banner", cfg.UI.ShowBanner)
	v.SetDefault("ssh.dial_timeout_seconds", cfg.SSH.DialTimeoutSeconds)
	v.SetDefault("ssh.known_hosts_path", cfg.SSH.KnownHostsPath)
	v.SetDefault("ssh.strict_host_key_checking", cfg.SSH.StrictHostKeyChecking)
	v.SetDefault("ssh.use_agent", cfg.SSH.UseAgent)
	v.SetDefault("ssh.term", cfg.SSH.Term)
	v.SetDefault("ssh.keepalive_interval_seconds", cfg.SSH.KeepaliveIntervalSeconds)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	theme, ok := schema.NormalizeThemeName(cfg.UI.Theme)
	if !ok {
		return fmt.Errorf("unsupported ui.theme %q (available: %s)", cfg.UI.Theme, schema.ThemeList())
	}
	cfg.UI.Theme = string(theme)
	if cfg.UI.RefreshIntervalMS < 1 || cfg.UI.RefreshIntervalMS > 1000 {
		return fmt.Errorf("ui.refresh_interval_ms must be within 1..1000, got %d", cfg.UI.RefreshIntervalMS)
	}
	if cfg.UI.SidebarPercent < 10 || cfg.UI.SidebarPercent > 60 {
		return fmt.Errorf("ui.sidebar_percent must be within 10..60, got %d", cfg.UI.SidebarPercent)
	}
	if cfg.SSH.DialTimeoutSeconds <= 0 {
		return fmt.Errorf("ssh.dial_timeout_seconds must be positive")
	}
	if cfg.SSH.KeepaliveIntervalSeconds < 0 {
		return fmt.Errorf("ssh.keepalive_interval_seconds must not be negative")
	}
	if strings.TrimSpace(cfg.SSH.Term) == "" {
		return fmt.Errorf("ssh.term is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "trace", "debug", "info", "warn", "error":
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	default:
		return fmt.Errorf("unsupported logging.level %q", cfg.Logging.Level)
	}
	if strings.TrimSpace(cfg.ProfilesPath) == "" {
		return fmt.Errorf("profiles_path is required")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.ProfilesPath = expandEnv(cfg.ProfilesPath)
	cfg.KeyStorePath = expandEnv(cfg.KeyStorePath)
	cfg.SSH.KnownHostsPath = expandEnv(cfg.SSH.KnownHostsPath)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, value[2:])
		}
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
