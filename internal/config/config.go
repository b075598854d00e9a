// Package config loads bundlefetch configuration from embedded defaults, an
// optional TOML file and BUNDLEFETCH_* environment variables, in that order
// of increasing precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "bundlefetch"
	// ConfigFileName is the config file name inside ConfigDir.
	ConfigFileName = "config.toml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BUNDLEFETCH"

	sandboxedKey = "sandboxed"
)

// Endpoints are the remote locations bundlefetch talks to.
type Endpoints struct {
	UpdateBaseURL   string `json:"update_base_url" mapstructure:"update_base_url" toml:"update_base_url"`
	APIBaseURL      string `json:"api_base_url" mapstructure:"api_base_url" toml:"api_base_url"`
	DownloadBaseURL string `json:"download_base_url" mapstructure:"download_base_url" toml:"download_base_url"`
}

// Repo names the repository publishing extension releases.
type Repo struct {
	ID string `json:"id" mapstructure:"id" toml:"id"`
}

// Bundle configures the engine bundle.
type Bundle struct {
	ExecutableName    string `mapstructure:"executable_name" toml:"executable_name"`
	MinisignPublicKey string `mapstructure:"minisign_public_key" toml:"minisign_public_key,omitempty"`
}

// Channel holds the user's update channel opt-ins.
type Channel struct {
	ReceiveBetaUpdates bool `mapstructure:"receive_beta_updates" toml:"receive_beta_updates"`
	UseProposedAlpha   bool `mapstructure:"use_proposed_alpha" toml:"use_proposed_alpha"`
}

// Host describes the editor hosting the extension.
type Host struct {
	ExtensionVersion    string `mapstructure:"extension_version" toml:"extension_version"`
	PackageName         string `mapstructure:"package_name" toml:"package_name"`
	SettingsPrefix      string `mapstructure:"settings_prefix" toml:"settings_prefix"`
	Insiders            bool   `mapstructure:"insiders" toml:"insiders"`
	PrereleaseSupported bool   `mapstructure:"prerelease_supported" toml:"prerelease_supported"`
	EditorCLI           string `mapstructure:"editor_cli" toml:"editor_cli,omitempty"`
	FirstInstall        bool   `mapstructure:"first_install" toml:"first_install"`
}

// Config is the resolved configuration. Treat it as read-only after Load.
type Config struct {
	RootDir      string    `mapstructure:"root_dir" toml:"root_dir"`
	StatePath    string    `mapstructure:"state_path" toml:"state_path"`
	Sandboxed    bool      `mapstructure:"sandboxed" toml:"sandboxed"`
	TestMode     bool      `mapstructure:"test_mode" toml:"test_mode"`
	LogLevel     string    `mapstructure:"log_level" toml:"log_level"`
	Capabilities []string  `mapstructure:"capabilities" toml:"capabilities"`
	Endpoints    Endpoints `mapstructure:"endpoints" toml:"endpoints"`
	Repo         Repo      `mapstructure:"repo" toml:"repo"`
	Bundle       Bundle    `mapstructure:"bundle" toml:"bundle"`
	Channel      Channel   `mapstructure:"channel" toml:"channel"`
	Host         Host      `mapstructure:"host" toml:"host"`
}

// HasCapability reports whether a capability flag is enabled.
func (c Config) HasCapability(name string) bool {
	return slices.ContainsFunc(c.Capabilities, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), name)
	})
}

// LoadOptions overrides where configuration is read from.
type LoadOptions struct {
	// ConfigFilePath is used exclusively when set and must exist.
	ConfigFilePath string
	// ConfigDirPath replaces ConfigDir() when set.
	ConfigDirPath string
}

// ConfigDir returns the bundlefetch configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS, $XDG_CONFIG_HOME
// (default ~/.config) elsewhere.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultRootDir is where bundles are installed unless root_dir is set.
func DefaultRootDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "binaries"), nil
}

// Load resolves the configuration. It returns the config file that was read,
// or "" when only defaults and the environment apply.
func Load(ctx context.Context, opts LoadOptions) (Config, string, error) {
	select {
	case <-ctx.Done():
		return Config{}, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	d, err := EmbeddedDefaults()
	if err != nil {
		return Config{}, "", err
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		if cfgDir, err = ConfigDir(); err != nil {
			return Config{}, "", err
		}
	}
	rootDir, err := DefaultRootDir()
	if err != nil {
		return Config{}, "", err
	}

	v := viper.New()
	setDefaults(v, d, rootDir, filepath.Join(cfgDir, "state.db"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return Config{}, "", err
	}

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return Config{}, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		resolvedPath = opts.ConfigFilePath
	case fileExists(filepath.Join(cfgDir, ConfigFileName)):
		resolvedPath = filepath.Join(cfgDir, ConfigFileName)
	}
	if resolvedPath != "" {
		v.SetConfigFile(resolvedPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("read config %s: %w", resolvedPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		if resolvedPath != "" {
			return Config{}, "", fmt.Errorf("%s: %w", resolvedPath, err)
		}
		return Config{}, "", err
	}
	return cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Defaults, rootDir, statePath string) {
	v.SetDefault("root_dir", rootDir)
	v.SetDefault("state_path", statePath)
	v.SetDefault(sandboxedKey, false)
	v.SetDefault("test_mode", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("capabilities", []string{})
	v.SetDefault("endpoints.update_base_url", d.Endpoints.UpdateBaseURL)
	v.SetDefault("endpoints.api_base_url", d.Endpoints.APIBaseURL)
	v.SetDefault("endpoints.download_base_url", d.Endpoints.DownloadBaseURL)
	v.SetDefault("repo.id", d.Repo.ID)
	v.SetDefault("bundle.executable_name", d.Bundle.ExecutableName)
	v.SetDefault("bundle.minisign_public_key", "")
	v.SetDefault("channel.receive_beta_updates", false)
	v.SetDefault("channel.use_proposed_alpha", false)
	v.SetDefault("host.extension_version", "")
	v.SetDefault("host.package_name", d.Host.PackageName)
	v.SetDefault("host.settings_prefix", d.Host.SettingsPrefix)
	v.SetDefault("host.insiders", false)
	v.SetDefault("host.prerelease_supported", true)
	v.SetDefault("host.editor_cli", "")
	v.SetDefault("host.first_install", false)
}

// bindEnv maps every key to its BUNDLEFETCH_* variable except sandboxed:
// BUNDLEFETCH_SANDBOXED belongs to sandbox.Detect, which parses it with
// hostenv rules, so only the config file sets the sandboxed key.
func bindEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if key == sandboxedKey {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func validate(cfg *Config) error {
	var problems []string

	if strings.TrimSpace(cfg.RootDir) == "" {
		problems = append(problems, "root_dir: missing")
	}
	if strings.TrimSpace(cfg.StatePath) == "" {
		problems = append(problems, "state_path: missing")
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level: %v", err))
	}
	problems = append(problems, endpointProblems(cfg.Endpoints)...)
	if strings.Count(strings.Trim(cfg.Repo.ID, "/"), "/") != 1 {
		problems = append(problems, fmt.Sprintf("repo.id: want owner/name (got %q)", cfg.Repo.ID))
	}
	if name := cfg.Bundle.ExecutableName; name == "" || strings.ContainsAny(name, `/\`) {
		problems = append(problems, fmt.Sprintf("bundle.executable_name: must be a bare file name (got %q)", name))
	}
	if cfg.Host.PackageName == "" {
		problems = append(problems, "host.package_name: missing")
	}
	if cfg.Host.SettingsPrefix == "" {
		problems = append(problems, "host.settings_prefix: missing")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Render formats cfg as TOML, the format of the config file.
func Render(cfg Config) (string, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(out), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
