package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	goerrors "github.com/kbukum/cmdkit/errors"
)

const (
	// DefaultFileName is the configuration file searched for when none is given.
	DefaultFileName = "cmdkit.yml"
	// EnvPrefix marks environment variables that override configuration keys.
	EnvPrefix = "CMDKIT_"
)

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	UserConfigDir() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

func (rfs *RealFileSystem) UserConfigDir() (string, error) {
	return os.UserConfigDir()
}

// Resolver handles finding and resolving config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns explicit paths if provided, otherwise searches for them.
func (cr *Resolver) ResolveFiles(opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}

	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.findConfigFile()
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.findEnvFile()
	}

	return resolved
}

// findConfigFile searches for cmdkit.yml in the working directory, the
// user configuration directory and /etc.
func (cr *Resolver) findConfigFile() string {
	searchPaths := []string{
		"./" + DefaultFileName,
		"./config/" + DefaultFileName,
	}
	if dir, err := cr.FileSystem.UserConfigDir(); err == nil && dir != "" {
		searchPaths = append(searchPaths, filepath.Join(dir, "cmdkit", DefaultFileName))
	}
	searchPaths = append(searchPaths, "/etc/cmdkit/"+DefaultFileName)

	for _, path := range searchPaths {
		if cr.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// findEnvFile searches for .env files next to the working directory.
func (cr *Resolver) findEnvFile() string {
	for _, envFile := range []string{".env.cmdkit", ".env"} {
		for _, dir := range []string{".", "./config"} {
			path := dir + "/" + envFile
			if cr.FileSystem.Exists(path) {
				return path
			}
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
	// Environ replaces os.Environ for tests.
	Environ func() []string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnviron sets the environment consulted for CMDKIT_ overrides.
func WithEnviron(environ func() []string) LoaderOption {
	return func(lc *LoaderConfig) { lc.Environ = environ }
}

// Load reads the configuration file, the .env file and CMDKIT_ environment
// overrides, then applies defaults and validates the result.
//
// An explicit config file that does not exist is an error. When no file is
// given and none is found, the defaults are used.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}
	if lc.Environ == nil {
		lc.Environ = os.Environ
	}

	if lc.ConfigFile != "" && !lc.FileSystem.Exists(lc.ConfigFile) {
		return nil, goerrors.InvalidInput("config_file", fmt.Sprintf("%s does not exist", lc.ConfigFile))
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(lc)

	cfg := &Config{}
	if err := loadFromResolvedFiles(cfg, files, lc); err != nil {
		return nil, err
	}
	if files.ConfigFile != "" {
		if abs, err := filepath.Abs(files.ConfigFile); err == nil {
			cfg.File = abs
		} else {
			cfg.File = files.ConfigFile
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromResolvedFiles loads configuration from specific files.
func loadFromResolvedFiles(cfg *Config, files ResolvedFiles, lc LoaderConfig) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 1. Load YAML config first (base configuration)
	if files.ConfigFile != "" {
		v.SetConfigFile(files.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return goerrors.InvalidInput("config_file", err.Error()).WithCause(err)
		}
	}

	// 2. Load .env file so its variables take part in the override pass
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return goerrors.InvalidInput("env_file", err.Error()).WithCause(err)
		}
	}

	// 3. Environment overrides
	bindEnvOverrides(v, lc.Environ())

	// 4. Unmarshal into config struct
	if err := v.Unmarshal(cfg); err != nil {
		return goerrors.InvalidInput("config_file", err.Error()).WithCause(err)
	}

	return nil
}

// defaults registers every scalar key so environment overrides can reach
// keys absent from the file.
var defaults = map[string]any{
	"name": "cmdkit",

	"logging.level":     "info",
	"logging.format":    "console",
	"logging.output":    "stderr",
	"logging.no_color":  false,
	"logging.timestamp": true,
	"logging.caller":    false,

	"telemetry.enabled":         false,
	"telemetry.endpoint":        "localhost:4318",
	"telemetry.insecure":        false,
	"telemetry.service_name":    "",
	"telemetry.service_version": "",
	"telemetry.environment":     "development",
	"telemetry.sample_rate":     1.0,
	"telemetry.metric_interval": "15s",

	"rsync.rsync":               "rsync",
	"rsync.path":                "",
	"rsync.ssh":                 "",
	"rsync.bwlimit":             0,
	"rsync.network_compression": false,
	"rsync.retry_times":         0,
	"rsync.retry_sleep":         "0s",
	"rsync.lock_file":           "",
}

// bindEnvOverrides maps CMDKIT_ variables onto known configuration keys.
// Underscores are ambiguous between nesting and word breaks, so every
// variant is tried against the keys viper already knows.
func bindEnvOverrides(v *viper.Viper, environ []string) {
	known := make(map[string]bool)
	for _, key := range v.AllKeys() {
		known[key] = true
	}

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok || rest == "" {
			continue
		}
		for _, variant := range generateEnvKeyVariants(rest) {
			if known[variant] {
				v.Set(variant, value)
			}
		}
	}
}

// generateEnvKeyVariants creates every key an environment variable can
// name by reading each underscore as either a nesting dot or part of a word.
// Examples:
//
//	LOGGING_LEVEL -> [logging_level, logging.level]
//	RSYNC_RETRY_TIMES -> [rsync_retry_times, rsync.retry_times, rsync_retry.times, rsync.retry.times]
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")

	if len(parts) <= 1 {
		return []string{lowerKey}
	}
	// Keep the expansion bounded for unusually long names.
	if len(parts) > 10 {
		return []string{lowerKey, strings.ReplaceAll(lowerKey, "_", ".")}
	}

	gaps := len(parts) - 1
	variants := make([]string, 0, 1<<gaps)
	for mask := 0; mask < 1<<gaps; mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i := 1; i < len(parts); i++ {
			if mask&(1<<(i-1)) != 0 {
				b.WriteByte('.')
			} else {
				b.WriteByte('_')
			}
			b.WriteString(parts[i])
		}
		variants = append(variants, b.String())
	}

	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings from a slice.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))

	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
