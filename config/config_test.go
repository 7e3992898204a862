package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	goerrors "github.com/kbukum/cmdkit/errors"
)

const sampleConfig = `
name: backups
logging:
  level: debug
  format: json
telemetry:
  enabled: false
  sample_rate: 0.5
commands:
  nightly:
    command: /usr/bin/pg_dump
    args: [--format=custom, main]
    env: [PGHOST=db1, PGUSER=backup]
    check: true
    allowed_exit_codes: [0, 1]
    retry_times: 2
    retry_sleep: 30s
    lock_file: /run/cmdkit/nightly.lock
    forward_signals: [TERM, INT]
    overrides:
      close_fds: false
rsync:
  ssh: ssh
  ssh_options: [-p, "2222"]
  bwlimit: 500
  exclude: ["*.tmp"]
  retry_times: 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func load(t *testing.T, content string, environ []string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, DefaultFileName, content)
	return Load(
		WithConfigFile(path),
		WithEnvFile(filepath.Join(dir, ".env")),
		WithEnviron(func() []string { return environ }),
	)
}

func TestLoadConfigWithYAML(t *testing.T) {
	cfg, err := load(t, sampleConfig, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "backups" {
		t.Errorf("expected name 'backups', got %q", cfg.Name)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Telemetry.ServiceName != "backups" || cfg.Telemetry.SampleRate != 0.5 {
		t.Errorf("unexpected telemetry config %+v", cfg.Telemetry)
	}
	if !filepath.IsAbs(cfg.File) || filepath.Base(cfg.File) != DefaultFileName {
		t.Errorf("expected absolute config path, got %q", cfg.File)
	}

	p, ok := cfg.Profile("nightly")
	if !ok {
		t.Fatal("expected profile 'nightly'")
	}
	if p.Command != "/usr/bin/pg_dump" || !slices.Equal(p.Args, []string{"--format=custom", "main"}) {
		t.Errorf("unexpected profile %+v", p)
	}
	if !p.Check || !slices.Equal(p.AllowedExitCodes, []int{0, 1}) {
		t.Errorf("unexpected exit-code policy %+v", p)
	}
	if p.RetryTimes != 2 || p.RetrySleep != 30*time.Second {
		t.Errorf("unexpected retry policy %d %v", p.RetryTimes, p.RetrySleep)
	}
	if env := p.EnvMap(); env["PGHOST"] != "db1" || env["PGUSER"] != "backup" {
		t.Errorf("unexpected env %v", env)
	}

	if cfg.Rsync.Rsync != "rsync" || cfg.Rsync.BWLimit != 500 || cfg.Rsync.RetryTimes != 1 {
		t.Errorf("unexpected rsync profile %+v", cfg.Rsync)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(
		WithFileSystem(&mockFS{}),
		WithEnviron(func() []string { return nil }),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "cmdkit" || cfg.File != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Logging.Level != "info" || cfg.Telemetry.Endpoint != "localhost:4318" {
		t.Errorf("unexpected nested defaults %+v %+v", cfg.Logging, cfg.Telemetry)
	}
	if cfg.Telemetry.ServiceName != "cmdkit" {
		t.Errorf("expected service name to follow the default name, got %q", cfg.Telemetry.ServiceName)
	}
	if len(cfg.Commands) != 0 {
		t.Errorf("expected no profiles, got %v", cfg.Commands)
	}
}

func TestTelemetryServiceName(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"follows name", "name: archiver\n", "archiver"},
		{"explicit wins", "name: archiver\ntelemetry:\n  service_name: backup-agent\n", "backup-agent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), DefaultFileName, tt.file)
			cfg, err := Load(WithConfigFile(path), WithEnviron(func() []string { return nil }))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Telemetry.ServiceName != tt.want {
				t.Errorf("expected service name %q, got %q", tt.want, cfg.Telemetry.ServiceName)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "missing.yml")))
	if goerrors.CodeOf(err) != goerrors.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	cfg, err := load(t, sampleConfig, []string{
		"CMDKIT_LOGGING_LEVEL=warn",
		"CMDKIT_RSYNC_RETRY_TIMES=4",
		"CMDKIT_TELEMETRY_SERVICE_VERSION=1.2.3",
		"CMDKIT_COMMANDS_NIGHTLY_RETRY_TIMES=5",
		"CMDKIT_COMMANDS_NIGHTLY_ARGS=--jobs=2,main",
		"CMDKIT_UNKNOWN_KEY=ignored",
		"LOGGING_LEVEL=error",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level 'warn', got %q", cfg.Logging.Level)
	}
	if cfg.Rsync.RetryTimes != 4 {
		t.Errorf("expected rsync.retry_times=4, got %d", cfg.Rsync.RetryTimes)
	}
	if cfg.Telemetry.ServiceVersion != "1.2.3" {
		t.Errorf("expected service version override, got %q", cfg.Telemetry.ServiceVersion)
	}
	p := cfg.Commands["nightly"]
	if p.RetryTimes != 5 {
		t.Errorf("expected retry_times=5, got %d", p.RetryTimes)
	}
	if !slices.Equal(p.Args, []string{"--jobs=2", "main"}) {
		t.Errorf("expected overridden args, got %q", p.Args)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, DefaultFileName, "name: from-file\n")
	envFile := writeFile(t, dir, ".env", "CMDKIT_TEST_ENVFILE_MARKER=1\nCMDKIT_NAME=from-env-file\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("CMDKIT_TEST_ENVFILE_MARKER")
		_ = os.Unsetenv("CMDKIT_NAME")
	})

	cfg, err := Load(WithConfigFile(path), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "from-env-file" {
		t.Errorf("expected the .env value to override the file, got %q", cfg.Name)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	_, err := load(t, `
commands:
  broken:
    retry_times: -1
    allowed_exit_codes: [300]
    forward_signals: [SIGFOO]
    env: [NOEQUALS]
    overrides:
      bogus: true
telemetry:
  sample_rate: 2
`, nil)
	if goerrors.CodeOf(err) != goerrors.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{
		"commands[broken].command: is required",
		"commands[broken].retry_times",
		"commands[broken].allowed_exit_codes",
		"commands[broken].forward_signals",
		"commands[broken].env",
		"commands[broken].overrides",
		"telemetry:",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := load(t, "name: [unterminated\n", nil)
	if goerrors.CodeOf(err) != goerrors.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestProfileOptions(t *testing.T) {
	closeFDs := false
	p := CommandProfile{
		Command:          "rsync",
		Args:             []string{"-a"},
		Env:              []string{"LANG=C"},
		Path:             "/opt/bin",
		Dir:              "/srv",
		CloseFDs:         &closeFDs,
		AllowedExitCodes: []int{0, 24},
		BackoffFactor:    2,
		GracePeriod:      time.Second,
	}
	// shell, check, retry, args, env, path, dir, close_fds, allowed, backoff, grace
	if got := len(p.Options()); got != 11 {
		t.Errorf("expected 11 options, got %d", got)
	}
	if got := len(CommandProfile{Command: "true"}.Options()); got != 3 {
		t.Errorf("expected 3 base options, got %d", got)
	}
}

func TestProfileCallOptions(t *testing.T) {
	opts, err := CommandProfile{Overrides: map[string]any{"check": true, "allowed_exit_codes": "0,3"}}.CallOptions()
	if err != nil || len(opts) == 0 {
		t.Fatalf("expected call options, got %v, %v", opts, err)
	}
	if _, err := (CommandProfile{Overrides: map[string]any{"nope": 1}}).CallOptions(); goerrors.CodeOf(err) != goerrors.ErrCodeInvalidOverride {
		t.Errorf("expected INVALID_OVERRIDE, got %v", err)
	}
}

func TestRsyncProfileConfig(t *testing.T) {
	p := RsyncProfile{
		Rsync:            "rsync",
		SSH:              "ssh",
		Exclude:          []string{"*.tmp"},
		AllowedExitCodes: []int{0},
		RetryTimes:       1,
	}
	rc := p.RsyncConfig()
	if rc.Rsync != "rsync" || rc.SSH != "ssh" || !slices.Equal(rc.Exclude, []string{"*.tmp"}) {
		t.Errorf("unexpected rsync config %+v", rc)
	}
	if len(rc.Options) != 2 {
		t.Errorf("expected retry and exit-code options, got %d", len(rc.Options))
	}
	p.Exclude[0] = "changed"
	if rc.Exclude[0] != "*.tmp" {
		t.Error("expected the config to own its slices")
	}
}

func TestProfileNamesSorted(t *testing.T) {
	cfg := &Config{Commands: map[string]CommandProfile{"b": {}, "a": {}, "c": {}}}
	if got := cfg.ProfileNames(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("expected sorted names, got %v", got)
	}
}

func TestResolverSearchOrder(t *testing.T) {
	fs := &mockFS{
		configDir: "/home/u/.config",
		files: map[string]bool{
			"/home/u/.config/cmdkit/cmdkit.yml": true,
			"/etc/cmdkit/cmdkit.yml":            true,
			"./config/.env":                     true,
		},
	}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles(LoaderConfig{})
	if files.ConfigFile != "/home/u/.config/cmdkit/cmdkit.yml" {
		t.Errorf("expected the user config file, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./config/.env" {
		t.Errorf("expected ./config/.env, got %q", files.EnvFile)
	}

	fs.files["./cmdkit.yml"] = true
	if got := resolver.ResolveFiles(LoaderConfig{}).ConfigFile; got != "./cmdkit.yml" {
		t.Errorf("expected the working directory to win, got %q", got)
	}

	explicit := resolver.ResolveFiles(LoaderConfig{ConfigFile: "/x.yml", EnvFile: "/x.env"})
	if explicit.ConfigFile != "/x.yml" || explicit.EnvFile != "/x.env" {
		t.Errorf("expected explicit paths, got %+v", explicit)
	}
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("RSYNC_RETRY_TIMES")
	want := []string{"rsync_retry_times", "rsync.retry_times", "rsync_retry.times", "rsync.retry.times"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := generateEnvKeyVariants("NAME"); !slices.Equal(got, []string{"name"}) {
		t.Errorf("expected [name], got %v", got)
	}
}

type mockFS struct {
	files     map[string]bool
	configDir string
}

func (m *mockFS) Exists(path string) bool        { return m.files[path] }
func (m *mockFS) LoadEnv(string) error           { return nil }
func (m *mockFS) UserConfigDir() (string, error) { return m.configDir, nil }

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	WithFileSystem(fs)(&lc)
	WithConfigFile("/path/to/cmdkit.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	if lc.FileSystem == nil || lc.ConfigFile != "/path/to/cmdkit.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("unexpected loader config %+v", lc)
	}
}
