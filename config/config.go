package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/observability"
	"github.com/kbukum/cmdkit/process"
	"github.com/kbukum/cmdkit/signals"
	"github.com/kbukum/cmdkit/validation"
)

// Config is the cmdkit.yml schema.
type Config struct {
	Name      string                    `yaml:"name" mapstructure:"name" validate:"required"`
	Logging   logger.Config             `yaml:"logging" mapstructure:"logging"`
	Telemetry observability.Config      `yaml:"telemetry" mapstructure:"telemetry"`
	Commands  map[string]CommandProfile `yaml:"commands,omitempty" mapstructure:"commands" validate:"dive"`
	Rsync     RsyncProfile              `yaml:"rsync" mapstructure:"rsync"`

	// File is the absolute path of the loaded configuration file, empty when
	// only defaults were used.
	File string `yaml:"-" mapstructure:"-"`
}

// CommandProfile is a named, preconfigured command.
type CommandProfile struct {
	Command string   `yaml:"command" mapstructure:"command" validate:"required"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
	// Env holds KEY=VALUE entries overlaid on the inherited environment.
	// A list keeps the variable names' case intact.
	Env              []string       `yaml:"env,omitempty" mapstructure:"env"`
	Path             string         `yaml:"path,omitempty" mapstructure:"path"`
	Dir              string         `yaml:"dir,omitempty" mapstructure:"dir"`
	Shell            bool           `yaml:"shell,omitempty" mapstructure:"shell"`
	CloseFDs         *bool          `yaml:"close_fds,omitempty" mapstructure:"close_fds"`
	Check            bool           `yaml:"check,omitempty" mapstructure:"check"`
	AllowedExitCodes []int          `yaml:"allowed_exit_codes,omitempty" mapstructure:"allowed_exit_codes"`
	RetryTimes       int            `yaml:"retry_times,omitempty" mapstructure:"retry_times" validate:"gte=0"`
	RetrySleep       time.Duration  `yaml:"retry_sleep,omitempty" mapstructure:"retry_sleep" validate:"gte=0"`
	BackoffFactor    float64        `yaml:"backoff_factor,omitempty" mapstructure:"backoff_factor" validate:"gte=0"`
	GracePeriod      time.Duration  `yaml:"grace_period,omitempty" mapstructure:"grace_period" validate:"gte=0"`
	LockFile         string         `yaml:"lock_file,omitempty" mapstructure:"lock_file"`
	ForwardSignals   []string       `yaml:"forward_signals,omitempty" mapstructure:"forward_signals"`
	Overrides        map[string]any `yaml:"overrides,omitempty" mapstructure:"overrides"`
}

// RsyncProfile holds the defaults of the rsync subcommand.
type RsyncProfile struct {
	Rsync              string        `yaml:"rsync" mapstructure:"rsync"`
	Path               string        `yaml:"path,omitempty" mapstructure:"path"`
	SSH                string        `yaml:"ssh,omitempty" mapstructure:"ssh"`
	SSHOptions         []string      `yaml:"ssh_options,omitempty" mapstructure:"ssh_options"`
	BWLimit            int           `yaml:"bwlimit,omitempty" mapstructure:"bwlimit" validate:"gte=0"`
	Include            []string      `yaml:"include,omitempty" mapstructure:"include"`
	Exclude            []string      `yaml:"exclude,omitempty" mapstructure:"exclude"`
	ExcludeAndProtect  []string      `yaml:"exclude_and_protect,omitempty" mapstructure:"exclude_and_protect"`
	NetworkCompression bool          `yaml:"network_compression,omitempty" mapstructure:"network_compression"`
	Args               []string      `yaml:"args,omitempty" mapstructure:"args"`
	AllowedExitCodes   []int         `yaml:"allowed_exit_codes,omitempty" mapstructure:"allowed_exit_codes"`
	RetryTimes         int           `yaml:"retry_times,omitempty" mapstructure:"retry_times" validate:"gte=0"`
	RetrySleep         time.Duration `yaml:"retry_sleep,omitempty" mapstructure:"retry_sleep" validate:"gte=0"`
	LockFile           string        `yaml:"lock_file,omitempty" mapstructure:"lock_file"`
	ForwardSignals     []string      `yaml:"forward_signals,omitempty" mapstructure:"forward_signals"`
}

// ApplyDefaults fills unset fields and propagates the name into telemetry.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "cmdkit"
	}
	c.Logging.ApplyDefaults()
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
	c.Telemetry.ApplyDefaults()
	if c.Rsync.Rsync == "" {
		c.Rsync.Rsync = "rsync"
	}
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	v := validation.New().Struct(c)
	v.Err("logging", c.Logging.Validate())
	v.Err("telemetry", c.Telemetry.Validate())

	for _, name := range c.ProfileNames() {
		p := c.Commands[name]
		field := fmt.Sprintf("commands[%s]", name)
		checkExitCodes(v, field+".allowed_exit_codes", p.AllowedExitCodes)
		_, err := signals.ParseAll(p.ForwardSignals)
		v.Err(field+".forward_signals", err)
		for _, kv := range p.Env {
			k, _, ok := strings.Cut(kv, "=")
			v.Custom(ok && k != "", field+".env", fmt.Sprintf("%q is not KEY=VALUE", kv))
		}
		_, err = process.OverridesFromMap(p.Overrides)
		v.Err(field+".overrides", err)
	}

	checkExitCodes(v, "rsync.allowed_exit_codes", c.Rsync.AllowedExitCodes)
	_, err := signals.ParseAll(c.Rsync.ForwardSignals)
	v.Err("rsync.forward_signals", err)

	return v.Validate()
}

// checkExitCodes accepts exit statuses and negated signal numbers.
func checkExitCodes(v *validation.Validator, field string, codes []int) {
	for _, code := range codes {
		v.Range(field, code, -64, 255)
	}
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (CommandProfile, bool) {
	p, ok := c.Commands[name]
	return p, ok
}

// EnvMap splits the KEY=VALUE entries of Env.
func (p CommandProfile) EnvMap() map[string]string {
	if len(p.Env) == 0 {
		return nil
	}
	env := make(map[string]string, len(p.Env))
	for _, kv := range p.Env {
		if k, val, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = val
		}
	}
	return env
}

// Options translates the profile into command options.
func (p CommandProfile) Options() []process.Option {
	opts := []process.Option{
		process.WithShell(p.Shell),
		process.WithCheck(p.Check),
		process.WithRetry(p.RetryTimes, p.RetrySleep),
	}
	if len(p.Args) > 0 {
		opts = append(opts, process.WithArgs(p.Args...))
	}
	if env := p.EnvMap(); env != nil {
		opts = append(opts, process.WithEnv(env))
	}
	if p.Path != "" {
		opts = append(opts, process.WithPath(p.Path))
	}
	if p.Dir != "" {
		opts = append(opts, process.WithDir(p.Dir))
	}
	if p.CloseFDs != nil {
		opts = append(opts, process.WithCloseFDs(*p.CloseFDs))
	}
	if len(p.AllowedExitCodes) > 0 {
		opts = append(opts, process.WithAllowedExitCodes(slices.Clone(p.AllowedExitCodes)...))
	}
	if p.BackoffFactor > 0 {
		opts = append(opts, process.WithBackoff(p.BackoffFactor))
	}
	if p.GracePeriod > 0 {
		opts = append(opts, process.WithGracePeriod(p.GracePeriod))
	}
	return opts
}

// CallOptions decodes the profile's per-call overrides.
func (p CommandProfile) CallOptions() ([]process.CallOption, error) {
	return process.OverridesFromMap(p.Overrides)
}

// RsyncConfig translates the profile into a remote-copy configuration.
// extra options are applied last.
func (p RsyncProfile) RsyncConfig(extra ...process.Option) process.RsyncConfig {
	opts := []process.Option{process.WithRetry(p.RetryTimes, p.RetrySleep)}
	if len(p.AllowedExitCodes) > 0 {
		opts = append(opts, process.WithAllowedExitCodes(slices.Clone(p.AllowedExitCodes)...))
	}
	opts = append(opts, extra...)
	return process.RsyncConfig{
		Rsync:              p.Rsync,
		Args:               slices.Clone(p.Args),
		SSH:                p.SSH,
		SSHOptions:         slices.Clone(p.SSHOptions),
		BWLimit:            p.BWLimit,
		Exclude:            slices.Clone(p.Exclude),
		ExcludeAndProtect:  slices.Clone(p.ExcludeAndProtect),
		Include:            slices.Clone(p.Include),
		NetworkCompression: p.NetworkCompression,
		Path:               p.Path,
		Options:            opts,
	}
}
