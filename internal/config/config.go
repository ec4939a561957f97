// Package config loads fgdb.yaml, the per-store configuration file.
//
// The file is optional. It is decoded with yaml.v3, validated against an
// embedded CUE schema, and merged over the defaults. Command-line flags
// override individual keys after loading.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fgdb/internal/schema"
)

// Defaults.
const (
	DefaultExecTimeout = 10 * time.Minute
	DefaultLockTimeout = 5 * time.Second
)

//go:embed config.cue
var configSchemaSource string

var configSchema = schema.MustCompile("config.cue", configSchemaSource)

// Config holds the effective settings of one invocation.
type Config struct {
	// ExecTimeout bounds each function execution; zero disables it.
	ExecTimeout time.Duration

	// LockTimeout bounds the wait for the store lock.
	LockTimeout time.Duration

	// KeepWorkdir keeps scratch directories for debugging.
	KeepWorkdir bool

	// Env is added to the environment of function processes.
	Env map[string]string
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ExecTimeout: DefaultExecTimeout,
		LockTimeout: DefaultLockTimeout,
		Env:         map[string]string{},
	}
}

// file mirrors the YAML document.
type file struct {
	ExecTimeout *string           `json:"exec_timeout,omitempty"`
	LockTimeout *string           `json:"lock_timeout,omitempty"`
	KeepWorkdir *bool             `json:"keep_workdir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Load reads the configuration at path and applies it over the defaults.
// A missing file yields the defaults unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.apply(data); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse applies a YAML document over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.apply(data); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return nil
	}

	var f file
	if err := configSchema.Check("#Config", raw, &f); err != nil {
		return err
	}

	if f.ExecTimeout != nil {
		d, err := time.ParseDuration(*f.ExecTimeout)
		if err != nil {
			return fmt.Errorf("exec_timeout: %w", err)
		}
		c.ExecTimeout = d
	}
	if f.LockTimeout != nil {
		d, err := time.ParseDuration(*f.LockTimeout)
		if err != nil {
			return fmt.Errorf("lock_timeout: %w", err)
		}
		c.LockTimeout = d
	}
	if f.KeepWorkdir != nil {
		c.KeepWorkdir = *f.KeepWorkdir
	}
	for k, v := range f.Env {
		c.Env[k] = v
	}
	return nil
}
