// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/false-schemers/wcpl-sub001/crt"
	"github.com/false-schemers/wcpl-sub001/malloc"
	"github.com/false-schemers/wcpl-sub001/stdio"
)

// Config is the CLI configuration, read from wcplrt.yaml and WCPLRT_*
// environment variables.
type Config struct {
	Heap  HeapConfig  `mapstructure:"heap"`
	Stdio StdioConfig `mapstructure:"stdio"`
	Log   LogConfig   `mapstructure:"log"`
}

type HeapConfig struct {
	// MaxPages bounds the memory in 64KiB pages.
	MaxPages int `mapstructure:"max_pages"`
	// Memory is "linear" or "mapped".
	Memory string `mapstructure:"memory"`
}

type StdioConfig struct {
	// BufferSize accepts human sizes such as "4KiB".
	BufferSize string `mapstructure:"buffer_size"`
	MaxStreams int    `mapstructure:"max_streams"`
	StdoutMode string `mapstructure:"stdout_mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("heap.max_pages", 1024)
	v.SetDefault("heap.memory", "linear")
	v.SetDefault("stdio.buffer_size", "4KiB")
	v.SetDefault("stdio.max_streams", stdio.DefaultMaxStreams)
	v.SetDefault("stdio.stdout_mode", "line")
	v.SetDefault("log.level", "WARN")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads the configuration. An empty path searches the working
// directory for wcplrt.yaml; a missing file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WCPLRT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("wcplrt")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Heap.MaxPages <= 0 {
		return fmt.Errorf("heap.max_pages must be positive, got %d", c.Heap.MaxPages)
	}
	switch c.Heap.Memory {
	case "linear", "mapped":
	default:
		return fmt.Errorf("heap.memory must be linear or mapped, got %q", c.Heap.Memory)
	}
	if _, err := c.bufferSize(); err != nil {
		return err
	}
	if _, err := stdio.ParseMode(c.Stdio.StdoutMode); err != nil {
		return fmt.Errorf("stdio.stdout_mode: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (c *Config) bufferSize() (int, error) {
	n, err := humanize.ParseBytes(c.Stdio.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("stdio.buffer_size: %w", err)
	}
	if n == 0 || n > malloc.MaxAlloc {
		return 0, fmt.Errorf("stdio.buffer_size out of range: %s", c.Stdio.BufferSize)
	}
	return int(n), nil
}

// RuntimeOptions converts the configuration into crt options.
func (c *Config) RuntimeOptions(log *slog.Logger) (*crt.Options, error) {
	size, err := c.bufferSize()
	if err != nil {
		return nil, err
	}
	mode, err := stdio.ParseMode(c.Stdio.StdoutMode)
	if err != nil {
		return nil, err
	}
	opts := crt.DefaultOptions()
	opts.Logger = log
	opts.Stdio.BufferSize = size
	opts.Stdio.MaxStreams = c.Stdio.MaxStreams
	opts.Stdio.StdoutMode = mode
	return opts, nil
}

// NewMemory creates the configured memory. The returned function releases it.
func (c *Config) NewMemory() (malloc.Memory, func() error, error) {
	if c.Heap.Memory == "mapped" {
		m, err := malloc.NewMappedMemory(c.Heap.MaxPages)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
	m, err := malloc.NewLinearMemory(0, c.Heap.MaxPages)
	if err != nil {
		return nil, nil, err
	}
	return m, func() error { return nil }, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", cfg.Format)
}
