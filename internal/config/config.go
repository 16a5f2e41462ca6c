// Package config loads the handful of construction-time tunables the kernel
// exposes: page size, the PagePool hard cap, and timing knobs, plus the demo
// server's listen address. There is nothing else to configure — everything
// else is wired together in process, not read from a file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// KernelConfig holds nested mapstructure sections loaded via viper.
type KernelConfig struct {
	PagePool struct {
		PageBytes        int `mapstructure:"page_bytes"`
		HardCapMegaBytes int `mapstructure:"hard_cap_megabytes"`
	} `mapstructure:"pagepool"`

	Worker struct {
		WaitTimeoutMS int `mapstructure:"wait_timeout_ms"`
	} `mapstructure:"worker"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// WaitTimeout returns the configured worker wait timeout, or 0 (meaning
// "use the package default") if unset.
func (c *KernelConfig) WaitTimeout() time.Duration {
	if c.Worker.WaitTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.Worker.WaitTimeoutMS) * time.Millisecond
}

// Load reads a YAML config file at path.
func Load(path string) (*KernelConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg KernelConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in defaults used when no config file is given.
func Default() *KernelConfig {
	cfg := &KernelConfig{}
	cfg.PagePool.PageBytes = 4096
	cfg.PagePool.HardCapMegaBytes = 1024
	cfg.Server.Addr = "127.0.0.1:6544"
	return cfg
}
