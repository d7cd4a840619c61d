// Package config loads the hub configuration from grid_configuration.yml,
// HUB_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/pool"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultConfigName = "grid_configuration"

	PortKey            = "hub.port"
	PollingIntervalKey = "hub.remoteControlPollingIntervalInSeconds"
	MaxIdleKey         = "hub.sessionMaxIdleTimeInSeconds"
	MaxWaitKey         = "hub.newSessionMaxWaitTimeInSeconds"
	JournalKey         = "hub.journal"
	EnvironmentsKey    = "hub.environments"
)

type EnvironmentConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Browser string `mapstructure:"browser" yaml:"browser"`
}

type HubConfig struct {
	Port                                  int    `mapstructure:"port" yaml:"port"`
	RemoteControlPollingIntervalInSeconds int    `mapstructure:"remoteControlPollingIntervalInSeconds" yaml:"remoteControlPollingIntervalInSeconds"`
	SessionMaxIdleTimeInSeconds           int    `mapstructure:"sessionMaxIdleTimeInSeconds" yaml:"sessionMaxIdleTimeInSeconds"`
	NewSessionMaxWaitTimeInSeconds        int    `mapstructure:"newSessionMaxWaitTimeInSeconds" yaml:"newSessionMaxWaitTimeInSeconds"`
	Journal                               string `mapstructure:"journal" yaml:"journal"`

	Environments []EnvironmentConfig `mapstructure:"environments" yaml:"environments"`
}

type Config struct {
	Hub HubConfig `mapstructure:"hub" yaml:"hub"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(PortKey, 4444)
	v.SetDefault(PollingIntervalKey, 180)
	v.SetDefault(MaxIdleKey, 300)
	// negative waits forever
	v.SetDefault(MaxWaitKey, -1)
	v.SetDefault(JournalKey, "")
	v.SetDefault(EnvironmentsKey, []map[string]interface{}{
		{"name": "firefox on linux", "browser": "*firefox"},
	})
}

// Load reads the configuration into v. With an empty path it looks for
// grid_configuration.yml in the working directory and falls back to the
// defaults if there is none.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Hub.Port < 1 || c.Hub.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Hub.Port))
	}
	if c.Hub.RemoteControlPollingIntervalInSeconds <= 0 {
		errs = append(errs, fmt.Errorf("remoteControlPollingIntervalInSeconds must be positive"))
	}
	if c.Hub.SessionMaxIdleTimeInSeconds <= 0 {
		errs = append(errs, fmt.Errorf("sessionMaxIdleTimeInSeconds must be positive"))
	}
	seen := make(map[string]bool)
	for i, env := range c.Hub.Environments {
		if strings.TrimSpace(env.Name) == "" {
			errs = append(errs, fmt.Errorf("environment #%d has no name", i+1))
			continue
		}
		if seen[env.Name] {
			errs = append(errs, fmt.Errorf("environment '%s' is defined twice", env.Name))
		}
		seen[env.Name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Hub.RemoteControlPollingIntervalInSeconds) * time.Second
}

func (c *Config) MaxIdle() time.Duration {
	return time.Duration(c.Hub.SessionMaxIdleTimeInSeconds) * time.Second
}

// MaxWait is the reservation bound passed to the pool.
func (c *Config) MaxWait() time.Duration {
	if c.Hub.NewSessionMaxWaitTimeInSeconds < 0 {
		return pool.WaitForever
	}
	return time.Duration(c.Hub.NewSessionMaxWaitTimeInSeconds) * time.Second
}

func (c *Config) Environments() []environment.Environment {
	var envs []environment.Environment
	for _, env := range c.Hub.Environments {
		envs = append(envs, environment.Environment{Name: env.Name, Browser: env.Browser})
	}
	return envs
}

// YAML renders the effective configuration as a YAML document.
func (c *Config) YAML() (string, error) {
	bytes, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return "---\n" + string(bytes), nil
}
