// Package config loads tool configuration from ini-style strata.conf
// files, with project-level settings layered over user-level ones and
// environment variables (STRATA_*) over both.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved configuration for one invocation.
type Config struct {
	// Engine is the default engine when a target URI does not say
	// ("sqlite", "pg", "mysql").
	Engine string

	// PlanFile is the plan path relative to the project root.
	PlanFile string

	// Target is the default target: a "db:" URI or the name of a
	// configured target.
	Target string

	// Registry overrides the registry location for SQLite targets.
	Registry string

	// User identifies the operator for plan entries and registry rows.
	UserName  string
	UserEmail string

	v *viper.Viper
}

// Load reads strata.conf from the project root, then ~/.config/strata,
// then the environment. A missing file is not an error; environment and
// defaults still apply.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("strata.conf")
	v.SetConfigType("ini")
	v.AddConfigPath(root)
	v.AddConfigPath("$HOME/.config/strata")
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("core.plan_file", "strata.plan")
	v.SetDefault("core.engine", "sqlite")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Config{
		Engine:    v.GetString("core.engine"),
		PlanFile:  v.GetString("core.plan_file"),
		Target:    v.GetString("core.target"),
		Registry:  v.GetString("core.registry"),
		UserName:  v.GetString("user.name"),
		UserEmail: v.GetString("user.email"),
		v:         v,
	}, nil
}

// TargetURI resolves a target argument: a "db:" URI passes through, a bare
// name looks up the configured [target.<name>] uri, and an empty argument
// falls back to core.target.
func (c *Config) TargetURI(arg string) (string, error) {
	if arg == "" {
		arg = c.Target
	}
	if arg == "" {
		return "", fmt.Errorf("no target specified and no core.target configured")
	}
	if strings.HasPrefix(arg, "db:") {
		return arg, nil
	}
	uri := c.v.GetString("target." + arg + ".uri")
	if uri == "" {
		return "", fmt.Errorf("unknown target %q: no target.%s.uri configured", arg, arg)
	}
	return uri, nil
}
