package main

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/ravynsoft/go-dispatch/config"
)

// loadConfig reads the configuration named by --config, then applies the
// flag overrides that were set on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	v := config.NewViper()
	if path := c.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	overrideFlags(c, v)
	return config.Load(v)
}

var flagKeys = map[string]string{
	"log-level":      "logging.level",
	"workers":        "pool.workers",
	"max-overcommit": "pool.max_overcommit",
	"bind":           "pool.bind_os_threads",
	"cache-limit":    "engine.cache_limit",
	"history":        "engine.instrumentation",
	"metrics-addr":   "metrics.addr",
}

func overrideFlags(c *cli.Context, v *viper.Viper) {
	for _, cc := range c.Lineage() {
		for flag, key := range flagKeys {
			if cc.IsSet(flag) {
				v.Set(key, cc.Value(flag))
			}
		}
	}
}
