package boot

import (
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"

	"github.com/go-lynx/hive"
	"github.com/go-lynx/hive/conf"
	"github.com/go-lynx/hive/log"
)

// LoadBootstrapConfig loads every configuration file under path, a file or a
// directory. Each file contributes its top-level keys; plugins read theirs by
// name.
func LoadBootstrapConfig(path string) (config.Config, error) {
	if path == "" {
		return nil, errors.New("configuration path is empty: please specify it via --conf or HIVE_CONFIG_PATH")
	}
	log.Infof("loading local bootstrap configuration from: %s", path)

	cfg := config.New(config.WithSource(file.NewSource(path)))
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	if err := validateConfig(cfg); err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg config.Config) error {
	if _, err := cfg.Value(conf.RootKey).Map(); err != nil {
		return fmt.Errorf("required configuration key '%s' is missing or invalid: %w", conf.RootKey, err)
	}
	return nil
}

// newLogger builds the process logger from hive.log.
func newLogger(cfg config.Config, env hive.Env) {
	var lc conf.Log
	_ = cfg.Value(conf.RootKey + ".log").Scan(&lc)
	log.SetLogger(log.NewLogger(log.Options{
		Level:   log.ParseLevel(lc.Level),
		Console: lc.Console,
		Fields: []any{
			"service.id", env.ServerID,
			"service.version", env.Version,
		},
	}))
}
