package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/recovery"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	applyPlatform(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	defRec := recovery.DefaultConfig()
	if cfg.Recovery.Breaker.FailureThreshold == 0 {
		cfg.Recovery.Breaker = defRec.Breaker
	}
	if cfg.Recovery.Retry.MaxAttempts == 0 {
		cfg.Recovery.Retry = defRec.Retry
	}
	if cfg.Recovery.RecentErrorsCap == 0 {
		cfg.Recovery.RecentErrorsCap = defRec.RecentErrorsCap
	}
	if cfg.Recovery.ActionsCap == 0 {
		cfg.Recovery.ActionsCap = defRec.ActionsCap
	}
	if cfg.Recovery.AlertsCap == 0 {
		cfg.Recovery.AlertsCap = defRec.AlertsCap
	}
	if cfg.Recovery.ErrorRateThreshold == 0 {
		cfg.Recovery.ErrorRateThreshold = defRec.ErrorRateThreshold
	}
	if cfg.Recovery.ErrorRateWindow == 0 {
		cfg.Recovery.ErrorRateWindow = defRec.ErrorRateWindow
	}
	if cfg.Recovery.MetricsInterval == 0 {
		cfg.Recovery.MetricsInterval = defRec.MetricsInterval
	}
	defDB := dbrecovery.DefaultConfig()
	if cfg.Database.HealthInterval == 0 {
		cfg.Database.HealthInterval = defDB.HealthInterval
	}
	if cfg.Database.OperationTimeout == 0 {
		cfg.Database.OperationTimeout = defDB.OperationTimeout
	}
	if cfg.Database.QueueTimeout == 0 {
		cfg.Database.QueueTimeout = defDB.QueueTimeout
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = defDB.SlowThreshold
	}
	if cfg.Database.Breaker.FailureThreshold == 0 {
		cfg.Database.Breaker = defDB.Breaker
	}
	if cfg.Database.Retry.MaxAttempts == 0 {
		cfg.Database.Retry = defDB.Retry
	}

	if cfg.Timeouts.Default == 0 {
		cfg.Timeouts.Default = 30 * time.Second
	}
}

// applyEnv lets the environment select the backing stores.
func applyEnv(cfg *AppConfig) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.Postgres.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" && cfg.Redis.URL == "" {
		cfg.Redis.URL = url
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}
}

// applyPlatform tightens defaults on constrained hosting platforms.
// Render instances cold-start and throttle, so probes and breakers need to
// react faster there.
func applyPlatform(cfg *AppConfig) {
	if cfg.Platform == "" {
		if os.Getenv("RENDER") != "" {
			cfg.Platform = "render"
		} else {
			cfg.Platform = "local"
		}
	}

	if cfg.Platform == "render" {
		if cfg.Database.HealthInterval > 30*time.Second {
			cfg.Database.HealthInterval = 30 * time.Second
		}
		if cfg.Database.OperationTimeout > 20*time.Second {
			cfg.Database.OperationTimeout = 20 * time.Second
		}
		if cfg.Recovery.Breaker.FailureThreshold > 3 {
			cfg.Recovery.Breaker.FailureThreshold = 3
		}
		if cfg.Database.Breaker.FailureThreshold > 3 {
			cfg.Database.Breaker.FailureThreshold = 3
		}
		if cfg.Timeouts.Default > 20*time.Second {
			cfg.Timeouts.Default = 20 * time.Second
		}
	}
}
