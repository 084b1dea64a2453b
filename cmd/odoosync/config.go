package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/cron"
)

// Config is the binary's file and environment configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Odoo      OdooConfig      `mapstructure:"odoo"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Sync      odoosync.Config `mapstructure:"sync"`
	Cron      cron.Schedules  `mapstructure:"cron"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	WordPress WordPressConfig `mapstructure:"wordpress"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Modules   []ModuleConfig  `mapstructure:"modules"`
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	// Driver is postgres, mysql, sqlite or memory.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig enables Redis for locks and breaker state. An empty Addr
// keeps both in the job store and in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OdooConfig holds the remote connection.
type OdooConfig struct {
	URL       string        `mapstructure:"url"`
	Database  string        `mapstructure:"database"`
	Username  string        `mapstructure:"username"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
}

// APIConfig configures the HTTP surface of serve.
type APIConfig struct {
	// Listen is the address to bind. Empty disables the API.
	Listen          string        `mapstructure:"listen"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives the log instead of stderr and is rotated.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// NotifyConfig selects where failure alerts go besides the log.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// WordPressConfig points pulls at the WordPress side.
type WordPressConfig struct {
	// CallbackURL receives pulled records. Empty disables pulls.
	CallbackURL string        `mapstructure:"callback_url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AuditConfig enables the audit trail, written to the process log under
// the "audit" logger.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Actions limits the trail to these actions. Empty records all.
	Actions []string `mapstructure:"actions"`
}

// ModuleConfig declares a table-driven module adapter.
type ModuleConfig struct {
	Name     string         `mapstructure:"name"`
	Entities []EntityConfig `mapstructure:"entities"`
}

// EntityConfig maps one WordPress entity type to an Odoo model.
type EntityConfig struct {
	Type      string   `mapstructure:"type"`
	OdooModel string   `mapstructure:"odoo_model"`
	Fields    []string `mapstructure:"fields"`
}

func setDefaults(v *viper.Viper) {
	def := odoosync.DefaultConfig()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "odoosync.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("odoo.url", "")
	v.SetDefault("odoo.database", "")
	v.SetDefault("odoo.username", "")
	v.SetDefault("odoo.api_key", "")
	v.SetDefault("odoo.timeout", 30*time.Second)
	v.SetDefault("odoo.rate_limit", 0)
	v.SetDefault("odoo.rate_burst", 1)
	v.SetDefault("api.listen", "")
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("wordpress.callback_url", "")
	v.SetDefault("wordpress.token", "")
	v.SetDefault("wordpress.timeout", 15*time.Second)
	v.SetDefault("audit.enabled", false)

	v.SetDefault("sync.batch_size", def.BatchSize)
	v.SetDefault("sync.time_budget", def.TimeBudget)
	v.SetDefault("sync.run_lock_timeout", def.RunLockTimeout)
	v.SetDefault("sync.push_lock_timeout", def.PushLockTimeout)
	v.SetDefault("sync.default_max_attempts", def.DefaultMaxAttempts)
	v.SetDefault("sync.backoff_unit", def.BackoffUnit)
	v.SetDefault("sync.backoff_strategy", def.BackoffStrategy)
	v.SetDefault("sync.stale_timeout", def.StaleTimeout)
	v.SetDefault("sync.dry_run", def.DryRun)
	v.SetDefault("sync.error_message_max", def.ErrorMessageMax)
	v.SetDefault("sync.cleanup_after", def.CleanupAfter)
	v.SetDefault("sync.breaker.threshold", def.Breaker.Threshold)
	v.SetDefault("sync.breaker.recovery_delay", def.Breaker.RecoveryDelay)
	v.SetDefault("sync.notify.failure_threshold", def.Notify.FailureThreshold)
	v.SetDefault("sync.notify.cooldown", def.Notify.Cooldown)

	sch := cron.DefaultSchedules()
	v.SetDefault("cron.process_queue", sch.ProcessQueue)
	v.SetDefault("cron.reap_stale", sch.ReapStale)
	v.SetDefault("cron.cleanup", sch.Cleanup)
}

// loadConfig reads path, or odoosync.yaml from the usual places when path
// is empty, and overlays ODOOSYNC_* environment variables. A missing file
// is fine when path is empty.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ODOOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("odoosync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/odoosync")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".odoosync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
