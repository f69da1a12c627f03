package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	defaultAppName        = "walletd"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	configFileEnvVar      = "CONFIG_FILE"

	// ModeTicker runs the processor as an in-process ticker loop.
	ModeTicker = "ticker"
	// ModeAsynq dispatches ticks through an asynq scheduler backed by Redis.
	ModeAsynq = "asynq"
)

// Config captures application runtime configuration.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseURL      string
	RedisURL         string
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
	ScheduleTimezone string
	Processor        Processor
	Bank             Bank
}

// Processor configures the withdrawal processor.
type Processor struct {
	Interval     time.Duration
	BatchSize    int
	Concurrency  int
	ReclaimAfter time.Duration
	Embedded     bool
	Mode         string
}

// Bank configures the payout collaborator. An empty URL selects the static stub.
type Bank struct {
	URL     string
	Timeout time.Duration
}

// New returns a viper instance carrying defaults and environment bindings.
// Nested keys map to upper-case variables: processor.interval -> PROCESSOR_INTERVAL.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("app.name", defaultAppName)
	v.SetDefault("app.env", defaultAppEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("shutdown_timeout", defaultShutdownDelay)
	v.SetDefault("idempotency_ttl", defaultIdempotencyTTL)
	v.SetDefault("schedule_timezone", "UTC")
	v.SetDefault("processor.interval", time.Minute)
	v.SetDefault("processor.batch_size", 64)
	v.SetDefault("processor.concurrency", 8)
	v.SetDefault("processor.reclaim_after", 5*time.Minute)
	v.SetDefault("processor.embedded", false)
	v.SetDefault("processor.mode", ModeTicker)
	v.SetDefault("bank.url", "")
	v.SetDefault("bank.timeout", 10*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from defaults, an optional file and the environment.
// file overrides CONFIG_FILE when non-empty.
func Load(file string) (Config, error) {
	v := New()

	if file == "" {
		file = os.Getenv(configFileEnvVar)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates a populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		Port:             v.GetString("port"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		DatabaseURL:      v.GetString("database_url"),
		RedisURL:         v.GetString("redis_url"),
		ShutdownPeriod:   v.GetDuration("shutdown_timeout"),
		IdempotencyTTL:   v.GetDuration("idempotency_ttl"),
		ScheduleTimezone: v.GetString("schedule_timezone"),
		Processor: Processor{
			Interval:     v.GetDuration("processor.interval"),
			BatchSize:    v.GetInt("processor.batch_size"),
			Concurrency:  v.GetInt("processor.concurrency"),
			ReclaimAfter: v.GetDuration("processor.reclaim_after"),
			Embedded:     v.GetBool("processor.embedded"),
			Mode:         strings.ToLower(v.GetString("processor.mode")),
		},
		Bank: Bank{
			URL:     v.GetString("bank.url"),
			Timeout: v.GetDuration("bank.timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
	}

	if _, err := time.LoadLocation(c.ScheduleTimezone); err != nil {
		return fmt.Errorf("invalid schedule_timezone %q: %w", c.ScheduleTimezone, err)
	}

	switch c.Processor.Mode {
	case ModeTicker:
	case ModeAsynq:
		if c.RedisURL == "" {
			return fmt.Errorf("processor mode %s requires REDIS_URL", ModeAsynq)
		}
	default:
		return fmt.Errorf("unknown processor mode %q", c.Processor.Mode)
	}

	if c.Processor.ReclaimAfter < 2*c.Bank.Timeout {
		return fmt.Errorf("processor.reclaim_after (%s) must be at least twice bank.timeout (%s)", c.Processor.ReclaimAfter, c.Bank.Timeout)
	}
	return nil
}

// IsDevelopment reports whether in-memory backends are acceptable.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == defaultAppEnv || c.AppEnv == "test"
}

// Location returns the time zone used for schedule times without an offset.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
