package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SWARMMAN"

type Config struct {
	Engine      EngineConfig      `mapstructure:"engine"`
	Utilization UtilizationConfig `mapstructure:"utilization"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Slack       SlackConfig       `mapstructure:"slack"`
	EC2         EC2Config         `mapstructure:"ec2"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Mockd       MockdConfig       `mapstructure:"mockd"`
	Log         LogConfig         `mapstructure:"log"`
}

type EngineConfig struct {
	// DefaultManagerAddress is tried after every stored manager.
	DefaultManagerAddress string        `mapstructure:"default_manager_address"`
	Port                  int           `mapstructure:"port"`
	Timeout               time.Duration `mapstructure:"timeout"`
	APIVersion            string        `mapstructure:"api_version"`
	ForceLeave            bool          `mapstructure:"force_leave"`
}

type UtilizationConfig struct {
	SubtractCache                  bool     `mapstructure:"subtract_cache"`
	MemoryUnsupportedArchitectures []string `mapstructure:"memory_unsupported_architectures"`
}

type StorageConfig struct {
	Type        string `mapstructure:"type"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type QueueConfig struct {
	// SQSURL selects the SQS backend; the memory backend is used when empty.
	SQSURL            string        `mapstructure:"sqs_url"`
	Region            string        `mapstructure:"region"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

type EC2Config struct {
	Host        string        `mapstructure:"host"`
	TokenTTL    int           `mapstructure:"token_ttl"`
	Interval    time.Duration `mapstructure:"interval"`
	NodeAddress string        `mapstructure:"node_address"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type MockdConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads path (config.yaml when empty) and SWARMMAN_* environment
// variables over the defaults. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/swarmman")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.default_manager_address", "")
	v.SetDefault("engine.port", 2375)
	v.SetDefault("engine.timeout", 10*time.Second)
	v.SetDefault("engine.api_version", "1.43")
	v.SetDefault("engine.force_leave", false)

	v.SetDefault("utilization.subtract_cache", true)
	v.SetDefault("utilization.memory_unsupported_architectures", []string{})

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.sqlite_path", "swarmman.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("queue.sqs_url", "")
	v.SetDefault("queue.region", "")
	v.SetDefault("queue.poll_interval", 20*time.Second)
	v.SetDefault("queue.visibility_timeout", 60*time.Second)

	v.SetDefault("slack.token", "")
	v.SetDefault("slack.channel", "")

	v.SetDefault("ec2.host", "169.254.169.254")
	v.SetDefault("ec2.token_ttl", 21600)
	v.SetDefault("ec2.interval", 5*time.Second)
	v.SetDefault("ec2.node_address", "")

	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("mockd.port", "2375")

	v.SetDefault("log.level", "info")
}

func validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}

	if cfg.Engine.Port <= 0 || cfg.Engine.Port > 65535 {
		return fmt.Errorf("invalid engine port %d", cfg.Engine.Port)
	}

	if cfg.Queue.PollInterval > 20*time.Second && cfg.Queue.SQSURL != "" {
		return fmt.Errorf("queue poll interval %s exceeds the SQS maximum of 20s", cfg.Queue.PollInterval)
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}

	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}

	return level, nil
}
