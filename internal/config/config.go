package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FRANCHISE"

type RealtimeConfig struct {
	Path         string        `mapstructure:"path"`
	Bus          string        `mapstructure:"bus"`
	Channel      string        `mapstructure:"channel"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type PushConfig struct {
	Provider                string `mapstructure:"provider"`
	VAPIDPublicKey          string `mapstructure:"vapid_public_key"`
	FirebaseCredentialsFile string `mapstructure:"firebase_credentials_file"`
	DispatchMode            string `mapstructure:"dispatch_mode"`
	MaxConcurrency          int    `mapstructure:"max_concurrency"`
}

type NotificationsConfig struct {
	FanOutPolicy    string `mapstructure:"fanout_policy"`
	PageSize        int    `mapstructure:"page_size"`
	ViewersPageSize int    `mapstructure:"viewers_page_size"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type Config struct {
	DatabaseURL    string              `mapstructure:"database_url"`
	ServerPort     string              `mapstructure:"server_port"`
	JWTSecret      string              `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration       `mapstructure:"token_ttl"`
	LogLevel       string              `mapstructure:"log_level"`
	AllowedOrigins []string            `mapstructure:"allowed_origins"`
	Realtime       RealtimeConfig      `mapstructure:"realtime"`
	Push           PushConfig          `mapstructure:"push"`
	Notifications  NotificationsConfig `mapstructure:"notifications"`
	Temporal       TemporalConfig      `mapstructure:"temporal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("realtime.path", "/ws")
	v.SetDefault("realtime.bus", "local")
	v.SetDefault("realtime.channel", "franchise_realtime")
	v.SetDefault("realtime.ping_interval", 25*time.Second)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.send_buffer", 32)

	v.SetDefault("push.provider", "log")
	v.SetDefault("push.dispatch_mode", "inline")
	v.SetDefault("push.max_concurrency", 8)

	v.SetDefault("notifications.fanout_policy", "fail_fast")
	v.SetDefault("notifications.page_size", 50)
	v.SetDefault("notifications.viewers_page_size", 100)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "FRANCHISE_PUSH")
}

// Load reads configuration from an optional .env file, a YAML config file and
// FRANCHISE_* environment variables, in increasing order of precedence.
// args are the command line arguments without the program name.
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("franchise-hub", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to a YAML config file")
	flags.String("port", "", "HTTP listen port")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{"database_url", "jwt_secret", "push.vapid_public_key", "push.firebase_credentials_file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.BindPFlag("server_port", flags.Lookup("port")); err != nil {
		return nil, fmt.Errorf("bind port flag: %w", err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		// Look for config in the current directory and ./config
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("jwt_secret must be set")
	}
	switch c.Realtime.Bus {
	case "local":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("realtime.bus=postgres requires database_url")
		}
	default:
		return fmt.Errorf("unknown realtime.bus %q", c.Realtime.Bus)
	}
	switch c.Push.Provider {
	case "log":
	case "firebase":
		if c.Push.FirebaseCredentialsFile == "" {
			return errors.New("push.provider=firebase requires push.firebase_credentials_file")
		}
	default:
		return fmt.Errorf("unknown push.provider %q", c.Push.Provider)
	}
	switch c.Push.DispatchMode {
	case "inline", "temporal":
	default:
		return fmt.Errorf("unknown push.dispatch_mode %q", c.Push.DispatchMode)
	}
	switch c.Notifications.FanOutPolicy {
	case "fail_fast", "best_effort":
	default:
		return fmt.Errorf("unknown notifications.fanout_policy %q", c.Notifications.FanOutPolicy)
	}
	if c.Notifications.PageSize <= 0 {
		c.Notifications.PageSize = 50
	}
	if c.Notifications.ViewersPageSize <= 0 {
		c.Notifications.ViewersPageSize = 100
	}
	if c.Push.MaxConcurrency <= 0 {
		c.Push.MaxConcurrency = 8
	}
	return nil
}
