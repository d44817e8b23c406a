package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Storage    Storage    `mapstructure:"storage"`
	Conference Conference `mapstructure:"conference"`
	Signal     Signal     `mapstructure:"signal"`

	CalendarFile string   `mapstructure:"calendar_file"`
	Recorders    []string `mapstructure:"recorders"`
	RedisURL     string   `mapstructure:"redis_url"`
}

type Storage struct {
	DBPath  string        `mapstructure:"db_path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Conference struct {
	Retention        time.Duration `mapstructure:"retention"`
	JanitorInterval  time.Duration `mapstructure:"janitor_interval"`
	DegradedRetry    time.Duration `mapstructure:"degraded_retry"`
	QueueSize        int           `mapstructure:"queue_size"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	MaxParticipants  int           `mapstructure:"max_participants"`
	MaxRooms         int           `mapstructure:"max_rooms"`
	MaxChatLength    int           `mapstructure:"max_chat_length"`
	HostLeavePolicy  string        `mapstructure:"host_leave_policy"`
}

type Signal struct {
	CommandsPerSecond float64       `mapstructure:"commands_per_second"`
	CommandBurst      int           `mapstructure:"command_burst"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	ICEServers        []string      `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.db_path", "meet.db")
	v.SetDefault("storage.timeout", "2s")

	v.SetDefault("conference.retention", "10m")
	v.SetDefault("conference.janitor_interval", "1m")
	v.SetDefault("conference.degraded_retry", "5s")
	v.SetDefault("conference.queue_size", 128)
	v.SetDefault("conference.subscriber_buffer", 64)
	v.SetDefault("conference.max_participants", 300)
	v.SetDefault("conference.max_rooms", 50)
	v.SetDefault("conference.max_chat_length", 4096)
	v.SetDefault("conference.host_leave_policy", "end")

	v.SetDefault("signal.commands_per_second", 20)
	v.SetDefault("signal.command_burst", 40)
	v.SetDefault("signal.command_timeout", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. A missing
// file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("MEET")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | DB: %s\n", cfg.Mode, cfg.Port, cfg.Storage.DBPath)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Conference.HostLeavePolicy {
	case "end", "promote":
	default:
		return fmt.Errorf("host_leave_policy must be end or promote, got %q", c.Conference.HostLeavePolicy)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.Signal.CommandsPerSecond <= 0 || c.Signal.CommandBurst <= 0 {
		return fmt.Errorf("signal rate limit must be positive")
	}
	return nil
}
