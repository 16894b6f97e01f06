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
	// Token gates room creation and join, shared with trusted clients.
	Token string `mapstructure:"token"`

	Media MediaConfig `mapstructure:"media"`
}

type MediaConfig struct {
	NumWorkers int      `mapstructure:"num_workers"`
	ListenIPs  []string `mapstructure:"listen_ips"`
	RTCMinPort uint16   `mapstructure:"rtc_min_port"`
	RTCMaxPort uint16   `mapstructure:"rtc_max_port"`
	// InitialOutgoingBitrate seeds the congestion controller per transport.
	InitialOutgoingBitrate int `mapstructure:"initial_outgoing_bitrate"`
	// MaxIncomingBitrate of zero disables the per-transport cap.
	MaxIncomingBitrate int `mapstructure:"max_incoming_bitrate"`
}

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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3016)
	v.SetDefault("static_path", "./public")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("media.num_workers", 2)
	v.SetDefault("media.listen_ips", []string{"127.0.0.1"})
	v.SetDefault("media.rtc_min_port", 10000)
	v.SetDefault("media.rtc_max_port", 10100)
	v.SetDefault("media.initial_outgoing_bitrate", 1000000)
	v.SetDefault("media.max_incoming_bitrate", 1500000)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
