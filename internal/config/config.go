package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cron      CronConfig      `mapstructure:"cron"`
	Acceptor  AcceptorConfig  `mapstructure:"acceptor"`
	Lease     LeaseConfig     `mapstructure:"lease"`
	Queue     QueueConfig     `mapstructure:"queue"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cleanup string `mapstructure:"cleanup"`
}

// AcceptorConfig carries the static hardware parameters of the coin
// acceptors. CoinValue is the default denomination used by the linear
// fallback; it is parsed into a decimal at wiring time.
type AcceptorConfig struct {
	Slots         []int         `mapstructure:"slots"`
	DebounceTime  time.Duration `mapstructure:"debounce_time"`
	PulseDuration time.Duration `mapstructure:"pulse_duration"`
	IdleFactor    int           `mapstructure:"idle_factor"`
	PulsesPerCoin int           `mapstructure:"pulses_per_coin"`
	CoinValue     string        `mapstructure:"coin_value"`
}

type LeaseConfig struct {
	DefaultSeconds int `mapstructure:"default_seconds"`
	MaxSeconds     int `mapstructure:"max_seconds"`
}

type QueueConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerURL      string `mapstructure:"broker_url"`
	ClientID       string `mapstructure:"client_id"`
	EdgeTopic      string `mapstructure:"edge_topic"`
	AckTopicPrefix string `mapstructure:"ack_topic_prefix"`
	EventTopic     string `mapstructure:"event_topic"`
}

type RateLimitConfig struct {
	ClaimPerMinute int `mapstructure:"claim_per_minute"`
	Burst          int `mapstructure:"burst"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.cleanup", "@every 1m")
	v.SetDefault("acceptor.slots", []int{1})
	v.SetDefault("acceptor.debounce_time", "20ms")
	v.SetDefault("acceptor.pulse_duration", "50ms")
	v.SetDefault("acceptor.idle_factor", 3)
	v.SetDefault("acceptor.pulses_per_coin", 1)
	v.SetDefault("acceptor.coin_value", "5.00")
	v.SetDefault("lease.default_seconds", 300)
	v.SetDefault("lease.max_seconds", 3600)
	v.SetDefault("queue.retention", "1h")
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "kioskd")
	v.SetDefault("mqtt.edge_topic", "kiosk/acceptor/+/edge")
	v.SetDefault("mqtt.ack_topic_prefix", "kiosk/acceptor")
	v.SetDefault("mqtt.event_topic", "kiosk/events")
	v.SetDefault("rate_limit.claim_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
