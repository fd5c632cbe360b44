package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Broadcast drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNATS   = "nats"
)

// EnvPrefix namespaces environment overrides, e.g. TRIVIA_POSTGRES_URL.
const EnvPrefix = "TRIVIA"

type Config struct {
	Server struct {
		Port           string `yaml:"port"`
		PublishTimeout string `yaml:"publish_timeout"`
	} `yaml:"server"`
	Postgres struct {
		URL            string `yaml:"url"`
		ConnectTimeout string `yaml:"connect_timeout"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Broadcast struct {
		Driver  string `yaml:"driver"`
		NATSURL string `yaml:"nats_url"`
	} `yaml:"broadcast"`
	Quiz struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"quiz"`
	Game struct {
		PollInterval      string `yaml:"poll_interval"`
		RejectLateAnswers bool   `yaml:"reject_late_answers"`
		LateGrace         string `yaml:"late_grace"`
	} `yaml:"game"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default is an in-memory single-node setup.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.PublishTimeout = "2s"
	cfg.Postgres.ConnectTimeout = "10s"
	cfg.Broadcast.Driver = DriverMemory
	cfg.Quiz.CacheTTL = "10m"
	cfg.Game.PollInterval = "2s"
	cfg.Game.LateGrace = "2s"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path on top of Default, then applies TRIVIA_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate checks the settings that cannot fall back to a default.
func (c Config) Validate() error {
	switch c.Broadcast.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("broadcast driver redis needs redis.addr")
		}
	case DriverNATS:
		if c.Broadcast.NATSURL == "" {
			return errors.New("broadcast driver nats needs broadcast.nats_url")
		}
	default:
		return fmt.Errorf("unknown broadcast driver %q", c.Broadcast.Driver)
	}
	return nil
}

func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, dst := range map[string]*string{
		"server.port":              &cfg.Server.Port,
		"server.publish_timeout":   &cfg.Server.PublishTimeout,
		"postgres.url":             &cfg.Postgres.URL,
		"postgres.connect_timeout": &cfg.Postgres.ConnectTimeout,
		"redis.addr":               &cfg.Redis.Addr,
		"redis.password":           &cfg.Redis.Password,
		"broadcast.driver":         &cfg.Broadcast.Driver,
		"broadcast.nats_url":       &cfg.Broadcast.NATSURL,
		"quiz.cache_ttl":           &cfg.Quiz.CacheTTL,
		"game.poll_interval":       &cfg.Game.PollInterval,
		"game.late_grace":          &cfg.Game.LateGrace,
		"log.level":                &cfg.Log.Level,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("game.reject_late_answers") {
		cfg.Game.RejectLateAnswers = v.GetBool("game.reject_late_answers")
	}
	if v.IsSet("log.pretty") {
		cfg.Log.Pretty = v.GetBool("log.pretty")
	}
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
