package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis    RedisConfig
	Broker   BrokerConfig
	Feed     FeedConfig
	Strategy StrategyConfig
	Runtime  RuntimeConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BrokerConfig struct {
	BaseUrl    string
	TimeoutSec int
}

type FeedConfig struct {
	URL     string
	Enabled bool
}

type StrategyConfig struct {
	ID        string
	ParamsKey string
	Remark    string
}

type RuntimeConfig struct {
	Log LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {

	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	cfg.Redis = RedisConfig{
		Addr:     viper.GetString("redis.addr"),
		Password: envSub("redis.password"),
		DB:       viper.GetInt("redis.db"),
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	cfg.Broker = BrokerConfig{
		BaseUrl:    viper.GetString("broker.base_url"),
		TimeoutSec: viper.GetInt("broker.timeout_sec"),
	}
	if cfg.Broker.TimeoutSec <= 0 {
		cfg.Broker.TimeoutSec = 10
	}

	cfg.Feed = FeedConfig{
		URL:     viper.GetString("feed.url"),
		Enabled: viper.GetBool("feed.enabled"),
	}

	cfg.Strategy = StrategyConfig{
		ID:        viper.GetString("strategy.id"),
		ParamsKey: viper.GetString("strategy.params_key"),
		Remark:    viper.GetString("strategy.remark"),
	}
	if cfg.Strategy.ParamsKey == "" {
		cfg.Strategy.ParamsKey = "params:" + cfg.Strategy.ID
	}
	if cfg.Strategy.Remark == "" {
		cfg.Strategy.Remark = "boxbot"
	}

	cfg.Runtime = RuntimeConfig{
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	return cfg, nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
