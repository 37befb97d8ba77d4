package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	RedisURL string `yaml:"redis_url"`

	CoinGeckoBaseURL string `yaml:"coingecko_base_url"`
	UpbitBaseURL     string `yaml:"upbit_base_url"`
	QuoteCurrency    string `yaml:"quote_currency"`

	GlobalCacheTTL time.Duration `yaml:"global_cache_ttl"`
	GlobalTimeout  time.Duration `yaml:"global_timeout"`

	TickerBatchSize    int           `yaml:"ticker_batch_size"`
	TickerBatchDelay   time.Duration `yaml:"ticker_batch_delay"`
	TickerRetryBackoff time.Duration `yaml:"ticker_retry_backoff"`
	TickerChunkTimeout time.Duration `yaml:"ticker_chunk_timeout"`

	CacheTTLMarket   time.Duration `yaml:"cache_ttl_market"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RateLimitPerMin  int           `yaml:"rate_limit_per_min"`
	CircuitFailLimit int           `yaml:"circuit_fail_limit"`
	CircuitCooldown  time.Duration `yaml:"circuit_cooldown"`
}

// MaxTickerBatch is Upbit's cap on market codes per ticker request.
const MaxTickerBatch = 100

func Default() Config {
	return Config{
		Port:               "8080",
		LogLevel:           "info",
		CoinGeckoBaseURL:   "https://api.coingecko.com/api/v3",
		UpbitBaseURL:       "https://api.upbit.com/v1",
		QuoteCurrency:      "KRW",
		GlobalCacheTTL:     60 * time.Second,
		GlobalTimeout:      10 * time.Second,
		TickerBatchSize:    MaxTickerBatch,
		TickerBatchDelay:   500 * time.Millisecond,
		TickerRetryBackoff: 2 * time.Second,
		TickerChunkTimeout: 10 * time.Second,
		CacheTTLMarket:     5 * time.Second,
		RequestTimeout:     12 * time.Second,
		RateLimitPerMin:    120,
		CircuitFailLimit:   5,
		CircuitCooldown:    30 * time.Second,
	}
}

// Load builds the config from defaults, the optional CONFIG_FILE yaml overlay
// and finally environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.CoinGeckoBaseURL = getEnv("COINGECKO_BASE_URL", cfg.CoinGeckoBaseURL)
	cfg.UpbitBaseURL = getEnv("UPBIT_BASE_URL", cfg.UpbitBaseURL)
	cfg.QuoteCurrency = getEnv("QUOTE_CURRENCY", cfg.QuoteCurrency)
	cfg.GlobalCacheTTL = getEnvDuration("GLOBAL_CACHE_TTL", cfg.GlobalCacheTTL)
	cfg.GlobalTimeout = getEnvDuration("GLOBAL_TIMEOUT", cfg.GlobalTimeout)
	cfg.TickerBatchSize = getEnvInt("TICKER_BATCH_SIZE", cfg.TickerBatchSize)
	cfg.TickerBatchDelay = getEnvMillis("TICKER_BATCH_DELAY_MS", cfg.TickerBatchDelay)
	cfg.TickerRetryBackoff = getEnvMillis("TICKER_RETRY_BACKOFF_MS", cfg.TickerRetryBackoff)
	cfg.TickerChunkTimeout = getEnvDuration("TICKER_CHUNK_TIMEOUT", cfg.TickerChunkTimeout)
	cfg.CacheTTLMarket = getEnvDuration("CACHE_TTL_MARKET", cfg.CacheTTLMarket)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.CircuitFailLimit = getEnvInt("CIRCUIT_FAIL_LIMIT", cfg.CircuitFailLimit)
	cfg.CircuitCooldown = getEnvDuration("CIRCUIT_COOLDOWN", cfg.CircuitCooldown)
}

func (c *Config) normalize() {
	if c.TickerBatchSize <= 0 || c.TickerBatchSize > MaxTickerBatch {
		c.TickerBatchSize = MaxTickerBatch
	}
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "KRW"
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(i) * time.Second
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(i) * time.Millisecond
}
