// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Storage struct {
		Root    string `mapstructure:"root"`
		Uploads string `mapstructure:"uploads"`
		Work    string `mapstructure:"work"`
	} `mapstructure:"storage"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Converter struct {
		Binary  string        `mapstructure:"binary"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"converter"`
	Render struct {
		DPI float64 `mapstructure:"dpi"`
	} `mapstructure:"render"`
	LLM struct {
		Model       string        `mapstructure:"model"`
		GeminiModel string        `mapstructure:"gemini_model"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`
	Credentials struct {
		RefreshInterval int `mapstructure:"refresh_interval"` // minutes, 0 disables
	} `mapstructure:"credentials"`
	Inbox struct {
		Path         string `mapstructure:"path"`
		CollectionID int64  `mapstructure:"collection_id"`
	} `mapstructure:"inbox"`
	Redis struct {
		Addr string        `mapstructure:"addr"`
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	NATS struct {
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

type PoolConfig struct {
	Cap        int           `mapstructure:"cap"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type PipelineConfig struct {
	Workers         int           `mapstructure:"workers"`
	FanoutFactor    int           `mapstructure:"fanout_factor"`
	FanoutCeiling   int           `mapstructure:"fanout_ceiling"`
	TargetLanguage  string        `mapstructure:"target_language"`
	SourceCode      string        `mapstructure:"source_code"`
	TargetCode      string        `mapstructure:"target_code"`
	PullTimeout     time.Duration `mapstructure:"pull_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	// A .env file is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// e.g., TRANSDOC_DATABASE_PATH will override the `database.path` key.
	v.SetEnvPrefix("TRANSDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./transdoc.db")
	v.SetDefault("storage.root", "./library")
	v.SetDefault("storage.uploads", "./uploads")
	v.SetDefault("storage.work", "")

	v.SetDefault("pool.cap", 50)
	v.SetDefault("pool.max_retries", 20)
	v.SetDefault("pool.retry_delay", "2s")

	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.fanout_factor", 2)
	v.SetDefault("pipeline.fanout_ceiling", 16)
	v.SetDefault("pipeline.target_language", "Simplified Chinese")
	v.SetDefault("pipeline.source_code", "en")
	v.SetDefault("pipeline.target_code", "zh")
	v.SetDefault("pipeline.pull_timeout", "1s")
	v.SetDefault("pipeline.shutdown_timeout", "5s")

	v.SetDefault("converter.binary", "soffice")
	v.SetDefault("converter.timeout", "120s")
	v.SetDefault("render.dpi", 150)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.gemini_model", "gemini-1.5-flash")
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("credentials.refresh_interval", 30)
	v.SetDefault("inbox.path", "")
	v.SetDefault("inbox.collection_id", 0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "transdoc.progress")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
