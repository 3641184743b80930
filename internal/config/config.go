package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "SAFEWAY_ETL_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	rssFeedsEnv        = "RSS_FEEDS"
	pollingIntervalEnv = "POLLING_INTERVAL"
	maxRetriesEnv      = "MAX_RETRIES"
	retryDelayEnv      = "RETRY_DELAY"
	numWorkersEnv      = "NUM_WORKERS"
	modelIDEnv         = "CLAUDE_MODEL_ID"
	inferenceURLEnv    = "INFERENCE_ENDPOINT"
	inferenceKeyEnv    = "INFERENCE_API_KEY"
	mapboxTokenEnv     = "MAPBOX_ACCESS_TOKEN"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds the settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Inference InferenceConfig `yaml:"inference"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig describes Postgres/PostGIS connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// FeedsConfig lists the RSS endpoints and how often to poll them.
type FeedsConfig struct {
	URLs            []string      `yaml:"urls"`
	PollingInterval time.Duration `yaml:"pollingInterval"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PipelineConfig sizes the worker pool and the article queue.
type PipelineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// InferenceConfig wires the text-inference backend used for classification
// and location extraction.
type InferenceConfig struct {
	Endpoint string `yaml:"endpoint"`
	ModelID  string `yaml:"modelId"`
	APIKey   string `yaml:"apiKey"`
}

// GeocoderConfig wires the Mapbox geocoding API.
type GeocoderConfig struct {
	AccessToken string        `yaml:"accessToken"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An explicit path beats the SAFEWAY_ETL_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(rssFeedsEnv); v != "" {
		c.Feeds.URLs = splitList(v)
	}
	if v := envSeconds(pollingIntervalEnv); v > 0 {
		c.Feeds.PollingInterval = v
	}
	if v := envInt(maxRetriesEnv); v > 0 {
		c.Feeds.MaxRetries = v
		c.Geocoder.MaxRetries = v
	}
	if v := envSeconds(retryDelayEnv); v > 0 {
		c.Feeds.RetryDelay = v
		c.Geocoder.RetryDelay = v
	}
	if v := envInt(numWorkersEnv); v > 0 {
		c.Pipeline.Workers = v
	}
	if v := os.Getenv(modelIDEnv); v != "" {
		c.Inference.ModelID = v
	}
	if v := os.Getenv(inferenceURLEnv); v != "" {
		c.Inference.Endpoint = v
	}
	if v := os.Getenv(inferenceKeyEnv); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv(mapboxTokenEnv); v != "" {
		c.Geocoder.AccessToken = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid %s=%q ignored", name, raw)
		return 0
	}
	return v
}

// envSeconds interprets a bare integer variable as seconds, keeping the
// original deployment's POLLING_INTERVAL/RETRY_DELAY semantics.
func envSeconds(name string) time.Duration {
	return time.Duration(envInt(name)) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if len(override.Feeds.URLs) > 0 {
		base.Feeds.URLs = override.Feeds.URLs
	}
	if override.Feeds.PollingInterval > 0 {
		base.Feeds.PollingInterval = override.Feeds.PollingInterval
	}
	if override.Feeds.MaxRetries > 0 {
		base.Feeds.MaxRetries = override.Feeds.MaxRetries
	}
	if override.Feeds.RetryDelay > 0 {
		base.Feeds.RetryDelay = override.Feeds.RetryDelay
	}
	if override.Feeds.RequestTimeout > 0 {
		base.Feeds.RequestTimeout = override.Feeds.RequestTimeout
	}

	if override.Pipeline.Workers > 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}
	if override.Pipeline.QueueSize > 0 {
		base.Pipeline.QueueSize = override.Pipeline.QueueSize
	}

	if override.Inference.Endpoint != "" {
		base.Inference.Endpoint = override.Inference.Endpoint
	}
	if override.Inference.ModelID != "" {
		base.Inference.ModelID = override.Inference.ModelID
	}
	if override.Inference.APIKey != "" {
		base.Inference.APIKey = override.Inference.APIKey
	}

	if override.Geocoder.AccessToken != "" {
		base.Geocoder.AccessToken = override.Geocoder.AccessToken
	}
	if override.Geocoder.MaxRetries > 0 {
		base.Geocoder.MaxRetries = override.Geocoder.MaxRetries
	}
	if override.Geocoder.RetryDelay > 0 {
		base.Geocoder.RetryDelay = override.Geocoder.RetryDelay
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: "postgres://postgres:@localhost:5432/news_db?sslmode=disable"},
		Feeds: FeedsConfig{
			URLs: []string{
				"https://www.mural.com.mx/rss/portada.xml",
				"https://www.elnorte.com/rss/portada.xml",
				"https://www.jornada.com.mx/rss/estados.xml?v=1",
			},
			PollingInterval: 2 * time.Hour,
			MaxRetries:      3,
			RetryDelay:      10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Pipeline: PipelineConfig{Workers: 3, QueueSize: 256},
		Inference: InferenceConfig{
			Endpoint: "https://bedrock-runtime.us-east-2.amazonaws.com",
			ModelID:  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
		},
		Geocoder: GeocoderConfig{
			MaxRetries: 3,
			RetryDelay: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
