package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // relay zone lookups must not depend on the host zoneinfo

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/road-conditions/pkg/logging"
)

// Config is shared by the scraper and the relay. Values come from an optional
// YAML file, then environment variables, then defaults.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Sink      SinkConfig      `yaml:"sink"`
	Inventory InventoryConfig `yaml:"inventory"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Relay     RelayConfig     `yaml:"relay"`
	Portal    PortalConfig    `yaml:"portal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Influx    InfluxConfig    `yaml:"influx"`
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type SinkConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Token           string        `yaml:"token"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

type InventoryConfig struct {
	BaseURL       string        `yaml:"base_url"`
	AppID         string        `yaml:"app_id"`
	APIKey        string        `yaml:"api_key"`
	Object        string        `yaml:"object"`
	IPField       string        `yaml:"ip_field"`
	SensorIDField string        `yaml:"sensor_id_field"`
	LatField      string        `yaml:"lat_field"`
	LonField      string        `yaml:"lon_field"`
	LocationField string        `yaml:"location_field"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

type ScraperConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	Schema         string        `yaml:"schema"`
}

type RelayConfig struct {
	Rollback       time.Duration `yaml:"rollback"`
	ChunkSize      int           `yaml:"chunk_size"`
	Timezone       string        `yaml:"timezone"`
	PushgatewayURL string        `yaml:"pushgateway_url"`
}

type PortalConfig struct {
	Domain     string        `yaml:"domain"`
	ResourceID string        `yaml:"resource_id"`
	AppToken   string        `yaml:"app_token"`
	KeyID      string        `yaml:"key_id"`
	KeySecret  string        `yaml:"key_secret"`
	Timeout    time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr           string `yaml:"addr"`
	GRPCHealthAddr string `yaml:"grpc_health_addr"`
}

// MQTTConfig enables the live record feed when Host is set.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

func (c MQTTConfig) Enabled() bool { return c.Host != "" }

// InfluxConfig enables the time-series mirror when URL is set.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// Load reads path (skipped when empty), overlays the environment and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Dir = envStr("LOG_DIR", c.Log.Dir)
	c.Log.Level = envStr("LOG_LEVEL", c.Log.Level)

	c.Sink.Endpoint = envStr("PGREST_ENDPOINT", c.Sink.Endpoint)
	c.Sink.Token = envStr("PGREST_JWT", c.Sink.Token)

	c.Inventory.AppID = envStr("KNACK_APP_ID", c.Inventory.AppID)
	c.Inventory.APIKey = envStr("KNACK_API_KEY", c.Inventory.APIKey)
	c.Inventory.BaseURL = envStr("KNACK_BASE_URL", c.Inventory.BaseURL)

	c.Scraper.Interval = envDuration("SLEEP_INTERVAL", c.Scraper.Interval)
	c.Scraper.Timeout = envDuration("TIMEOUT", c.Scraper.Timeout)
	c.Scraper.MaxAttempts = envInt("MAX_ATTEMPTS", c.Scraper.MaxAttempts)
	c.Scraper.Schema = envStr("SCHEMA_VARIANT", c.Scraper.Schema)

	c.Relay.Rollback = envDuration("RELAY_ROLLBACK", c.Relay.Rollback)
	c.Relay.ChunkSize = envInt("RELAY_CHUNK_SIZE", c.Relay.ChunkSize)
	c.Relay.Timezone = envStr("RELAY_TIMEZONE", c.Relay.Timezone)
	c.Relay.PushgatewayURL = envStr("PUSHGATEWAY_URL", c.Relay.PushgatewayURL)

	c.Portal.Domain = envStr("SOCRATA_DOMAIN", c.Portal.Domain)
	c.Portal.ResourceID = envStr("SOCRATA_RESOURCE_ID", c.Portal.ResourceID)
	c.Portal.AppToken = envStr("SOCRATA_APP_TOKEN", c.Portal.AppToken)
	c.Portal.KeyID = envStr("SOCRATA_API_KEY_ID", c.Portal.KeyID)
	c.Portal.KeySecret = envStr("SOCRATA_API_KEY_SECRET", c.Portal.KeySecret)

	c.Metrics.Addr = envStr("METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.GRPCHealthAddr = envStr("GRPC_HEALTH_ADDR", c.Metrics.GRPCHealthAddr)

	c.MQTT.Host = envStr("MQTT_HOST", c.MQTT.Host)
	c.MQTT.Port = envInt("MQTT_PORT", c.MQTT.Port)
	c.MQTT.User = envStr("MQTT_USER", c.MQTT.User)
	c.MQTT.Password = envStr("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = envStr("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.TopicPrefix = envStr("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.Influx.URL = envStr("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = envStr("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = envStr("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = envStr("INFLUX_BUCKET", c.Influx.Bucket)
	c.Influx.Measurement = envStr("INFLUX_MEASUREMENT", c.Influx.Measurement)
}

func (c *Config) applyDefaults() {
	if c.Log.Dir == "" {
		c.Log.Dir = "log"
	}
	if c.Sink.BreakerFailures <= 0 {
		c.Sink.BreakerFailures = 5
	}
	if c.Sink.BreakerOpenFor <= 0 {
		c.Sink.BreakerOpenFor = 30 * time.Second
	}

	if c.Inventory.BaseURL == "" {
		c.Inventory.BaseURL = "https://api.knack.com"
	}
	if c.Inventory.Object == "" {
		c.Inventory.Object = "object_190"
	}
	if c.Inventory.IPField == "" {
		c.Inventory.IPField = "field_3595"
	}
	if c.Inventory.SensorIDField == "" {
		c.Inventory.SensorIDField = "field_3598"
	}
	if c.Inventory.Timeout <= 0 {
		c.Inventory.Timeout = 30 * time.Second
	}
	if c.Inventory.MaxAttempts <= 0 {
		c.Inventory.MaxAttempts = 3
	}

	if c.Scraper.Interval <= 0 {
		c.Scraper.Interval = 60 * time.Second
	}
	if c.Scraper.Timeout <= 0 {
		c.Scraper.Timeout = 60 * time.Second
	}
	if c.Scraper.MaxAttempts <= 0 {
		c.Scraper.MaxAttempts = 5
	}
	if c.Scraper.BackoffInitial <= 0 {
		c.Scraper.BackoffInitial = time.Second
	}
	if c.Scraper.BackoffMax <= 0 {
		c.Scraper.BackoffMax = 10 * time.Second
	}
	if c.Scraper.Schema == "" {
		c.Scraper.Schema = "road-v2"
	}

	if c.Relay.Rollback <= 0 {
		c.Relay.Rollback = 300 * time.Second
	}
	if c.Relay.ChunkSize <= 0 {
		c.Relay.ChunkSize = 1000
	}
	if c.Relay.Timezone == "" {
		c.Relay.Timezone = "US/Central"
	}

	if c.Portal.Domain == "" {
		c.Portal.Domain = "data.austintexas.gov"
	}
	if c.Portal.ResourceID == "" {
		c.Portal.ResourceID = "ypbq-i42h"
	}
	if c.Portal.Timeout <= 0 {
		c.Portal.Timeout = 45 * time.Second
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9108"
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "road-conditions-scraper"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "road/conditions"
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = "road_conditions"
	}
}

// ValidateScraper checks what the polling process needs to start.
func (c *Config) ValidateScraper() error {
	var errs []error
	if c.Sink.Endpoint == "" {
		errs = append(errs, errors.New("PGREST_ENDPOINT is required"))
	}
	if c.Sink.Token == "" {
		errs = append(errs, errors.New("PGREST_JWT is required"))
	}
	if c.Inventory.AppID == "" || c.Inventory.APIKey == "" {
		errs = append(errs, errors.New("KNACK_APP_ID and KNACK_API_KEY are required"))
	}
	if c.Influx.Enabled() && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx mirror needs INFLUX_ORG and INFLUX_BUCKET"))
	}
	return errors.Join(errs...)
}

// ValidateRelay checks what one relay invocation needs.
func (c *Config) ValidateRelay() error {
	var errs []error
	if c.Sink.Endpoint == "" {
		errs = append(errs, errors.New("PGREST_ENDPOINT is required"))
	}
	if c.Sink.Token == "" {
		errs = append(errs, errors.New("PGREST_JWT is required"))
	}
	if c.Portal.AppToken == "" {
		errs = append(errs, errors.New("SOCRATA_APP_TOKEN is required"))
	}
	if c.Portal.KeyID == "" || c.Portal.KeySecret == "" {
		errs = append(errs, errors.New("SOCRATA_API_KEY_ID and SOCRATA_API_KEY_SECRET are required"))
	}
	if _, err := time.LoadLocation(c.Relay.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("relay timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Logging returns the logger settings, filling file name and level per binary.
func (c *Config) Logging(defaultFile, defaultLevel string) logging.Config {
	lc := logging.Config{Dir: c.Log.Dir, File: c.Log.File, Level: c.Log.Level}
	if lc.File == "" {
		lc.File = defaultFile
	}
	if lc.Level == "" {
		lc.Level = defaultLevel
	}
	return lc
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or bare seconds ("60").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
