package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/loyalty-rewards/internal/loyalty"
)

// Config holds all configuration for the rewards worker
type Config struct {
	Shopify   ShopifyConfig   `yaml:"shopify"`
	Evolution EvolutionConfig `yaml:"evolution"`
	SES       SESConfig       `yaml:"ses"`
	Rewards   RewardsConfig   `yaml:"rewards"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Lock      LockConfig      `yaml:"lock"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// ShopifyConfig holds Shopify Admin API settings
type ShopifyConfig struct {
	ShopName       string `yaml:"shop_name"` // e.g. "my-store.myshopify.com"
	AccessToken    string `yaml:"access_token"`
	ShopURL        string `yaml:"shop_url"` // public storefront, used for discount links
	APIVersion     string `yaml:"api_version"`
	BaseURL        string `yaml:"base_url"` // overrides https://<shop_name>/admin/api/<api_version>
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c ShopifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EvolutionConfig holds the Evolution API (WhatsApp gateway) settings
type EvolutionConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Instance       string `yaml:"instance"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c EvolutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES settings for the email fallback channel
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	Subject   string `yaml:"subject"`
	Enabled   bool   `yaml:"enabled"`
}

// TierConfig is one loyalty level as written in YAML
type TierConfig struct {
	Threshold       float64 `yaml:"threshold"`
	DiscountPercent int     `yaml:"discount_percent"`
}

// RewardsConfig holds the loyalty program settings
type RewardsConfig struct {
	Tiers              []TierConfig `yaml:"tiers"`
	CouponValidityDays int          `yaml:"coupon_validity_days"`
	RecordMaxAgeDays   int          `yaml:"record_max_age_days"`
	StoreName          string       `yaml:"store_name"`
	SupportPhone       string       `yaml:"support_phone"`
	PhoneCountryCode   string       `yaml:"phone_country_code"`
	MessageTemplate    string       `yaml:"message_template"`
	DateLayout         string       `yaml:"date_layout"`
}

// CouponValidity returns how long an issued coupon stays valid
func (c RewardsConfig) CouponValidity() time.Duration {
	return time.Duration(c.CouponValidityDays) * 24 * time.Hour
}

// LoyaltyTiers returns the configured table as loyalty tiers
func (c RewardsConfig) LoyaltyTiers() loyalty.Tiers {
	tiers := make(loyalty.Tiers, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		tiers = append(tiers, loyalty.Tier{Threshold: t.Threshold, DiscountPercent: t.DiscountPercent})
	}
	return tiers
}

// RecordMaxAge returns the age at which a send record is purged
func (c RewardsConfig) RecordMaxAge() time.Duration {
	return time.Duration(c.RecordMaxAgeDays) * 24 * time.Hour
}

// PacingConfig bounds the randomized delay between outbound notifications
type PacingConfig struct {
	MinDelaySeconds int `yaml:"min_delay_seconds"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
}

// MinDelay returns the lower pacing bound as a duration
func (c PacingConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySeconds) * time.Second
}

// MaxDelay returns the upper pacing bound as a duration
func (c PacingConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

// ScheduleConfig holds the daily run time
type ScheduleConfig struct {
	At       string `yaml:"at"`       // "HH:MM"
	Timezone string `yaml:"timezone"` // IANA name, empty for local time
}

// Location resolves the configured time zone
func (c ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LedgerConfig selects and configures the send-once ledger store
type LedgerConfig struct {
	Type          string `yaml:"type"` // file, s3, dynamodb, postgres, redis
	Path          string `yaml:"path"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Key         string `yaml:"s3_key"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // empty uses the default credential chain
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	Name          string `yaml:"name"` // namespace inside shared stores
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c LedgerConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// LockConfig selects the run lock backend
type LockConfig struct {
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
	Key         string `yaml:"key"`
	TTLMinutes  int    `yaml:"ttl_minutes"`
}

// TTL returns the lock lease as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ServerConfig holds the optional admin HTTP server configuration
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true)
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// DefaultMessageTemplate is the Liquid body used when rewards.message_template is empty
const DefaultMessageTemplate = `Hi {{ first_name | default: "there" }},

Thank you for passing {{ tier }} in purchases with {{ store_name }}. As a thank-you for your loyalty we'd like to offer you a special {{ discount }}% discount on your next order.

To use it, follow this link: {{ discount_url }}

This offer is valid until {{ expires_at }}, so don't wait too long.

The {{ store_name }} team
{% if support_phone != "" %}
This number only sends offer notifications. For questions or support, please contact {{ support_phone }}.{% endif %}`

// Load reads and parses the configuration file. A missing file yields the
// defaults so the worker can run from environment variables alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2023-01"
	}
	if cfg.Shopify.TimeoutSeconds == 0 {
		cfg.Shopify.TimeoutSeconds = 30
	}
	if cfg.Shopify.MaxRetries == 0 {
		cfg.Shopify.MaxRetries = 3
	}
	if cfg.Evolution.TimeoutSeconds == 0 {
		cfg.Evolution.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.Subject == "" {
		cfg.SES.Subject = "A loyalty reward for you"
	}
	if len(cfg.Rewards.Tiers) == 0 {
		cfg.Rewards.Tiers = []TierConfig{
			{Threshold: 500, DiscountPercent: 5},
			{Threshold: 1000, DiscountPercent: 10},
			{Threshold: 2000, DiscountPercent: 15},
			{Threshold: 5000, DiscountPercent: 20},
		}
	}
	if cfg.Rewards.CouponValidityDays == 0 {
		cfg.Rewards.CouponValidityDays = 7
	}
	if cfg.Rewards.RecordMaxAgeDays == 0 {
		cfg.Rewards.RecordMaxAgeDays = 30
	}
	if cfg.Rewards.PhoneCountryCode == "" {
		cfg.Rewards.PhoneCountryCode = "55"
	}
	if cfg.Rewards.MessageTemplate == "" {
		cfg.Rewards.MessageTemplate = DefaultMessageTemplate
	}
	if cfg.Rewards.DateLayout == "" {
		cfg.Rewards.DateLayout = "02/01/2006"
	}
	if cfg.Pacing.MinDelaySeconds == 0 && cfg.Pacing.MaxDelaySeconds == 0 {
		cfg.Pacing.MinDelaySeconds = 120
		cfg.Pacing.MaxDelaySeconds = 300
	}
	if cfg.Schedule.At == "" {
		cfg.Schedule.At = "09:00"
	}
	if cfg.Ledger.Type == "" {
		cfg.Ledger.Type = "file"
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "sent_offers.json"
	}
	if cfg.Ledger.S3Key == "" {
		cfg.Ledger.S3Key = "ledger/sent_offers.json"
	}
	if cfg.Ledger.Name == "" {
		cfg.Ledger.Name = "rewards"
	}
	if cfg.Ledger.AWSRegion == "" {
		cfg.Ledger.AWSRegion = "us-east-1"
	}
	if cfg.Lock.Key == "" {
		cfg.Lock.Key = "rewards:run"
	}
	if cfg.Lock.TTLMinutes == 0 {
		cfg.Lock.TTLMinutes = 180
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks settings whose bad values would silently break the run
func (c *Config) Validate() error {
	if c.Pacing.MinDelaySeconds < 0 || c.Pacing.MaxDelaySeconds < c.Pacing.MinDelaySeconds {
		return fmt.Errorf("pacing: need 0 <= min_delay_seconds (%d) <= max_delay_seconds (%d)",
			c.Pacing.MinDelaySeconds, c.Pacing.MaxDelaySeconds)
	}
	if _, err := time.Parse("15:04", c.Schedule.At); err != nil {
		return fmt.Errorf("schedule.at %q: want HH:MM", c.Schedule.At)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if err := c.Rewards.LoyaltyTiers().Validate(); err != nil {
		return fmt.Errorf("rewards.tiers: %w", err)
	}
	switch c.Ledger.Type {
	case "file", "s3", "dynamodb", "postgres", "redis":
	default:
		return fmt.Errorf("ledger.type %q: want file, s3, dynamodb, postgres or redis", c.Ledger.Type)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first (if present) so secrets can live there locally.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"SHOP_NAME", &cfg.Shopify.ShopName},
		{"ACCESS_TOKEN", &cfg.Shopify.AccessToken},
		{"SHOP_URL", &cfg.Shopify.ShopURL},
		{"EVOLUTION_ENDPOINT", &cfg.Evolution.Endpoint},
		{"EVOLUTION_INSTANCE", &cfg.Evolution.Instance},
		{"EVOLUTION_API_KEY", &cfg.Evolution.APIKey},
		{"AWS_SES_ACCESS_KEY", &cfg.SES.AccessKey},
		{"AWS_SES_SECRET_KEY", &cfg.SES.SecretKey},
		{"AWS_SES_REGION", &cfg.SES.Region},
		{"LEDGER_TYPE", &cfg.Ledger.Type},
		{"LEDGER_PATH", &cfg.Ledger.Path},
		{"LEDGER_S3_BUCKET", &cfg.Ledger.S3Bucket},
		{"LEDGER_DYNAMODB_TABLE", &cfg.Ledger.DynamoDBTable},
		{"LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if cfg.Evolution.Endpoint != "" && cfg.Evolution.APIKey != "" {
		cfg.Evolution.Enabled = true
	}

	// DATABASE_URL and REDIS_URL feed both the ledger and the run lock
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Ledger.DatabaseURL = dbURL
		cfg.Lock.DatabaseURL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Ledger.RedisURL = redisURL
		cfg.Lock.RedisURL = redisURL
	}

	return cfg, nil
}
