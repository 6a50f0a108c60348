package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/pricing"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Database  DatabaseConfig    `yaml:"database"`
	Redis     RedisConfig       `yaml:"redis"`
	Payment   PaymentConfig     `yaml:"payment"`
	Email     EmailConfig       `yaml:"email"`
	Session   SessionConfig     `yaml:"session"`
	Log       LogConfig         `yaml:"log"`
	Pricing   PricingConfig     `yaml:"pricing"`
	Insurance []InsuranceConfig `yaml:"insurance"`
	Extras    []ExtraConfig     `yaml:"extras"`
	Checkout  CheckoutConfig    `yaml:"checkout"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig contains the draft session store settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PaymentConfig selects and configures the payment provider
type PaymentConfig struct {
	Provider      string `yaml:"provider"` // "mock" or "stripe"
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
	AutoSucceed   bool   `yaml:"auto_succeed"` // mock only: intents succeed on creation
}

// EmailConfig contains SendGrid settings. Without an API key emails are only logged.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
}

// SessionConfig contains checkout session token and draft settings
type SessionConfig struct {
	Secret          string `yaml:"secret"`
	DraftTTLMinutes int    `yaml:"draft_ttl_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// PricingConfig contains the fee and discount rules. Rates are fractions (0.19 = 19%).
type PricingConfig struct {
	ServiceFeeRate   float64          `yaml:"service_fee_rate"`
	TaxRate          float64          `yaml:"tax_rate"`
	SplitOnlineRatio float64          `yaml:"split_online_ratio"`
	RoundingMode     string           `yaml:"rounding_mode"` // "half_up" or "bankers"
	DiscountTiers    []DiscountConfig `yaml:"discount_tiers"`
}

type DiscountConfig struct {
	MinDays int     `yaml:"min_days"`
	Rate    float64 `yaml:"rate"`
}

type InsuranceConfig struct {
	Key         string   `yaml:"key"`
	PricePerDay float64  `yaml:"price_per_day"`
	Deductible  float64  `yaml:"deductible"`
	Coverages   []string `yaml:"coverages"`
}

type ExtraConfig struct {
	Key         string  `yaml:"key"`
	Name        string  `yaml:"name"`
	Price       float64 `yaml:"price"`
	MaxQuantity int     `yaml:"max_quantity"`
}

// CheckoutConfig contains booking hold settings
type CheckoutConfig struct {
	PendingPaymentTTLMinutes int `yaml:"pending_payment_ttl_minutes"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReleaseStalePendingBookings string `yaml:"release_stale_pending_bookings"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Payment
	if val := os.Getenv("PAYMENT_PROVIDER"); val != "" {
		c.Payment.Provider = val
	}
	if val := os.Getenv("STRIPE_SECRET_KEY"); val != "" {
		c.Payment.SecretKey = val
	}
	if val := os.Getenv("STRIPE_WEBHOOK_SECRET"); val != "" {
		c.Payment.WebhookSecret = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Email.FromEmail = val
	}

	// Session
	if val := os.Getenv("SESSION_SECRET"); val != "" {
		c.Session.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Checkout
	if val := os.Getenv("PENDING_PAYMENT_TTL_MINUTES"); val != "" {
		fmt.Sscanf(val, "%d", &c.Checkout.PendingPaymentTTLMinutes)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	// Payment
	if c.Payment.Provider == "" {
		c.Payment.Provider = "mock"
	}
	if c.Payment.Provider != "mock" && c.Payment.Provider != "stripe" {
		return fmt.Errorf("unsupported payment provider: %s", c.Payment.Provider)
	}
	if c.Payment.Provider == "stripe" && c.Payment.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "eur"
	}

	if c.Email.FromEmail == "" {
		c.Email.FromEmail = "bookings@rentcar.local"
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Rentcar"
	}

	// Session
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters")
	}
	if c.Session.DraftTTLMinutes == 0 {
		c.Session.DraftTTLMinutes = 120
	}

	if err := c.validatePricing(); err != nil {
		return err
	}

	if len(c.Insurance) == 0 {
		c.Insurance = defaultInsurance()
	}
	hasBasic := false
	for _, tier := range c.Insurance {
		if !domain.InsuranceKey(tier.Key).Valid() {
			return fmt.Errorf("unknown insurance tier: %s", tier.Key)
		}
		if tier.Key == string(domain.InsuranceBasic) {
			hasBasic = true
		}
	}
	if !hasBasic {
		return fmt.Errorf("insurance tier %q is required as fallback", domain.InsuranceBasic)
	}

	for _, extra := range c.Extras {
		if extra.Key == "" || extra.Price < 0 {
			return fmt.Errorf("invalid extra: %q", extra.Key)
		}
	}

	if c.Checkout.PendingPaymentTTLMinutes == 0 {
		c.Checkout.PendingPaymentTTLMinutes = 30
	}

	if c.Scheduler.ReleaseStalePendingBookings == "" {
		c.Scheduler.ReleaseStalePendingBookings = "0 */5 * * * *" // every 5 minutes
	}

	return nil
}

func (c *Config) validatePricing() error {
	p := &c.Pricing
	if p.ServiceFeeRate == 0 {
		p.ServiceFeeRate = 0.05
	}
	if p.TaxRate == 0 {
		p.TaxRate = 0.19
	}
	if p.SplitOnlineRatio == 0 {
		p.SplitOnlineRatio = 0.5
	}
	if p.RoundingMode == "" {
		p.RoundingMode = string(domain.RoundHalfUp)
	}
	if len(p.DiscountTiers) == 0 {
		p.DiscountTiers = []DiscountConfig{{MinDays: 30, Rate: 0.20}, {MinDays: 7, Rate: 0.10}}
	}

	for name, rate := range map[string]float64{
		"service fee rate":   p.ServiceFeeRate,
		"tax rate":           p.TaxRate,
		"split online ratio": p.SplitOnlineRatio,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1: %v", name, rate)
		}
	}
	if p.RoundingMode != string(domain.RoundHalfUp) && p.RoundingMode != string(domain.RoundHalfEven) {
		return fmt.Errorf("unsupported rounding mode: %s", p.RoundingMode)
	}
	for _, tier := range p.DiscountTiers {
		if tier.MinDays <= 0 || tier.Rate < 0 || tier.Rate >= 1 {
			return fmt.Errorf("invalid discount tier: %d days at %v", tier.MinDays, tier.Rate)
		}
	}
	sort.SliceStable(p.DiscountTiers, func(i, j int) bool { return p.DiscountTiers[i].MinDays > p.DiscountTiers[j].MinDays })
	return nil
}

func defaultInsurance() []InsuranceConfig {
	return []InsuranceConfig{
		{Key: "basic", PricePerDay: 10, Deductible: 1500, Coverages: []string{"liability"}},
		{Key: "standard", PricePerDay: 25, Deductible: 750, Coverages: []string{"liability", "collision", "theft"}},
		{Key: "premium", PricePerDay: 45, Deductible: 0, Coverages: []string{"liability", "collision", "theft", "glass_tires", "roadside"}},
	}
}

// PricingPolicy converts the pricing section into engine rules
func (c *Config) PricingPolicy() pricing.Policy {
	policy := pricing.Policy{
		ServiceFeeRate:   decimal.NewFromFloat(c.Pricing.ServiceFeeRate),
		TaxRate:          decimal.NewFromFloat(c.Pricing.TaxRate),
		SplitOnlineRatio: decimal.NewFromFloat(c.Pricing.SplitOnlineRatio),
		Rounding:         domain.RoundingMode(c.Pricing.RoundingMode),
	}
	for _, tier := range c.Pricing.DiscountTiers {
		policy.DiscountTiers = append(policy.DiscountTiers, pricing.DiscountTier{
			MinDays: tier.MinDays,
			Rate:    decimal.NewFromFloat(tier.Rate),
		})
	}
	return policy
}

// InsuranceCatalog builds the tier table
func (c *Config) InsuranceCatalog() domain.InsuranceCatalog {
	catalog := make(domain.InsuranceCatalog, len(c.Insurance))
	for _, tier := range c.Insurance {
		key := domain.InsuranceKey(tier.Key)
		catalog[key] = domain.InsuranceTier{
			Key:         key,
			PricePerDay: decimal.NewFromFloat(tier.PricePerDay),
			Deductible:  decimal.NewFromFloat(tier.Deductible),
			Coverages:   tier.Coverages,
		}
	}
	return catalog
}

// ExtrasCatalog builds the add-on table
func (c *Config) ExtrasCatalog() domain.ExtrasCatalog {
	catalog := make(domain.ExtrasCatalog, len(c.Extras))
	for _, extra := range c.Extras {
		catalog[extra.Key] = domain.ExtraOffer{
			Key:         extra.Key,
			Name:        extra.Name,
			Price:       decimal.NewFromFloat(extra.Price),
			MaxQuantity: extra.MaxQuantity,
		}
	}
	return catalog
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
