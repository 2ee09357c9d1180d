package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Amount mismatch policies applied by the settlement reconciler.
const (
	MismatchAccept = "accept"
	MismatchReject = "reject"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	FrontendURL string

	MongoDBURI          string
	MongoDBPassword     string
	MongoDBName         string
	MongoDBTransactions bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL string

	JWT        JWTConfig
	SePay      SePayConfig
	MoMo       MoMoConfig
	RateLimit  RateLimitConfig
	Settlement SettlementConfig

	CloudinaryName   string
	CloudinaryKey    string
	CloudinarySecret string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type SePayConfig struct {
	QRURL         string
	BankAccount   string
	BankName      string
	WebhookAPIKey string
}

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Timeout     time.Duration
}

type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillInterval time.Duration
	Prefix         string
}

type SettlementConfig struct {
	MismatchPolicy string
	LockTTL        time.Duration
	SnowflakeNode  int64
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		FrontendURL: getEnvWithDefault("FRONTEND_URL", "http://localhost:3000"),

		MongoDBURI:          os.Getenv("MONGODB_URI"),
		MongoDBPassword:     os.Getenv("MONGODB_PASSWORD"),
		MongoDBName:         getEnvWithDefault("MONGODB_DATABASE", "tourbook"),
		MongoDBTransactions: getEnvBool("MONGODB_TRANSACTIONS", true),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		JWT: JWTConfig{
			AccessSecret:  os.Getenv("JWT_ACCESS_SECRET"),
			RefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
			AccessTTL:     getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		SePay: SePayConfig{
			QRURL:         getEnvWithDefault("SEPAY_QR_URL", "https://qr.sepay.vn/img"),
			BankAccount:   os.Getenv("SEPAY_BANK_ACCOUNT"),
			BankName:      os.Getenv("SEPAY_BANK_NAME"),
			WebhookAPIKey: os.Getenv("SEPAY_WEBHOOK_API_KEY"),
		},
		MoMo: MoMoConfig{
			Endpoint:    getEnvWithDefault("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
			PartnerCode: os.Getenv("MOMO_PARTNER_CODE"),
			AccessKey:   os.Getenv("MOMO_ACCESS_KEY"),
			SecretKey:   os.Getenv("MOMO_SECRET_KEY"),
			RedirectURL: os.Getenv("MOMO_REDIRECT_URL"),
			IPNURL:      os.Getenv("MOMO_IPN_URL"),
			RequestType: getEnvWithDefault("MOMO_REQUEST_TYPE", "captureWallet"),
			Timeout:     getEnvDuration("MOMO_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 100),
			RefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", 600*time.Millisecond),
			Prefix:         getEnvWithDefault("RATE_LIMIT_PREFIX", "rl"),
		},
		Settlement: SettlementConfig{
			MismatchPolicy: strings.ToLower(getEnvWithDefault("SETTLEMENT_MISMATCH_POLICY", MismatchAccept)),
			LockTTL:        getEnvDuration("SETTLEMENT_LOCK_TTL", 15*time.Second),
			SnowflakeNode:  int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		},

		CloudinaryName:   os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret: os.Getenv("CLOUDINARY_API_SECRET"),
	}

	// Validate required fields
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.JWT.AccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.JWT.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET is required")
	}
	switch cfg.Settlement.MismatchPolicy {
	case MismatchAccept, MismatchReject:
	default:
		return nil, fmt.Errorf("SETTLEMENT_MISMATCH_POLICY must be %q or %q, got %q",
			MismatchAccept, MismatchReject, cfg.Settlement.MismatchPolicy)
	}

	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryKey != "" && c.CloudinarySecret != ""
}
