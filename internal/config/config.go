package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the typed application configuration.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"3000"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	DB           DBConfig           `envconfig:"DB"`
	Redis        RedisConfig        `envconfig:"REDIS"`
	JWT          JWTConfig          `envconfig:"JWT"`
	Stripe       StripeConfig       `envconfig:"STRIPE"`
	Paystack     PaystackConfig     `envconfig:"PAYSTACK"`
	Telnyx       TelnyxConfig       `envconfig:"TELNYX"`
	Ledger       LedgerConfig       `envconfig:"LEDGER"`
	Compensation CompensationConfig `envconfig:"COMPENSATION"`
}

type DBConfig struct {
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"5432"`
	User            string        `envconfig:"USER" default:"postgres"`
	Password        string        `envconfig:"PASSWORD" default:"postgres"`
	Name            string        `envconfig:"NAME" default:"airswitch"`
	SSLMode         string        `envconfig:"SSLMODE" default:"disable"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"30m"`
}

// DSN returns the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Host     string        `envconfig:"HOST" default:"localhost"`
	Port     string        `envconfig:"PORT" default:"6379"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0"`
	TTL      time.Duration `envconfig:"TTL" default:"10m"`
}

type JWTConfig struct {
	Secret string        `envconfig:"SECRET" default:"airswitch-dev-secret"`
	TTL    time.Duration `envconfig:"TTL" default:"168h"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"SECRET_KEY"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"SECRET_KEY"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

type TelnyxConfig struct {
	APIKey        string        `envconfig:"API_KEY"`
	BaseURL       string        `envconfig:"BASE_URL" default:"https://api.telnyx.com/v2"`
	PublicKey     string        `envconfig:"PUBLIC_KEY"`
	TokenLifespan time.Duration `envconfig:"TOKEN_LIFESPAN" default:"1h"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"20s"`
}

// LedgerConfig holds the fixed conversion constants used by points and referrals.
type LedgerConfig struct {
	PointsPerUSD       int64  `envconfig:"POINTS_PER_USD" default:"100"`
	NGNPerUSD          string `envconfig:"NGN_PER_USD" default:"1500"`
	ReferralPoints     int64  `envconfig:"REFERRAL_POINTS" default:"500"`
	MinRedeemPoints    int64  `envconfig:"MIN_REDEEM_POINTS" default:"100"`
	ReferralCommission int    `envconfig:"REFERRAL_COMMISSION" default:"5"`
}

type CompensationConfig struct {
	Interval    time.Duration `envconfig:"INTERVAL" default:"1m"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"10"`
	StaleAfter  time.Duration `envconfig:"STALE_AFTER" default:"30m"`
	BatchSize   int           `envconfig:"BATCH_SIZE" default:"50"`
	RetryBase   time.Duration `envconfig:"RETRY_BASE" default:"30s"`
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	LoadEnv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &cfg, nil
}

// IsProduction checks if the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
