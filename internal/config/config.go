package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Email     EmailConfig
	Timer     TimerConfig
	Finance   FinanceConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type TimerConfig struct {
	// IdleGapThreshold is the heartbeat silence after which a running span counts as idle.
	IdleGapThreshold  time.Duration
	IdempotencyWindow time.Duration
	HeartbeatRate     float64
	HeartbeatBurst    int
}

type FinanceConfig struct {
	FreshnessThreshold time.Duration
	RateCacheTTL       time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
}

// Load loads configuration from the .env file, an optional config file named by
// TIMELEDGER_CONFIG, and environment variables. Environment wins over the file.
func Load() Config {
	_ = godotenv.Load()

	file := loadFile(strings.TrimSpace(os.Getenv("TIMELEDGER_CONFIG")))
	get := func(key, def string) string {
		return getenv(key, file.GetString(strings.ToLower(key), def))
	}
	getInt := func(key string, def int) int {
		return int(getenvInt64(key, int64(file.GetInt(strings.ToLower(key), def))))
	}
	getSeconds := func(key string, def int) time.Duration {
		return time.Duration(getInt(key, def)) * time.Second
	}

	cfg := Config{
		AppName:           get("APP_SERVICE", "timeledger"),
		AppVersion:        get("APP_VERSION", "0.1.0"),
		Environment:       get("ENVIRONMENT", "development"),
		HTTPAddr:          get("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      get("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            get("DATABASE_TYPE", "postgres"),
		DBHost:            get("DATABASE_HOST", "localhost"),
		DBPort:            get("DATABASE_PORT", "5432"),
		DBName:            get("DATABASE_NAME", "timeledger"),
		DBUser:            get("DATABASE_USER", "postgres"),
		DBPassword:        get("DATABASE_PASSWORD", ""),
		DBSSLMode:         get("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(get("REDIS_ADDR", "")),
			Password: strings.TrimSpace(get("REDIS_PASSWORD", "")),
			DB:       getInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(get("SMTP_HOST", "")),
			SMTPPort:     getInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(get("SMTP_USERNAME", "")),
			SMTPPassword: get("SMTP_PASSWORD", ""),
			SMTPFrom:     strings.TrimSpace(get("SMTP_FROM", "billing@timeledger.local")),
		},
		Timer: TimerConfig{
			IdleGapThreshold:  getSeconds("TIMER_IDLE_GAP_SECONDS", 300),
			IdempotencyWindow: getSeconds("TIMER_IDEMPOTENCY_WINDOW_SECONDS", 86400),
			HeartbeatRate:     getenvFloat("TIMER_HEARTBEAT_RATE", 1),
			HeartbeatBurst:    getInt("TIMER_HEARTBEAT_BURST", 10),
		},
		Finance: FinanceConfig{
			FreshnessThreshold: getSeconds("FINANCIALS_FRESHNESS_SECONDS", 300),
			RateCacheTTL:       getSeconds("RATE_CACHE_TTL_SECONDS", 30),
			LockTTL:            getSeconds("FINANCE_LOCK_TTL_SECONDS", 30),
			LockWait:           getSeconds("FINANCE_LOCK_WAIT_SECONDS", 5),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", file.GetBool("scheduler_enabled", true)),
			RunInterval: getSeconds("SCHEDULER_INTERVAL_SECONDS", 60),
			BatchSize:   getInt("SCHEDULER_BATCH_SIZE", 50),
		},
	}

	return cfg
}

// fileValues wraps an optional viper instance so lookups fall through to defaults.
type fileValues struct {
	v *viper.Viper
}

func loadFile(path string) fileValues {
	if path == "" {
		return fileValues{}
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("[config] ignoring %s: %v", path, err)
		}
		return fileValues{}
	}
	return fileValues{v: v}
}

func (f fileValues) GetString(key, def string) string {
	if f.v == nil || !f.v.IsSet(key) {
		return def
	}
	if value := strings.TrimSpace(f.v.GetString(key)); value != "" {
		return value
	}
	return def
}

func (f fileValues) GetInt(key string, def int) int {
	if f.v == nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetInt(key)
}

func (f fileValues) GetBool(key string, def bool) bool {
	if f.v == nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetBool(key)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
