package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the server reads from the environment.
type Config struct {
	Addr string

	// StoreDriver selects persistence: "mongo" or "memory" (local dev).
	StoreDriver string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TicketSecret string
	TicketTTL    time.Duration

	OTPTTL time.Duration

	// RateLimit requests per RateWindow, per client IP, on the REST routes.
	RateLimit  int
	RateWindow time.Duration
}

// Load reads configuration from the environment, falling back to development
// defaults. A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          ":8000",
		StoreDriver:   "mongo",
		MongoURI:      "mongodb://127.0.0.1:27017",
		MongoDB:       "chat",
		RedisAddr:     "127.0.0.1:6379",
		RedisPassword: "",
		RedisDB:       0,
		TicketSecret:  "development-secret",
		TicketTTL:     24 * time.Hour,
		OTPTTL:        10 * time.Minute,
		RateLimit:     1000,
		RateWindow:    time.Hour,
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.MongoDB = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("TICKET_SECRET"); v != "" {
		cfg.TicketSecret = v
	}
	if v := os.Getenv("TICKET_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TicketTTL = d
		}
	}
	if v := os.Getenv("OTP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OTPTTL = d
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit = n
		}
	}
	if v := os.Getenv("RATE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateWindow = d
		}
	}

	return cfg
}
