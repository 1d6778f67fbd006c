package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string // quiz exports

	AuthHMACSecret string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	SeedDefaultClasses bool

	// Integrity monitor / attempt sessions
	ViolationLimit    int
	ViolationDebounce time.Duration
	SessionIdleTTL    time.Duration
	SweepSchedule     string // cron spec

	// External gradebook (optional; disabled when LineItemsURL is empty)
	GradebookLineItemsURL string
	GradebookTokenURL     string
	GradebookClientID     string
	GradebookClientSecret string
	GradebookTimeout      time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, using process environment")
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		PublicURL:          os.Getenv("PUBLIC_URL"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		BlobBasePath:       envOr("BLOB_BASE_PATH", "./data"),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://quiz.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		SeedDefaultClasses: envBool("SEED_DEFAULT_CLASSES", mode == ModeOffline),

		ViolationLimit:    envInt("VIOLATION_LIMIT", 3),
		ViolationDebounce: envDuration("VIOLATION_DEBOUNCE", 500*time.Millisecond),
		SessionIdleTTL:    envDuration("SESSION_IDLE_TTL", 2*time.Hour),
		SweepSchedule:     envOr("SWEEP_SCHEDULE", "@every 1m"),

		GradebookLineItemsURL: os.Getenv("GRADEBOOK_LINEITEMS_URL"),
		GradebookTokenURL:     os.Getenv("GRADEBOOK_TOKEN_URL"),
		GradebookClientID:     os.Getenv("GRADEBOOK_CLIENT_ID"),
		GradebookClientSecret: os.Getenv("GRADEBOOK_CLIENT_SECRET"),
		GradebookTimeout:      envDuration("GRADEBOOK_TIMEOUT", 10*time.Second),
	}
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s=%q is not an int, using %d", k, v, def)
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a duration, using %s", k, v, def)
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
