package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the service needs. It is built once in main and
// handed to the components that need it; nothing reads the environment after
// Load returns.
type Config struct {
	Port    string
	BaseURL string

	DatabaseDSN string

	// BlobBackend selects where encrypted bundles live: "s3", "supabase" or
	// "memory" (tests / local development).
	BlobBackend    string
	AWSRegion      string
	S3Bucket       string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	// ClamdAddr is the host:port of the clamd scanner. Empty means the
	// scanner is unavailable and uploads fall back to the signature
	// heuristic.
	ClamdAddr string

	CaptchaSecret    string
	CaptchaVerifyURL string

	MaxFileSizeBytes int64
	DefaultExpiry    time.Duration
	CacheTTL         time.Duration
	CacheSize        int

	AllowedOrigins []string
}

func Load() *Config {
	if os.Getenv("RENDER") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️  Warning: No .env file found. Using system environment variables.")
		}
	}

	return &Config{
		Port:             getenv("PORT", "8080"),
		BaseURL:          getenv("BASE_URL", "http://localhost:8080"),
		DatabaseDSN:      os.Getenv("DB_URL"),
		BlobBackend:      getenv("BLOB_BACKEND", "s3"),
		AWSRegion:        os.Getenv("AWS_REGION"),
		S3Bucket:         os.Getenv("AWS_BUCKET_NAME"),
		SupabaseURL:      os.Getenv("SUPABASE_URL"),
		SupabaseKey:      os.Getenv("SUPABASE_KEY"),
		SupabaseBucket:   getenv("SUPABASE_BUCKET", "packshare"),
		ClamdAddr:        os.Getenv("CLAMD_ADDR"),
		CaptchaSecret:    os.Getenv("CAPTCHA_SECRET"),
		CaptchaVerifyURL: getenv("CAPTCHA_VERIFY_URL", "https://hcaptcha.com/siteverify"),
		MaxFileSizeBytes: getenvInt64("MAX_FILE_SIZE_BYTES", 100<<20),
		DefaultExpiry:    getenvDuration("DEFAULT_EXPIRY", 7*24*time.Hour),
		CacheTTL:         getenvDuration("CACHE_TTL", 15*time.Minute),
		CacheSize:        int(getenvInt64("CACHE_SIZE", 10000)),
		AllowedOrigins:   []string{getenv("FRONTEND_ORIGIN", "http://localhost:3000")},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("⚠️  Warning: %s=%q is not an integer, using default", key, v)
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  Warning: %s=%q is not a duration, using default", key, v)
		return fallback
	}
	return d
}
