package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting
// services.
type Config struct {
	ListenAddr     string
	MySQLDSN       string
	RequestTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	MpesaEnv            string
	MpesaShortcode      string
	MpesaPasskey        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaCallbackURL    string

	IntentTTL     time.Duration
	SweepInterval time.Duration

	AdminUsername string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// AttachmentUploadsEnabled reports whether the optional S3 attachment store
// is configured. Photo questions are rejected when it is not.
func (c Config) AttachmentUploadsEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3PublicBaseURL != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	loadEnvFile()

	cfg := Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		RequestTimeout: time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),

		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),

		MpesaEnv:         strings.ToLower(getEnv("MPESA_ENV", "sandbox")),
		MpesaCallbackURL: getEnv("MPESA_CALLBACK_URL", ""),

		IntentTTL:     time.Minute * time.Duration(getInt("INTENT_TTL_MINUTES", 15)),
		SweepInterval: time.Minute * time.Duration(getInt("SWEEP_INTERVAL_MINUTES", 5)),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change-me"),

		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "attachments"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.MpesaShortcode = os.Getenv("MPESA_SHORTCODE")
	cfg.MpesaPasskey = os.Getenv("MPESA_PASSKEY")
	cfg.MpesaConsumerKey = os.Getenv("MPESA_CONSUMER_KEY")
	cfg.MpesaConsumerSecret = os.Getenv("MPESA_CONSUMER_SECRET")

	if cfg.MpesaEnv != "sandbox" && cfg.MpesaEnv != "api" {
		return Config{}, fmt.Errorf("MPESA_ENV must be sandbox or api, got %q", cfg.MpesaEnv)
	}

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.MpesaShortcode == "" {
		missing = append(missing, "MPESA_SHORTCODE")
	}
	if cfg.MpesaPasskey == "" {
		missing = append(missing, "MPESA_PASSKEY")
	}
	if cfg.MpesaConsumerKey == "" {
		missing = append(missing, "MPESA_CONSUMER_KEY")
	}
	if cfg.MpesaConsumerSecret == "" {
		missing = append(missing, "MPESA_CONSUMER_SECRET")
	}
	if cfg.MpesaCallbackURL == "" {
		missing = append(missing, "MPESA_CALLBACK_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err == nil {
			return
		}
	}
}
