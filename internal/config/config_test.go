package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/homework")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MPESA_SHORTCODE", "174379")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_CALLBACK_URL", "https://app.example.com/webhook/mpesa")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MpesaEnv != "sandbox" {
		t.Errorf("MpesaEnv = %q", cfg.MpesaEnv)
	}
	if cfg.IntentTTL != 15*time.Minute {
		t.Errorf("IntentTTL = %s", cfg.IntentTTL)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %s", cfg.SweepInterval)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q", cfg.OpenAIModel)
	}
	if cfg.AttachmentUploadsEnabled() {
		t.Error("uploads must be off without S3 settings")
	}
}

func TestLoadMissingVars(t *testing.T) {
	setRequired(t)
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("MPESA_PASSKEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	if !strings.Contains(err.Error(), "MYSQL_DSN") || !strings.Contains(err.Error(), "MPESA_PASSKEY") {
		t.Errorf("error should name every missing variable, got %v", err)
	}
}

func TestLoadRejectsBadMpesaEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("MPESA_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown MPESA_ENV")
	}
}

func TestAttachmentUploadsEnabled(t *testing.T) {
	cfg := Config{
		S3Region:        "us-east-1",
		S3AccessKey:     "ak",
		S3SecretKey:     "sk",
		S3Bucket:        "attachments",
		S3PublicBaseURL: "https://cdn.example.com",
	}
	if !cfg.AttachmentUploadsEnabled() {
		t.Error("expected uploads enabled with full S3 config")
	}
	cfg.S3Bucket = ""
	if cfg.AttachmentUploadsEnabled() {
		t.Error("expected uploads disabled without a bucket")
	}
}
