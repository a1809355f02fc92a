package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Deposit.AmountCents != 3000 || cfg.Deposit.Currency != "sgd" {
		t.Errorf("deposit = %+v", cfg.Deposit)
	}

	if cfg.Deposit.ReleaseAfter() != 72*time.Hour {
		t.Errorf("ReleaseAfter = %v", cfg.Deposit.ReleaseAfter())
	}

	if cfg.HTTP.ReadHeaderTimeout != 20*time.Second || cfg.PMS.Timeout != 10*time.Second {
		t.Errorf("timeouts = %v, %v", cfg.HTTP.ReadHeaderTimeout, cfg.PMS.Timeout)
	}

	if !cfg.Demo.Enabled || cfg.Demo.OutageFallback {
		t.Errorf("demo = %+v", cfg.Demo)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadWithoutFileMatchesDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if want := DefaultConfig(); !reflect.DeepEqual(cfg, want) {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}

	t.Setenv("CHECKIN_PAYMENT_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("CHECKIN_OCR_TIMEOUT", "5s")

	cfg, err = Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Payment.WebhookSecret != "whsec_test" || cfg.OCR.Timeout != 5*time.Second {
		t.Errorf("env overrides not applied: payment %+v, ocr %+v", cfg.Payment, cfg.OCR)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkin.yaml")

	content := `
store:
  driver: memory
pms:
  property_id: "20205"
  timeout: 3s
deposit:
  amount_cents: 5000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CHECKIN_STAFF_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("CHECKIN_PMS_API_KEY", "cbat_123")
	t.Setenv("CHECKIN_DEPOSIT_AMOUNT_CENTS", "4500")
	// Restores the variable godotenv is about to set.
	t.Setenv("CHECKIN_STAFF_JWT_SECRET", "")
	os.Unsetenv("CHECKIN_STAFF_JWT_SECRET")

	cfg, err := Load(path, envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Driver != "memory" || cfg.PMS.PropertyID != "20205" || cfg.PMS.Timeout != 3*time.Second {
		t.Errorf("file values not applied: %+v %+v", cfg.Store, cfg.PMS)
	}

	if cfg.PMS.APIKey != "cbat_123" || cfg.Deposit.AmountCents != 4500 {
		t.Errorf("env overrides not applied: key %q, amount %d", cfg.PMS.APIKey, cfg.Deposit.AmountCents)
	}

	if cfg.Staff.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q", cfg.Staff.JWTSecret)
	}

	if cfg.HTTP.Port != "8092" {
		t.Errorf("untouched default changed: port %q", cfg.HTTP.Port)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("CHECKIN_STORE_DRIVER", "memory")

	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CHECKIN_STORE_DRIVER", "postgres")
	t.Setenv("CHECKIN_DEPOSIT_AMOUNT_CENTS", "0")

	_, err := Load("", "")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("Load succeeded on a missing config file")
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkin.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Deposit.ReleaseHours != 72 || cfg.OCR.Timeout != 20*time.Second {
		t.Errorf("reloaded = %+v %+v", cfg.Deposit, cfg.OCR)
	}

	if err := WriteDefault(path); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second WriteDefault err = %v, want ErrConfigExists", err)
	}
}
