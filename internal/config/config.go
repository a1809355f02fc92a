package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CHECKIN"

var ErrConfigExists = errors.New("config file already exists")

// Config is the full service configuration. Every key can be overridden from
// the environment, e.g. pms.api_key via CHECKIN_PMS_API_KEY.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	PMS     PMSConfig     `yaml:"pms" mapstructure:"pms"`
	Payment PaymentConfig `yaml:"payment" mapstructure:"payment"`
	Deposit DepositConfig `yaml:"deposit" mapstructure:"deposit"`
	Demo    DemoConfig    `yaml:"demo" mapstructure:"demo"`
	Staff   StaffConfig   `yaml:"staff" mapstructure:"staff"`
	OCR     OCRConfig     `yaml:"ocr" mapstructure:"ocr"`
	Terms   TermsConfig   `yaml:"terms" mapstructure:"terms"`
}

type HTTPConfig struct {
	Host              string        `yaml:"host" mapstructure:"host"`
	Port              string        `yaml:"port" mapstructure:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	LivenessEndpoint  string        `yaml:"liveness_endpoint" mapstructure:"liveness_endpoint"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type StoreConfig struct {
	// Driver is "sqlite" (durable, memory cache behind it) or "memory".
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TokenKey string `yaml:"token_key" mapstructure:"token_key"`
}

type PMSConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	PropertyID string        `yaml:"property_id" mapstructure:"property_id"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type PaymentConfig struct {
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

type DepositConfig struct {
	AmountCents  int64  `yaml:"amount_cents" mapstructure:"amount_cents"`
	Currency     string `yaml:"currency" mapstructure:"currency"`
	ReleaseHours int    `yaml:"release_hours" mapstructure:"release_hours"`
}

func (d DepositConfig) ReleaseAfter() time.Duration {
	return time.Duration(d.ReleaseHours) * time.Hour
}

type DemoConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	OutageFallback bool `yaml:"outage_fallback" mapstructure:"outage_fallback"`
	Seed           bool `yaml:"seed" mapstructure:"seed"`
}

type StaffConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

type OCRConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type TermsConfig struct {
	Version string `yaml:"version" mapstructure:"version"`
}

// DefaultConfig is the single source of default values. Viper registers
// every key from it, which is also what lets AutomaticEnv see keys that no
// file sets.
func DefaultConfig() *Config {
	//nolint:exhaustruct,gomnd
	return &Config{
		HTTP: HTTPConfig{
			Host:              "localhost",
			Port:              "8092",
			ReadHeaderTimeout: 20 * time.Second,
			ShutdownTimeout:   4 * time.Second,
			LivenessEndpoint:  "/liveness",
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{Driver: "sqlite", Path: "data/checkin.db"},
		Redis: RedisConfig{TokenKey: "pms:token"},
		PMS: PMSConfig{
			BaseURL: "https://hotels.cloudbeds.com/api/v1.1",
			Timeout: 10 * time.Second,
		},
		Payment: PaymentConfig{},
		Deposit: DepositConfig{AmountCents: 3000, Currency: "sgd", ReleaseHours: 72},
		Demo:    DemoConfig{Enabled: true, OutageFallback: false, Seed: false},
		Staff:   StaffConfig{},
		OCR:     OCRConfig{Timeout: 20 * time.Second},
		Terms:   TermsConfig{Version: "2025-01"},
	}
}

func setDefaults(v *viper.Viper) error {
	raw, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	var sections map[string]map[string]any
	if err := yaml.Unmarshal(raw, &sections); err != nil {
		return fmt.Errorf("flatten default config: %w", err)
	}

	for section, values := range sections {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}

	return nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load reads envFile (if present) into the process environment, then the
// YAML file at path (if set), then CHECKIN_* overrides.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %v: %w", envFile, err)
		}
	}

	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %v: %w", path, err)
		}
	}

	cfg := &Config{} //nolint:exhaustruct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, memory", c.Store.Driver))
	}

	if c.Deposit.AmountCents <= 0 {
		problems = append(problems, "deposit.amount_cents must be positive")
	}

	if c.Deposit.ReleaseHours < 0 {
		problems = append(problems, "deposit.release_hours must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}

	return nil
}

var ErrInvalid = errors.New("invalid config")

// WriteDefault writes the default configuration as YAML. It never overwrites.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %v", ErrConfigExists, path)
	}

	out, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	header := "# Hostel check-in configuration. Override any key with CHECKIN_<SECTION>_<KEY>.\n"

	if err := os.WriteFile(path, append([]byte(header), out...), 0o600); err != nil { //nolint:gomnd
		return fmt.Errorf("write config %v: %w", path, err)
	}

	return nil
}
