package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL          = "https://api.recommend.pro/v3"
	DefaultRedisKey        = "recommend:tokens"
	DefaultKeyringService  = "recommend"
	DefaultKeyringUser     = "tokens"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultRetryMaxElapsed = 30 * time.Second
)

// Token persistence backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendKeyring  = "keyring"
)

// Proactive refresh policies.
const (
	RefreshPolicySoft = "soft"
	RefreshPolicyHard = "hard"
)

type Config struct {
	AccountID      string `yaml:"account_id"`
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	CredentialPath string `yaml:"credential_path"`
	TokenBackend   string `yaml:"token_backend"`
	RefreshPolicy  string `yaml:"refresh_policy"`

	HTTP struct {
		Timeout         time.Duration `yaml:"timeout"`
		RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
	} `yaml:"http"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Key      string `yaml:"key"`
	} `yaml:"redis"`

	Keyring struct {
		Service string `yaml:"service"`
		User    string `yaml:"user"`
	} `yaml:"keyring"`
}

// Load builds a Config from a .env file (if present), RECOMMEND_* environment
// variables and, when RECOMMEND_CONFIG points to one, a YAML file. Environment
// variables win over the file.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("RECOMMEND_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads a YAML config file without applying environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.AccountID, "RECOMMEND_ACCOUNT_ID")
	setString(&c.APIURL, "RECOMMEND_API_URL")
	setString(&c.APIKey, "RECOMMEND_API_KEY")
	setString(&c.CredentialPath, "RECOMMEND_CREDENTIAL_PATH")
	setString(&c.TokenBackend, "RECOMMEND_TOKEN_BACKEND")
	setString(&c.RefreshPolicy, "RECOMMEND_REFRESH_POLICY")
	setString(&c.Redis.Addr, "RECOMMEND_REDIS_ADDR")
	setString(&c.Redis.Password, "RECOMMEND_REDIS_PASSWORD")
	setString(&c.Redis.Key, "RECOMMEND_REDIS_KEY")
	setString(&c.Keyring.Service, "RECOMMEND_KEYRING_SERVICE")
	setString(&c.Keyring.User, "RECOMMEND_KEYRING_USER")

	if v := os.Getenv("RECOMMEND_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECOMMEND_REDIS_DB must be an integer: %w", err)
		}
		c.Redis.DB = db
	}
	if err := setDuration(&c.HTTP.Timeout, "RECOMMEND_HTTP_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.HTTP.RetryMaxElapsed, "RECOMMEND_RETRY_MAX_ELAPSED"); err != nil {
		return err
	}
	return nil
}

// SetDefaults fills every empty optional field.
func (c *Config) SetDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.TokenBackend == "" {
		if c.CredentialPath != "" {
			c.TokenBackend = BackendFile
		} else {
			c.TokenBackend = BackendMemory
		}
	}
	if c.RefreshPolicy == "" {
		c.RefreshPolicy = RefreshPolicySoft
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.RetryMaxElapsed == 0 {
		c.HTTP.RetryMaxElapsed = DefaultRetryMaxElapsed
	}
	if c.Redis.Key == "" {
		c.Redis.Key = DefaultRedisKey
	}
	if c.Keyring.Service == "" {
		c.Keyring.Service = DefaultKeyringService
	}
	if c.Keyring.User == "" {
		c.Keyring.User = DefaultKeyringUser
	}
}

func (c *Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("RECOMMEND_ACCOUNT_ID is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("RECOMMEND_API_URL is required")
	}

	switch c.TokenBackend {
	case BackendMemory, BackendPostgres, BackendKeyring:
	case BackendFile:
		if c.CredentialPath == "" {
			return fmt.Errorf("RECOMMEND_CREDENTIAL_PATH is required for the file token backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("RECOMMEND_REDIS_ADDR is required for the redis token backend")
		}
	default:
		return fmt.Errorf("unknown token backend %q", c.TokenBackend)
	}

	switch c.RefreshPolicy {
	case RefreshPolicySoft, RefreshPolicyHard:
	default:
		return fmt.Errorf("unknown refresh policy %q", c.RefreshPolicy)
	}
	// APIKey is optional, tokens may already be persisted
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration: %w", key, err)
	}
	*dst = d
	return nil
}
