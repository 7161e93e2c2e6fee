package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConcurrency      = 20
	DefaultBatchSize        = 50
	DefaultEntryMaxAttempts = 5
	DefaultItemMaxAttempts  = 5
	DefaultRetryDelay       = 5 * time.Second
	DefaultAffiliateID      = "10179364"
	DefaultLogLevel         = "warn"
	DefaultLogFile          = "wppost.log"

	fileName = ".wppost.yaml"
)

// Config is the explicit configuration object handed to the publisher,
// scheduler and runner at construction.
type Config struct {
	WordPress WordPressConfig `mapstructure:"wordpress"`
	Publish   PublishConfig   `mapstructure:"publish"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Log       LogConfig       `mapstructure:"log"`

	// TemplatePath overrides the embedded post template when set.
	TemplatePath string `mapstructure:"template_path"`
}

type WordPressConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PublishConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	BatchSize        int `mapstructure:"batch_size"`
	EntryMaxAttempts int `mapstructure:"entry_max_attempts"`
	ItemMaxAttempts  int `mapstructure:"item_max_attempts"`
	// UploadMaxAttempts bounds media upload retries; 0 means unlimited.
	UploadMaxAttempts int           `mapstructure:"upload_max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	AbortOnBatchError bool          `mapstructure:"abort_on_batch_error"`
}

type HTTPConfig struct {
	TotalTimeout   time.Duration `mapstructure:"total_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// RPS caps requests per second to the site; 0 disables the limiter.
	RPS      float64 `mapstructure:"rps"`
	Burst    int     `mapstructure:"burst"`
	RetryMax int     `mapstructure:"retry_max"`
}

type ReferralConfig struct {
	AffiliateID string `mapstructure:"affiliate_id"`
}

// LedgerConfig enables the optional Postgres audit of published posts.
type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultPath returns ~/.wppost.yaml, or ./.wppost.yaml without a home dir.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return fileName
	}
	return filepath.Join(home, fileName)
}

// SetDefaults registers every key so env overrides and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("wordpress.base_url", "")
	v.SetDefault("wordpress.user", "")
	v.SetDefault("wordpress.password", "")

	v.SetDefault("publish.concurrency", DefaultConcurrency)
	v.SetDefault("publish.batch_size", DefaultBatchSize)
	v.SetDefault("publish.entry_max_attempts", DefaultEntryMaxAttempts)
	v.SetDefault("publish.item_max_attempts", DefaultItemMaxAttempts)
	v.SetDefault("publish.upload_max_attempts", 0)
	v.SetDefault("publish.retry_delay", DefaultRetryDelay)
	v.SetDefault("publish.abort_on_batch_error", false)

	v.SetDefault("http.total_timeout", 2400*time.Second)
	v.SetDefault("http.connect_timeout", 240*time.Second)
	v.SetDefault("http.read_timeout", 1200*time.Second)
	v.SetDefault("http.rps", 0.0)
	v.SetDefault("http.burst", 20)
	v.SetDefault("http.retry_max", 0)

	v.SetDefault("referral.affiliate_id", DefaultAffiliateID)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("template_path", "")
}

// BindEnv wires the credential variables and WPPOST_* overrides.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("WPPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("wordpress.base_url", "WP_BASE_URL", "WPPOST_WORDPRESS_BASE_URL")
	_ = v.BindEnv("wordpress.user", "WP_USER", "WPPOST_WORDPRESS_USER")
	_ = v.BindEnv("wordpress.password", "WP_PSW", "WPPOST_WORDPRESS_PASSWORD")
}

// NewViper returns a viper instance with defaults, env bindings and, when
// the file at path exists, its contents.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, errors.Wrapf(err, "stat config %s", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return v, nil
}

// Load reads configuration from path (optional), env and defaults.
func Load(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals an already prepared viper instance.
func LoadWithViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	cfg.WordPress.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.WordPress.BaseURL), "/")
	return cfg, nil
}

// Validate checks the tunables every command relies on.
func (c Config) Validate() error {
	p := c.Publish
	switch {
	case p.Concurrency < 1:
		return errors.Newf("publish.concurrency must be >= 1, got %d", p.Concurrency)
	case p.BatchSize < 1:
		return errors.Newf("publish.batch_size must be >= 1, got %d", p.BatchSize)
	case p.EntryMaxAttempts < 1:
		return errors.Newf("publish.entry_max_attempts must be >= 1, got %d", p.EntryMaxAttempts)
	case p.ItemMaxAttempts < 1:
		return errors.Newf("publish.item_max_attempts must be >= 1, got %d", p.ItemMaxAttempts)
	case p.UploadMaxAttempts < 0:
		return errors.Newf("publish.upload_max_attempts must be >= 0, got %d", p.UploadMaxAttempts)
	case p.RetryDelay < 0:
		return errors.Newf("publish.retry_delay must not be negative, got %s", p.RetryDelay)
	case c.HTTP.RetryMax < 0:
		return errors.Newf("http.retry_max must be >= 0, got %d", c.HTTP.RetryMax)
	}
	return nil
}

// ValidateRemote additionally checks what talking to the site needs.
func (c Config) ValidateRemote() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.WordPress.BaseURL == "" {
		return errors.WithHint(errors.New("wordpress.base_url is empty"), "set WP_BASE_URL or wordpress.base_url in the config file")
	}
	if c.WordPress.User == "" || c.WordPress.Password == "" {
		return errors.WithHint(errors.New("wordpress credentials are empty"), "set WP_USER and WP_PSW")
	}
	return nil
}

// fileConfig is the on-disk shape written by Save. Credentials stay in env.
type fileConfig struct {
	WordPress struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"wordpress"`
	Publish struct {
		Concurrency       int    `yaml:"concurrency"`
		BatchSize         int    `yaml:"batch_size"`
		EntryMaxAttempts  int    `yaml:"entry_max_attempts"`
		ItemMaxAttempts   int    `yaml:"item_max_attempts"`
		UploadMaxAttempts int    `yaml:"upload_max_attempts"`
		RetryDelay        string `yaml:"retry_delay"`
		AbortOnBatchError bool   `yaml:"abort_on_batch_error"`
	} `yaml:"publish"`
	HTTP struct {
		TotalTimeout   string  `yaml:"total_timeout"`
		ConnectTimeout string  `yaml:"connect_timeout"`
		ReadTimeout    string  `yaml:"read_timeout"`
		RPS            float64 `yaml:"rps"`
		Burst          int     `yaml:"burst"`
		RetryMax       int     `yaml:"retry_max"`
	} `yaml:"http"`
	Referral struct {
		AffiliateID string `yaml:"affiliate_id"`
	} `yaml:"referral"`
	Ledger struct {
		DSN string `yaml:"dsn,omitempty"`
	} `yaml:"ledger"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	TemplatePath string `yaml:"template_path,omitempty"`
}

// Marshal renders cfg as YAML without credentials.
func Marshal(cfg Config) ([]byte, error) {
	var f fileConfig
	f.WordPress.BaseURL = cfg.WordPress.BaseURL
	f.Publish.Concurrency = cfg.Publish.Concurrency
	f.Publish.BatchSize = cfg.Publish.BatchSize
	f.Publish.EntryMaxAttempts = cfg.Publish.EntryMaxAttempts
	f.Publish.ItemMaxAttempts = cfg.Publish.ItemMaxAttempts
	f.Publish.UploadMaxAttempts = cfg.Publish.UploadMaxAttempts
	f.Publish.RetryDelay = cfg.Publish.RetryDelay.String()
	f.Publish.AbortOnBatchError = cfg.Publish.AbortOnBatchError
	f.HTTP.TotalTimeout = cfg.HTTP.TotalTimeout.String()
	f.HTTP.ConnectTimeout = cfg.HTTP.ConnectTimeout.String()
	f.HTTP.ReadTimeout = cfg.HTTP.ReadTimeout.String()
	f.HTTP.RPS = cfg.HTTP.RPS
	f.HTTP.Burst = cfg.HTTP.Burst
	f.HTTP.RetryMax = cfg.HTTP.RetryMax
	f.Referral.AffiliateID = cfg.Referral.AffiliateID
	f.Ledger.DSN = cfg.Ledger.DSN
	f.Log.Level = cfg.Log.Level
	f.Log.File = cfg.Log.File
	f.TemplatePath = cfg.TemplatePath

	out, err := yaml.Marshal(&f)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return out, nil
}

// Save writes cfg to path. Existing files are replaced.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// Defaults returns the configuration with no file and no environment.
func Defaults() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := LoadWithViper(v)
	return cfg
}
