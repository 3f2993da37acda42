package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides
const EnvPrefix = "POSGW"

// Config holds all application configuration
type Config struct {
	App     AppConfig
	Server  ServerConfig
	HTTP    HTTPConfig
	Log     LogConfig
	ERP     ERPConfig
	Refresh RefreshConfig
	Redis   RedisConfig
	Metrics MetricsConfig

	// Origins allowed to send write calls when the target environment
	// declares none. Empty allows every origin.
	Origins []string
	// Environments are the ERP instances, addressed by one-character code
	Environments []EnvironmentConfig `validate:"required,min=1,unique=Code,dive"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// ServerConfig holds listener settings
type ServerConfig struct {
	Port            int `validate:"min=1,max=65535"`
	TLSCertFile     string
	TLSKeyFile      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FaviconFile     string
}

// TLSEnabled reports whether both certificate and key are configured
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// HTTPConfig holds request handling settings
type HTTPConfig struct {
	MaxBodySize    int64
	TrustedProxies []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// ERPConfig holds the default timeouts of outbound ERP calls.
// A call's own "timeout" argument overrides them.
type ERPConfig struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	FetchTimeout   time.Duration

	// ReloadTimeout bounds a catalog load triggered by a device call
	ReloadTimeout time.Duration
}

// RefreshConfig holds the background catalog refresh settings
type RefreshConfig struct {
	Username   string
	Password   string
	JobTimeout time.Duration
}

// RedisConfig holds the catalog change publisher settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string

	// PublishTimeout bounds one change notification
	PublishTimeout time.Duration
}

// MetricsConfig holds Prometheus endpoint settings
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// EnvironmentConfig describes one ERP instance
type EnvironmentConfig struct {
	Code           string   `mapstructure:"code" validate:"required,len=1"`
	Host           string   `mapstructure:"host" validate:"required"`
	Port           int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	HTTPS          bool     `mapstructure:"https"`
	Database       string   `mapstructure:"database" validate:"required"`
	Origins        []string `mapstructure:"origins"`
	RefreshMinutes int      `mapstructure:"refresh_minutes" validate:"min=0"`
}

// Environment converts the entry to its domain value
func (e EnvironmentConfig) Environment() environment.Environment {
	return environment.Environment{
		Code:            e.Code,
		Host:            e.Host,
		Port:            e.Port,
		HTTPS:           e.HTTPS,
		Database:        e.Database,
		Origins:         e.Origins,
		RefreshInterval: time.Duration(e.RefreshMinutes) * time.Minute,
	}
}

// DomainEnvironments returns the domain environments in configuration order
func (c *Config) DomainEnvironments() []environment.Environment {
	out := make([]environment.Environment, len(c.Environments))
	for i, e := range c.Environments {
		out[i] = e.Environment()
	}
	return out
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with POSGW_ prefix (e.g., POSGW_SERVER_PORT)
// 2. config.toml in ., ./config or /etc/posgateway
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/posgateway")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return build(v)
}

// LoadFile loads configuration from an explicit file, with the same
// environment variable overrides as Load.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			TLSCertFile:     v.GetString("server.tls_cert_file"),
			TLSKeyFile:      v.GetString("server.tls_key_file"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			FaviconFile:     v.GetString("server.favicon_file"),
		},
		HTTP: HTTPConfig{
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		ERP: ERPConfig{
			ConnectTimeout: v.GetDuration("erp.connect_timeout"),
			CallTimeout:    v.GetDuration("erp.call_timeout"),
			FetchTimeout:   v.GetDuration("erp.fetch_timeout"),
			ReloadTimeout:  v.GetDuration("erp.reload_timeout"),
		},
		Refresh: RefreshConfig{
			Username:   v.GetString("refresh.username"),
			Password:   v.GetString("refresh.password"),
			JobTimeout: v.GetDuration("refresh.job_timeout"),
		},
		Redis: RedisConfig{
			Enabled:        v.GetBool("redis.enabled"),
			Host:           v.GetString("redis.host"),
			Port:           v.GetInt("redis.port"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			Channel:        v.GetString("redis.channel"),
			PublishTimeout: v.GetDuration("redis.publish_timeout"),
		},

		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Path:      v.GetString("metrics.path"),
			Namespace: v.GetString("metrics.namespace"),
		},
		Origins: v.GetStringSlice("origins"),
	}

	if err := v.UnmarshalKey("environments", &cfg.Environments); err != nil {
		return nil, fmt.Errorf("error decoding environments: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "posgateway"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 80
		if cfg.Server.TLSEnabled() {
			cfg.Server.Port = 443
		}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.ERP.ConnectTimeout == 0 {
		cfg.ERP.ConnectTimeout = 5 * time.Second
	}
	if cfg.ERP.CallTimeout == 0 {
		cfg.ERP.CallTimeout = 5 * time.Second
	}
	if cfg.ERP.FetchTimeout == 0 {
		cfg.ERP.FetchTimeout = 10 * time.Second
	}
	if cfg.ERP.ReloadTimeout == 0 {
		cfg.ERP.ReloadTimeout = 10 * time.Second
	}
	if cfg.Refresh.JobTimeout == 0 {
		cfg.Refresh.JobTimeout = 30 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PublishTimeout == 0 {
		cfg.Redis.PublishTimeout = 2 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "posgw"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.HTTP.MaxBodySize < 0 {
		return fmt.Errorf("http.max_body_size cannot be negative")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	for _, e := range c.Environments {
		if e.RefreshMinutes > 0 && c.Refresh.Username == "" {
			return fmt.Errorf("refresh.username is required when environment %q has refresh_minutes", e.Code)
		}
	}
	return nil
}
