// Package config provides application configuration loaded from a YAML
// file with environment variable overrides for secrets and deployment
// specific values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized at load time.
const (
	// EnvUsername and EnvPassword supply the portal credentials. They are
	// never read from the configuration file.
	EnvUsername = "PJE_USERNAME"
	EnvPassword = "PJE_PASSWORD"

	// EnvPublicBaseURL overrides storage.public_base_url.
	EnvPublicBaseURL = "SERVER_BASE_URL"

	// EnvWebhookURL overrides webhook.url.
	EnvWebhookURL = "WEBHOOK_URL"
)

// Config is the root configuration for the fetcher.
type Config struct {
	Portal   PortalConfig   `yaml:"portal"`
	Browser  BrowserConfig  `yaml:"browser"`
	Storage  StorageConfig  `yaml:"storage"`
	Registry RegistryConfig `yaml:"registry"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Credentials holds the portal login secrets resolved from the environment.
type Credentials struct {
	Username string
	Password string
}

// Load reads the configuration file at path and finalizes it. A missing
// file is not an error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults, loads environment overrides and validates
// the configuration.
func (c *Config) Finalize() error {
	c.Portal.loadDefaults()
	c.Browser.loadDefaults()
	c.Storage.loadDefaults()
	c.Registry.loadDefaults()
	c.Webhook.loadDefaults()
	c.Logging.loadDefaults()

	if v := os.Getenv(EnvPublicBaseURL); v != "" {
		c.Storage.PublicBaseURL = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Webhook.URL = v
	}

	if err := c.Portal.validate(); err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	if err := c.Browser.validate(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if err := c.Webhook.validate(); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if err := c.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Credentials resolves the portal credentials from the environment.
// Both variables must be present; this is checked before any remote
// interaction is attempted.
func (c *Config) Credentials() (Credentials, error) {
	username := os.Getenv(EnvUsername)
	password := os.Getenv(EnvPassword)
	if username == "" || password == "" {
		return Credentials{}, fmt.Errorf("%s and %s must be set in the environment", EnvUsername, EnvPassword)
	}
	return Credentials{Username: username, Password: password}, nil
}

// PortalConfig describes the PJe portal endpoints.
type PortalConfig struct {
	BaseURL         string `yaml:"base_url"`
	LoginURL        string `yaml:"login_url"`
	ConsultationURL string `yaml:"consultation_url"`

	// DocumentHost is the trusted host serving rendered case documents.
	// A viewer tab is only accepted when its address contains this host.
	DocumentHost string `yaml:"document_host"`
}

func (p *PortalConfig) loadDefaults() {
	if p.BaseURL == "" {
		p.BaseURL = "https://pje.tjmg.jus.br"
	}
	if p.LoginURL == "" {
		p.LoginURL = p.BaseURL + "/pje/login.seam"
	}
	if p.ConsultationURL == "" {
		p.ConsultationURL = p.BaseURL + "/pje/Processo/ConsultaProcesso/listView.seam"
	}
	if p.DocumentHost == "" {
		p.DocumentHost = "s3-pjedocumentos.tjmg.jus.br"
	}
}

func (p *PortalConfig) validate() error {
	if p.BaseURL == "" || p.LoginURL == "" || p.ConsultationURL == "" {
		return errors.New("base_url, login_url and consultation_url are required")
	}
	if p.DocumentHost == "" {
		return errors.New("document_host is required")
	}
	return nil
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	Headless       bool `yaml:"headless"`
	ViewportWidth  int  `yaml:"viewport_width"`
	ViewportHeight int  `yaml:"viewport_height"`

	// Timeouts in seconds. Default bounds each element wait and
	// navigation, Login bounds the authentication flow, Download bounds
	// the wait for the document viewer tab.
	DefaultTimeoutSeconds  int `yaml:"default_timeout_seconds"`
	LoginTimeoutSeconds    int `yaml:"login_timeout_seconds"`
	DownloadTimeoutSeconds int `yaml:"download_timeout_seconds"`
}

func (b *BrowserConfig) loadDefaults() {
	if b.ViewportWidth == 0 {
		b.ViewportWidth = 1920
	}
	if b.ViewportHeight == 0 {
		b.ViewportHeight = 1080
	}
	if b.DefaultTimeoutSeconds == 0 {
		b.DefaultTimeoutSeconds = 30
	}
	if b.LoginTimeoutSeconds == 0 {
		b.LoginTimeoutSeconds = 45
	}
	if b.DownloadTimeoutSeconds == 0 {
		b.DownloadTimeoutSeconds = 60
	}
}

func (b *BrowserConfig) validate() error {
	if b.DefaultTimeoutSeconds < 0 || b.LoginTimeoutSeconds < 0 || b.DownloadTimeoutSeconds < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// DefaultTimeout returns the per-operation timeout.
func (b *BrowserConfig) DefaultTimeout() time.Duration {
	return time.Duration(b.DefaultTimeoutSeconds) * time.Second
}

// LoginTimeout returns the authentication flow ceiling.
func (b *BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(b.LoginTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the document retrieval ceiling.
func (b *BrowserConfig) DownloadTimeout() time.Duration {
	return time.Duration(b.DownloadTimeoutSeconds) * time.Second
}

// StorageConfig describes where downloaded artifacts live and how their
// public URLs are derived.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
}

func (s *StorageConfig) loadDefaults() {
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if s.PublicBaseURL == "" {
		s.PublicBaseURL = "https://meuservidor.com"
	}
}

// RegistryConfig locates the embedded case registry database.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

func (r *RegistryConfig) loadDefaults() {
	if r.Path == "" {
		r.Path = "case_records.db"
	}
}

// WebhookConfig configures outcome notification delivery.
type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (w *WebhookConfig) loadDefaults() {
	if w.TimeoutSeconds == 0 {
		w.TimeoutSeconds = 30
	}
}

func (w *WebhookConfig) validate() error {
	if w.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must not be negative")
	}
	return nil
}

// Timeout returns the notification delivery bound.
func (w *WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Log formats accepted by LoggingConfig.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (l *LoggingConfig) loadDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = LogFormatText
	}
}

func (l *LoggingConfig) validate() error {
	switch l.Format {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	return nil
}
