// Package config provides configuration management for chord.
package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chordhq/chord/internal/constants"
	"github.com/chordhq/chord/internal/ratelimit"
)

// Config holds the client configuration.
type Config struct {
	// API settings
	Token      string
	APIBaseURL string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Rate limit coordination
	BucketLagMS int // safety margin added to server reset windows, in milliseconds
	MaxRetries  int // attempts per logical request
}

// BucketLag returns the configured lag as a duration.
func (c *Config) BucketLag() time.Duration {
	return time.Duration(c.BucketLagMS) * time.Millisecond
}

// LoadConfigCSV loads configuration from a CSV file of key,value pairs.
// A missing file yields the defaults.
func LoadConfigCSV(path string) (*Config, error) {
	cfg := &Config{
		ProxyMode:   "no-proxy",
		BucketLagMS: int(ratelimit.DefaultLag / time.Millisecond),
		MaxRetries:  constants.DefaultMaxRetries,
	}

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue // header row
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "api_base_url":
			cfg.APIBaseURL = value
		case "token":
			// SECURITY: tokens in config files are ignored. Use the token
			// file written by 'config init' or the CHORD_TOKEN env var.
			if value != "" {
				log.Warn().Msg("token in config file is ignored for security - use 'config init' or CHORD_TOKEN")
			}
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "proxy_password":
			// SECURITY: proxy passwords are prompted at runtime, never read
			// from config files.
			if value != "" {
				log.Warn().Msg("proxy_password in config file is ignored for security - use the runtime prompt")
			}
		case "no_proxy":
			cfg.NoProxy = value
		case "proxy_warmup":
			cfg.ProxyWarmup = strings.ToLower(value) == "true" || value == "1"
		case "bucket_lag_ms":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				cfg.BucketLagMS = v
			}
		case "max_retries":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				cfg.MaxRetries = v
			}
		}
	}

	return cfg, nil
}

// SaveConfigCSV saves configuration to a CSV file of key,value pairs.
// Token and proxy password are never written.
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// token and proxy_password intentionally omitted for security
	records := [][]string{
		{"api_base_url", cfg.APIBaseURL},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"proxy_warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		{"bucket_lag_ms", strconv.Itoa(cfg.BucketLagMS)},
		{"max_retries", strconv.Itoa(cfg.MaxRetries)},
	}

	for _, record := range records {
		// Only write non-empty values to keep the file clean.
		if record[1] != "" && record[1] != "0" && record[1] != "false" {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	return nil
}

// MergeWithFlags merges config with command-line flags and environment
// variables. Priority (highest to lowest): flags > environment > default
// token file > config file defaults.
func (c *Config) MergeWithFlags(token, apiBaseURL string) {
	// Default token file (lowest priority - written by 'config init').
	if c.Token == "" {
		if path := GetDefaultTokenPath(); path != "" {
			if fileToken, err := ReadTokenFile(path); err == nil {
				c.Token = fileToken
			}
		}
	}

	if envToken := os.Getenv("CHORD_TOKEN"); envToken != "" {
		c.Token = envToken
	}
	if envURL := os.Getenv("CHORD_API_URL"); envURL != "" {
		c.APIBaseURL = envURL
	}

	// Command-line flags win.
	if token != "" {
		c.Token = token
	}
	if apiBaseURL != "" {
		c.APIBaseURL = apiBaseURL
	}

	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "https://" + c.APIBaseURL
	}
}

// Validate checks that the configuration can drive a client.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required (set via config file, CHORD_API_URL, or --api-url)")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required (set via 'config init', CHORD_TOKEN, or --token)")
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("unsupported proxy mode: %s", c.ProxyMode)
	}
	return nil
}
