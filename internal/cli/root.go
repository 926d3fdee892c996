// Package cli provides the command-line interface for chord.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chordhq/chord/internal/api"
	"github.com/chordhq/chord/internal/config"
	httpx "github.com/chordhq/chord/internal/http"
	"github.com/chordhq/chord/internal/logging"
)

var (
	// Global flags
	cfgFile    string
	token      string
	apiBaseURL string
	verbose    bool
)

// Version information - set by main package at startup.
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chord",
		Short: "chord - rate-limit-aware API client",
		Long: `chord ` + Version + ` - Built: ` + BuildTime + `
Client for rate-limited REST APIs. Discovers per-route and global rate
limit buckets from response headers and paces requests locally so calls
wait instead of failing.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newRequestCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the config file and applies environment and flag
// overrides.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfigCSV(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.MergeWithFlags(token, apiBaseURL)
	return cfg, nil
}

// newClient builds the API client from the merged configuration, prompting
// for the proxy password when the proxy mode needs one.
func newClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if httpx.NeedsProxyPassword(cfg) {
		password, err := promptSecret(fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = password
	}

	transport, err := httpx.NewTransport(cfg)
	if err != nil {
		return nil, err
	}

	return api.NewClient(transport, cfg.APIBaseURL, cfg.Token,
		api.WithMaxRetries(cfg.MaxRetries),
		api.WithBucketLag(cfg.BucketLag()),
	), nil
}
