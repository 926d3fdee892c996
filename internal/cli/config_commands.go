package cli

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chordhq/chord/internal/config"
	"github.com/chordhq/chord/internal/constants"
	httpx "github.com/chordhq/chord/internal/http"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage chord configuration",
		Long: `Configuration management commands for chord.

Commands:
  init      - Interactive configuration setup
  show      - Display current configuration
  set-token - Update the stored API token
  test      - Test API connectivity
  path      - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetTokenCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for chord.

The configuration is saved to the platform config directory
(~/.config/chord/config.csv on Unix). The API token is written to a
separate file with owner-only permissions and never stored in the
config CSV.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.GetDefaultConfigPath()

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("chord Configuration Setup")
			fmt.Println("=========================")
			fmt.Println()

			var tokenInput string
			for tokenInput == "" {
				var err error
				tokenInput, err = promptSecret("API token (required): ")
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				if tokenInput == "" {
					fmt.Println("  Error: API token is required")
				}
			}

			apiURLInput := promptLine("API Base URL: ", "")
			for apiURLInput == "" {
				fmt.Println("  Error: API base URL is required")
				apiURLInput = promptLine("API Base URL: ", "")
			}

			cfg := &config.Config{
				APIBaseURL: apiURLInput,
				ProxyMode:  "no-proxy",
				MaxRetries: constants.DefaultMaxRetries,
			}

			fmt.Println()
			proxyInput := strings.ToLower(promptLine("Configure proxy? [y/N]: ", "n"))
			if proxyInput == "y" || proxyInput == "yes" {
				fmt.Println()
				fmt.Println("Proxy Configuration")
				fmt.Println("-------------------")
				fmt.Println("Proxy modes: no-proxy, system, basic, ntlm")
				cfg.ProxyMode = promptLine("Proxy mode [system]: ", "system")

				if cfg.ProxyMode != "no-proxy" && cfg.ProxyMode != "system" {
					cfg.ProxyHost = promptLine("Proxy host: ", "")
					if v, err := strconv.Atoi(promptLine("Proxy port [8080]: ", "8080")); err == nil && v > 0 {
						cfg.ProxyPort = v
					}
					cfg.ProxyUser = promptLine("Proxy user (optional): ", "")
				}
			}

			if err := config.EnsureConfigDir(); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			tokenPath := config.GetDefaultTokenPath()
			if err := config.WriteTokenFile(tokenPath, tokenInput); err != nil {
				return fmt.Errorf("failed to save token file: %w", err)
			}

			if err := config.SaveConfigCSV(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Println()
			fmt.Printf("Configuration saved to: %s\n", configPath)
			fmt.Printf("API token saved to:     %s\n", tokenPath)
			fmt.Println()
			fmt.Println("Test your configuration with: chord config test")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the merged configuration from:
  1. Configuration file
  2. Default token file
  3. Environment variables (CHORD_TOKEN, CHORD_API_URL)
  4. Command-line flags (--token, --api-url)

Priority: flags > environment > token file > config file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("Current Configuration")
			fmt.Println("=====================")
			fmt.Println()

			fmt.Println("API Settings:")
			fmt.Printf("  API Base URL: %s\n", cfg.APIBaseURL)
			if cfg.Token != "" {
				// Never display any portion of the token.
				fmt.Printf("  Token:        <set (%d chars)>\n", len(cfg.Token))
			} else {
				fmt.Println("  Token:        <not set>")
			}
			fmt.Println()

			fmt.Println("Rate Limit Settings:")
			fmt.Printf("  Bucket Lag:  %v\n", cfg.BucketLag())
			fmt.Printf("  Max Retries: %d\n", cfg.MaxRetries)
			fmt.Println()

			fmt.Println("Proxy Settings:")
			fmt.Printf("  Proxy Mode: %s\n", cfg.ProxyMode)
			if cfg.ProxyHost != "" {
				fmt.Printf("  Proxy Host: %s\n", cfg.ProxyHost)
				fmt.Printf("  Proxy Port: %d\n", cfg.ProxyPort)
			}
			if cfg.NoProxy != "" {
				fmt.Printf("  No Proxy:   %s\n", cfg.NoProxy)
			}
			fmt.Println()

			fmt.Printf("Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Println("  (file does not exist - using defaults)")
			}

			return nil
		},
	}
}

// newConfigSetTokenCmd creates the 'config set-token' command.
func newConfigSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token",
		Short: "Update the stored API token",
		Long: `Read a new API token without echoing it and save it to the
token file with owner-only permissions. The token never enters the
config CSV or shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenInput, err := promptSecret("New API token: ")
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			if tokenInput == "" {
				return fmt.Errorf("token must not be empty")
			}

			if err := config.EnsureConfigDir(); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			tokenPath := config.GetDefaultTokenPath()
			if err := config.WriteTokenFile(tokenPath, tokenInput); err != nil {
				return fmt.Errorf("failed to save token file: %w", err)
			}

			fmt.Printf("API token saved to: %s\n", tokenPath)
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test API connectivity",
		Long: `Test connectivity to the configured API base URL.

Use this to verify your network and proxy settings. Any HTTP response,
including an auth failure, proves the connection works.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.APIBaseURL == "" {
				return fmt.Errorf("API base URL is not configured")
			}

			if httpx.NeedsProxyPassword(cfg) {
				password, err := promptSecret(fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
				if err != nil {
					return fmt.Errorf("failed to read proxy password: %w", err)
				}
				cfg.ProxyPassword = password
			}

			transport, err := httpx.NewTransport(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("Testing connection to %s ...\n", cfg.APIBaseURL)
			ctx, cancel := context.WithTimeout(context.Background(), constants.APIConnectionTestTimeout)
			defer cancel()

			resp, err := transport.Send(ctx, nethttp.MethodGet, strings.TrimSuffix(cfg.APIBaseURL, "/")+"/", nil, nethttp.Header{})
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			fmt.Printf("Connected: server answered %d %s\n", resp.Status, resp.Reason)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			fmt.Println(configPath)
			return nil
		},
	}
}
