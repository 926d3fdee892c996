package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ConfigDir is the configuration directory name under the platform config
// root.
const ConfigDir = "chord"

// getConfigDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\Chord
//   - Unix: ~/.config/chord (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chord")
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", "Chord")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	configDir := getConfigDir()
	if configDir == "" {
		return "config.csv"
	}
	return filepath.Join(configDir, "config.csv")
}

// GetDefaultTokenPath returns the default token file path. This is where
// 'config init' saves the token.
func GetDefaultTokenPath() string {
	configDir := getConfigDir()
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "token")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	configDir := getConfigDir()
	if configDir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(configDir, 0700)
}

// ReadTokenFile reads a token from a file. The file should contain only the
// token; whitespace is trimmed. Warns if permissions are open to group or
// others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes a token to a file with owner-only permissions.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
