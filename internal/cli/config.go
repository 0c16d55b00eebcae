package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.yaml"

// Config represents the configuration for the OpsDeck CLI.
// It contains server connection details and local cache locations.
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version"`
	// ServerURL is the base URL of the OpsDeck API, including the /api prefix
	ServerURL string `yaml:"server_url" validate:"required"`
	// Retries is the default number of retries after a failed request.
	// Zero uses the built-in default, -1 disables retries.
	Retries int `yaml:"retries" validate:"gte=-1"`
	// DefaultPageSize is the page size requested by list commands
	DefaultPageSize int `yaml:"default_page_size" validate:"gte=0,lte=500"`
	// CookieJarPath is where the session cookies are persisted
	CookieJarPath string `yaml:"cookie_jar_path"`
	// ProfileCachePath is where the logged-in user profile is cached
	ProfileCachePath string `yaml:"profile_cache_path"`
}

var config *Config

var validate = validator.New()

// GetDefaultConfigPath returns the default path for the config file
// It uses the OS-specific config directory (e.g., ~/.config/opsdeck on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "opsdeck", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the specified file
// If no file is specified, it uses the default config location.
// Environment variables (optionally from a .env file) override the file:
// OPSDECK_SERVER_URL and OPSDECK_RETRIES are honored.
func LoadConfig(file string) error {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	yamlStr, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(yamlStr, &c); err != nil {
		return fmt.Errorf("unable to parse config file: %w", err)
	}

	applyEnvOverrides(&c)

	if err := c.Validate(); err != nil {
		return err
	}

	c.ServerURL = MorphServer(c.ServerURL)

	config = &c
	return nil
}

// applyEnvOverrides layers environment variables over the file config.
// A .env in the working directory is loaded first if present.
func applyEnvOverrides(c *Config) {
	godotenv.Load()

	if v := os.Getenv("OPSDECK_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("OPSDECK_RETRIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			c.Retries = n
		}
	}
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	return config
}

// WriteConfig writes the current configuration to the specified file
// If no file is specified, it uses the default config location
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	err := os.MkdirAll(filepath.Dir(file), os.ModePerm)
	if err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	yamlStr, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	err = os.WriteFile(file, yamlStr, os.FileMode(0600))
	if err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}

	return nil
}

// Validate checks required fields and value ranges.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: field %s failed on %s", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Print prints the current configuration in a human-readable format
func (cfg *Config) Print() {
	fmt.Printf("Server: %s\n", cfg.ServerURL)
	if cfg.DefaultPageSize > 0 {
		fmt.Printf("Page size: %d\n", cfg.DefaultPageSize)
	}
}

// MorphServer ensures the server URL is properly formatted
// Adds https:// prefix if missing and removes trailing slashes
func MorphServer(server string) string {
	if server == "" {
		return server
	}

	server = strings.TrimRight(server, "/")

	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}

	return server
}

// GetServerURL returns the properly formatted server URL
func (cfg *Config) GetServerURL() string {
	return MorphServer(cfg.ServerURL)
}

// GetDefaultRetries returns the configured retry count for failed requests
func (cfg *Config) GetDefaultRetries() int {
	return cfg.Retries
}

// CookieJarFile resolves the cookie jar location, defaulting next to the
// config file.
func (cfg *Config) CookieJarFile() string {
	if cfg.CookieJarPath != "" {
		return cfg.CookieJarPath
	}
	return siblingOfConfig("cookies.json")
}

// ProfileCacheFile resolves the profile cache location, defaulting next to
// the config file.
func (cfg *Config) ProfileCacheFile() string {
	if cfg.ProfileCachePath != "" {
		return cfg.ProfileCachePath
	}
	return siblingOfConfig("profile.json")
}

func siblingOfConfig(name string) string {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(path), name)
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `Manage CLI configuration settings like the server connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverFlag, _ := cmd.Flags().GetString("server")
		if serverFlag != "" {
			return setServerConfig(serverFlag)
		}

		cmd.Help()
		return nil
	},
}

func init() {
	configCmd.Flags().String("server", "", "Set the API base URL (e.g., https://desk.example.com/api)")

	rootCmd.AddCommand(configCmd)
}

// setServerConfig sets the server configuration in the config file
func setServerConfig(server string) error {
	configPath := configFile
	if configPath == "" {
		var err error
		configPath, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	cfg := &Config{
		Version:   "0.1.0",
		ServerURL: MorphServer(server),
	}

	if err := cfg.WriteConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]string{
			"server":      cfg.ServerURL,
			"config_file": configPath,
		})
	} else {
		fmt.Printf("Server configured: %s\n", cfg.ServerURL)
		fmt.Printf("Config file: %s\n", configPath)
	}

	return nil
}
