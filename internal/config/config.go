// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port    int `mapstructure:"port"`
	Backend struct {
		BaseURL        string `mapstructure:"base_url"`
		WebSocketURL   string `mapstructure:"websocket_url"`
		SubmitTimeout  int    `mapstructure:"submit_timeout"`  // seconds, cheap operations
		ProcessTimeout int    `mapstructure:"process_timeout"` // seconds, expensive operations
		MaxReconnects  int    `mapstructure:"max_reconnects"`
	} `mapstructure:"backend"`
	Upload struct {
		MaxSizeMB    int `mapstructure:"max_size_mb"`
		MaxSizeMBAdv int `mapstructure:"max_size_mb_advanced"`
		MaxDimension int `mapstructure:"max_dimension"`
		MinDimension int `mapstructure:"min_dimension"`
	} `mapstructure:"upload"`
	Downloads struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"downloads"`
	Watch struct {
		Path      string `mapstructure:"path"`
		Operation string `mapstructure:"operation"`
	} `mapstructure:"watch"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	History struct {
		RetentionDays   int `mapstructure:"retention_days"`
		CleanupInterval int `mapstructure:"cleanup_interval"` // minutes
	} `mapstructure:"history"`
}

// SubmitTimeout returns the client-side deadline for a submission of
// the given operation. Upscaling and generation block far longer on
// the backend than background removal, so they get the larger budget.
func (c *Config) SubmitTimeout(operation string) time.Duration {
	secs := c.Backend.SubmitTimeout
	switch operation {
	case "upscaling", "generation":
		secs = c.Backend.ProcessTimeout
	}
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// This tells Viper to look for environment variables with a "STUDIO_" prefix.
	// e.g., STUDIO_BACKEND_BASE_URL will override the `backend.base_url` key.
	viper.SetEnvPrefix("STUDIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 3000)
	viper.SetDefault("backend.base_url", "http://localhost:8000")
	viper.SetDefault("backend.websocket_url", "ws://localhost:8000")
	viper.SetDefault("backend.submit_timeout", 60)
	viper.SetDefault("backend.process_timeout", 300)
	viper.SetDefault("backend.max_reconnects", 3)
	viper.SetDefault("upload.max_size_mb", 10)
	viper.SetDefault("upload.max_size_mb_advanced", 50)
	viper.SetDefault("upload.max_dimension", 8192)
	viper.SetDefault("upload.min_dimension", 50)
	viper.SetDefault("downloads.path", "./downloads")
	viper.SetDefault("watch.path", "")
	viper.SetDefault("watch.operation", "upscaling")
	viper.SetDefault("database.path", "./studio.db")
	viper.SetDefault("history.retention_days", 30)
	viper.SetDefault("history.cleanup_interval", 60)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
