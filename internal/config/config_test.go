// This test file verifies the configuration loading logic using Viper.

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		// Ensure no config file exists for this test
		os.Remove("config.yml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if default values are set
		if cfg.Port != 3000 {
			t.Errorf("Expected default port 3000, got %d", cfg.Port)
		}
		if cfg.Backend.BaseURL != "http://localhost:8000" {
			t.Errorf("Expected default backend URL, got '%s'", cfg.Backend.BaseURL)
		}
		if cfg.Upload.MaxSizeMB != 10 {
			t.Errorf("Expected default upload limit 10, got %d", cfg.Upload.MaxSizeMB)
		}
		if cfg.History.RetentionDays != 30 {
			t.Errorf("Expected default retention of 30 days, got %d", cfg.History.RetentionDays)
		}
	})

	t.Run("Loads from config file", func(t *testing.T) {
		// Create a temporary config file for this test
		configContent := `
port: 9999
backend:
  base_url: "http://ai-backend:8000"
  submit_timeout: 30
database:
  path: "/tmp/test.db"
unknown_setting: "should be ignored"
`
		// Create the config file in the current directory so Viper can find it.
		configPath := "config.yml"
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}
		// Clean up the file after the test
		defer os.Remove(configPath)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if values from the file were loaded
		if cfg.Port != 9999 {
			t.Errorf("Expected port 9999, got %d", cfg.Port)
		}
		if cfg.Backend.BaseURL != "http://ai-backend:8000" {
			t.Errorf("Expected backend URL 'http://ai-backend:8000', got '%s'", cfg.Backend.BaseURL)
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Expected db path '/tmp/test.db', got '%s'", cfg.Database.Path)
		}
		if cfg.Backend.ProcessTimeout != 300 {
			t.Errorf("Expected default process timeout of 300, got %d", cfg.Backend.ProcessTimeout)
		}
	})
}

func TestSubmitTimeout(t *testing.T) {
	var cfg Config
	cfg.Backend.SubmitTimeout = 60
	cfg.Backend.ProcessTimeout = 300

	if got := cfg.SubmitTimeout("background_removal"); got != 60*time.Second {
		t.Errorf("Expected 60s for background removal, got %v", got)
	}
	if got := cfg.SubmitTimeout("upscaling"); got != 300*time.Second {
		t.Errorf("Expected 300s for upscaling, got %v", got)
	}
	if got := cfg.SubmitTimeout("generation"); got != 300*time.Second {
		t.Errorf("Expected 300s for generation, got %v", got)
	}

	cfg.Backend.SubmitTimeout = 0
	if got := cfg.SubmitTimeout("enhancement"); got != 60*time.Second {
		t.Errorf("Expected 60s fallback for unset timeout, got %v", got)
	}
}
