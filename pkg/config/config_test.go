package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/pkg/config"
)

var envKeys = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AWS_REGION",
	"CLOUDBRIDGE_ENDPOINT",
	"CLOUDBRIDGE_ASSUME_ROLE_ARN",
	"CLOUDBRIDGE_MAX_RETRIES",
	"CLOUDBRIDGE_IMAGE_OWNERS",
	"CLOUDBRIDGE_LEDGER",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		accessKey string
		secretKey string
		region    string
		hasError  bool
	}{
		{
			name:      "valid configuration",
			accessKey: "test-access-key",
			secretKey: "test-secret-key",
			region:    "us-west-2",
			hasError:  false,
		},
		{
			name:      "missing access key",
			accessKey: "",
			secretKey: "test-secret-key",
			region:    "us-west-2",
			hasError:  true,
		},
		{
			name:      "missing secret key",
			accessKey: "test-access-key",
			secretKey: "",
			region:    "us-west-2",
			hasError:  true,
		},
		{
			name:      "default region",
			accessKey: "test-access-key",
			secretKey: "test-secret-key",
			region:    "",
			hasError:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("AWS_ACCESS_KEY_ID", tt.accessKey)
			t.Setenv("AWS_SECRET_ACCESS_KEY", tt.secretKey)
			t.Setenv("AWS_REGION", tt.region)

			cfg, err := config.LoadConfig("")

			if tt.hasError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if cfg.AWS.AccessKey != tt.accessKey {
				t.Errorf("AccessKey mismatch: got %s, want %s", cfg.AWS.AccessKey, tt.accessKey)
			}
			expectedRegion := tt.region
			if expectedRegion == "" {
				expectedRegion = "us-east-1"
			}
			if cfg.AWS.Region != expectedRegion {
				t.Errorf("Region mismatch: got %s, want %s", cfg.AWS.Region, expectedRegion)
			}
			if len(cfg.Images.Owners) != 1 || cfg.Images.Owners[0] != "self" {
				t.Errorf("Images.Owners = %v, want [self]", cfg.Images.Owners)
			}
			if cfg.Images.CreateAttempts != 3 || cfg.Images.CreateInterval != time.Second {
				t.Errorf("image create retry = %d x %s, want 3 x 1s", cfg.Images.CreateAttempts, cfg.Images.CreateInterval)
			}
		})
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cloudbridge.yaml")
	content := `aws:
  access_key: file-access-key
  secret_key: file-secret-key
  region: eu-west-1
  endpoint: http://localhost:4566
images:
  owners: [self, amazon]
  create_attempts: 5
  create_interval: 2s
ledger_path: /tmp/ledger.json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("AWS_REGION", "ap-south-1")
	t.Setenv("CLOUDBRIDGE_MAX_RETRIES", "7")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.AWS.AccessKey != "file-access-key" {
		t.Errorf("AccessKey = %s, want value from file", cfg.AWS.AccessKey)
	}
	if cfg.AWS.Region != "ap-south-1" {
		t.Errorf("Region = %s, want env override", cfg.AWS.Region)
	}
	if cfg.AWS.Endpoint != "http://localhost:4566" {
		t.Errorf("Endpoint = %s", cfg.AWS.Endpoint)
	}
	if cfg.AWS.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.AWS.MaxRetries)
	}
	if len(cfg.Images.Owners) != 2 || cfg.Images.Owners[1] != "amazon" {
		t.Errorf("Images.Owners = %v", cfg.Images.Owners)
	}
	if cfg.Images.CreateAttempts != 5 || cfg.Images.CreateInterval != 2*time.Second {
		t.Errorf("image create retry = %d x %s, want 5 x 2s", cfg.Images.CreateAttempts, cfg.Images.CreateInterval)
	}
	if cfg.LedgerPath != "/tmp/ledger.json" {
		t.Errorf("LedgerPath = %s", cfg.LedgerPath)
	}
	if cfg.DefaultValues.InstanceType != "t2.nano" {
		t.Errorf("defaults not kept for keys absent from the file: %+v", cfg.DefaultValues)
	}
}

func TestLoadConfig_MaxRetries(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{name: "unset keeps the SDK default", env: "", want: -1},
		{name: "zero disables retries", env: "0", want: 0},
		{name: "explicit count", env: "2", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("AWS_ACCESS_KEY_ID", "test-access-key")
			t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret-key")
			t.Setenv("CLOUDBRIDGE_MAX_RETRIES", tt.env)

			cfg, err := config.LoadConfig("")
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if cfg.AWS.MaxRetries != tt.want {
				t.Errorf("MaxRetries = %d, want %d", cfg.AWS.MaxRetries, tt.want)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{
			name: "bad max retries",
			env:  map[string]string{"CLOUDBRIDGE_MAX_RETRIES": "many"},
		},
		{
			name: "unknown key in file",
			file: "aws:\n  acess_key: typo\n",
		},
		{
			name: "zero create attempts",
			file: "images:\n  create_attempts: 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("AWS_ACCESS_KEY_ID", "key")
			t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
			t.Setenv("CLOUDBRIDGE_IMAGE_OWNERS", "self, 123456789012")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "config.yaml")
				if err := os.WriteFile(path, []byte(tt.file), 0644); err != nil {
					t.Fatalf("Failed to write config file: %v", err)
				}
			}

			if _, err := config.LoadConfig(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestValidatePublicKeyPath(t *testing.T) {
	// Create temporary directory and file for testing
	tempDir := t.TempDir()
	validKeyPath := filepath.Join(tempDir, "test_key.pub")
	dirPath := filepath.Join(tempDir, "test_dir")

	// Create a valid key file
	if err := os.WriteFile(validKeyPath, []byte("ssh-rsa AAAAB3NzaC1yc2E..."), 0644); err != nil {
		t.Fatalf("Failed to create test key file: %v", err)
	}

	// Create a directory
	if err := os.Mkdir(dirPath, 0755); err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		hasError bool
	}{
		{
			name:     "valid key file",
			path:     validKeyPath,
			hasError: false,
		},
		{
			name:     "empty path",
			path:     "",
			hasError: true,
		},
		{
			name:     "non-existent file",
			path:     filepath.Join(tempDir, "nonexistent.pub"),
			hasError: true,
		},
		{
			name:     "directory instead of file",
			path:     dirPath,
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidatePublicKeyPath(tt.path)
			if tt.hasError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}
		})
	}
}
