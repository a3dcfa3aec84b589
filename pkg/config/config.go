package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the application configuration
type Config struct {
	AWS           AWSConfig     `yaml:"aws"`
	Images        ImageConfig   `yaml:"images"`
	DefaultValues DefaultValues `yaml:"defaults"`
	LedgerPath    string        `yaml:"ledger_path"`
	ListenAddr    string        `yaml:"listen_addr"`
}

// AWSConfig holds AWS-specific configuration
type AWSConfig struct {
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	SessionToken  string `yaml:"session_token"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	AssumeRoleARN string `yaml:"assume_role_arn"`
	// MaxRetries of 0 disables retries; a negative value keeps the SDK default
	MaxRetries int `yaml:"max_retries"`
}

// ImageConfig controls image listing and image creation from instances
type ImageConfig struct {
	Owners         []string      `yaml:"owners"`
	CreateAttempts int           `yaml:"create_attempts"`
	CreateInterval time.Duration `yaml:"create_interval"`
}

// DefaultValues holds default configuration values
type DefaultValues struct {
	InstanceType     string `yaml:"instance_type"`
	AvailabilityZone string `yaml:"availability_zone"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		AWS: AWSConfig{
			Region:     "us-east-1",
			MaxRetries: -1,
		},
		Images: ImageConfig{
			Owners:         []string{"self"},
			CreateAttempts: 3,
			CreateInterval: 1 * time.Second,
		},
		DefaultValues: DefaultValues{
			InstanceType:     "t2.nano",
			AvailabilityZone: "us-east-1a",
		},
		ListenAddr: ":8080",
	}
}

// LoadConfig loads configuration from an optional YAML file and then from
// environment variables, which take precedence.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.AWS.AccessKey = getEnvOrDefault("AWS_ACCESS_KEY_ID", config.AWS.AccessKey)
	config.AWS.SecretKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", config.AWS.SecretKey)
	config.AWS.SessionToken = getEnvOrDefault("AWS_SESSION_TOKEN", config.AWS.SessionToken)
	config.AWS.Region = getEnvOrDefault("AWS_REGION", config.AWS.Region)
	config.AWS.Endpoint = getEnvOrDefault("CLOUDBRIDGE_ENDPOINT", config.AWS.Endpoint)
	config.AWS.AssumeRoleARN = getEnvOrDefault("CLOUDBRIDGE_ASSUME_ROLE_ARN", config.AWS.AssumeRoleARN)
	config.LedgerPath = getEnvOrDefault("CLOUDBRIDGE_LEDGER", config.LedgerPath)

	if v := os.Getenv("CLOUDBRIDGE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid CLOUDBRIDGE_MAX_RETRIES %q", v)
		}
		config.AWS.MaxRetries = n
	}
	if v := os.Getenv("CLOUDBRIDGE_IMAGE_OWNERS"); v != "" {
		config.Images.Owners = splitList(v)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	// Validate required credentials
	if c.AWS.AccessKey == "" {
		return errors.New("AWS_ACCESS_KEY_ID environment variable is required")
	}
	if c.AWS.SecretKey == "" {
		return errors.New("AWS_SECRET_ACCESS_KEY environment variable is required")
	}
	if c.AWS.Region == "" {
		return errors.New("region is required")
	}
	if len(c.Images.Owners) == 0 {
		return errors.New("at least one image owner is required")
	}
	if c.Images.CreateAttempts < 1 {
		return fmt.Errorf("images.create_attempts must be at least 1, got %d", c.Images.CreateAttempts)
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidatePublicKeyPath validates that the public key file exists and is readable
func ValidatePublicKeyPath(path string) error {
	if path == "" {
		return errors.New("public key path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("public key file does not exist")
		}
		return err
	}

	if info.IsDir() {
		return errors.New("public key path is a directory, not a file")
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.New("cannot read public key file")
	}
	file.Close()

	return nil
}
