package utils_test

import (
	"testing"
	"time"

	"github.com/01000101/cloudbridge/internal/utils"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		hasError bool
	}{
		{
			name:     "standard go duration",
			input:    "1m30s",
			expected: 1*time.Minute + 30*time.Second,
		},
		{
			name:     "minutes only",
			input:    "10m",
			expected: 10 * time.Minute,
		},
		{
			name:     "just number (assume seconds)",
			input:    "90",
			expected: 90 * time.Second,
		},
		{
			name:     "with space - 30 minutes",
			input:    "30 minutes",
			expected: 30 * time.Minute,
		},
		{
			name:     "with space - 45 seconds",
			input:    "45 seconds",
			expected: 45 * time.Second,
		},
		{
			name:     "with space - 1 hour",
			input:    "1 hour",
			expected: time.Hour,
		},
		{
			name:     "unknown unit",
			input:    "2 fortnights",
			hasError: true,
		},
		{
			name:     "invalid format",
			input:    "invalid",
			hasError: true,
		},
		{
			name:     "empty string",
			input:    "",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := utils.ParseDuration(tt.input)
			if tt.hasError {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
		{3 * 24 * time.Hour, "3d"},
		{2*24*time.Hour + 5*time.Hour, "2d5h"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := utils.FormatDuration(tt.input); result != tt.expected {
				t.Errorf("FormatDuration(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidateInstanceType(t *testing.T) {
	tests := []struct {
		instanceType string
		hasError     bool
	}{
		{"t2.nano", false},
		{"m5.large", false},
		{"c6gn.16xlarge", false},
		{"u-6tb1.metal", false},
		{"T2.Nano", true},
		{"t2_nano", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.instanceType, func(t *testing.T) {
			err := utils.ValidateInstanceType(tt.instanceType)
			if tt.hasError && err == nil {
				t.Errorf("ValidateInstanceType(%q) expected error, got nil", tt.instanceType)
			}
			if !tt.hasError && err != nil {
				t.Errorf("ValidateInstanceType(%q) unexpected error: %v", tt.instanceType, err)
			}
		})
	}
}

func TestValidateAvailabilityZone(t *testing.T) {
	tests := []struct {
		name     string
		az       string
		hasError bool
	}{
		{"valid us-east-1a", "us-east-1a", false},
		{"valid ap-southeast-1c", "ap-southeast-1c", false},
		{"invalid format", "invalid", true},
		{"empty string", "", true},
		{"too short", "us-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.ValidateAvailabilityZone(tt.az)
			if tt.hasError && err == nil {
				t.Errorf("ValidateAvailabilityZone(%q) expected error, got nil", tt.az)
			}
			if !tt.hasError && err != nil {
				t.Errorf("ValidateAvailabilityZone(%q) unexpected error: %v", tt.az, err)
			}
		})
	}
}

func TestValidateResourceName(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name     string
		input    string
		hasError bool
	}{
		{"simple", "cbtestkeypairA-1", false},
		{"blank", "   ", true},
		{"too long", string(long), true},
		{"non ascii", "clé", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.ValidateResourceName(tt.input)
			if tt.hasError && err == nil {
				t.Errorf("ValidateResourceName(%q) expected error, got nil", tt.input)
			}
			if !tt.hasError && err != nil {
				t.Errorf("ValidateResourceName(%q) unexpected error: %v", tt.input, err)
			}
		})
	}
}

func TestValidateCIDR(t *testing.T) {
	for _, cidr := range []string{"0.0.0.0/0", "10.0.0.0/16", "::/0"} {
		if err := utils.ValidateCIDR(cidr); err != nil {
			t.Errorf("ValidateCIDR(%q) unexpected error: %v", cidr, err)
		}
	}
	for _, cidr := range []string{"", "10.0.0.0", "300.0.0.0/8"} {
		if err := utils.ValidateCIDR(cidr); err == nil {
			t.Errorf("ValidateCIDR(%q) expected error, got nil", cidr)
		}
	}
}

func TestIsIPv6CIDR(t *testing.T) {
	tests := map[string]bool{
		"::/0":          true,
		"2001:db8::/32": true,
		"0.0.0.0/0":     false,
		"not-a-cidr":    false,
	}
	for cidr, want := range tests {
		if got := utils.IsIPv6CIDR(cidr); got != want {
			t.Errorf("IsIPv6CIDR(%q) = %v, want %v", cidr, got, want)
		}
	}
}

func TestValidateProtocolAndPorts(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		from, to int64
		hasError bool
	}{
		{"tcp single port", "tcp", 1111, 1111, false},
		{"upper case tcp", "TCP", 22, 22, false},
		{"udp range", "udp", 1000, 2000, false},
		{"icmp wildcard", "icmp", -1, -1, false},
		{"all protocols ignore ports", "-1", 0, 0, false},
		{"all alias", "all", -5, 99999, false},
		{"protocol number", "47", 0, 0, false},
		{"unknown protocol", "sctpx", 0, 0, true},
		{"reversed range", "tcp", 2000, 1000, true},
		{"port too large", "tcp", 1, 70000, true},
		{"negative tcp port", "tcp", -1, 22, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.ValidateProtocol(tt.protocol)
			if err == nil {
				err = utils.ValidatePortRange(tt.protocol, tt.from, tt.to)
			}
			if tt.hasError && err == nil {
				t.Errorf("expected error for %s %d-%d, got nil", tt.protocol, tt.from, tt.to)
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error for %s %d-%d: %v", tt.protocol, tt.from, tt.to, err)
			}
		})
	}
}
