package utils

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string with support for common units
func ParseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.ToLower(strings.TrimSpace(durationStr))

	// A bare number is taken as seconds; waits are short-lived
	if val, err := strconv.Atoi(durationStr); err == nil {
		return time.Duration(val) * time.Second, nil
	}

	duration, err := time.ParseDuration(durationStr)
	if err == nil {
		return duration, nil
	}

	// Handle custom formats like "2 minutes", "30 seconds", etc.
	parts := strings.Fields(durationStr)
	if len(parts) == 2 {
		val, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid duration value: %s", parts[0])
		}

		unit := parts[1]
		switch {
		case strings.HasPrefix(unit, "second"):
			return time.Duration(val) * time.Second, nil
		case strings.HasPrefix(unit, "minute"):
			return time.Duration(val) * time.Minute, nil
		case strings.HasPrefix(unit, "hour"):
			return time.Duration(val) * time.Hour, nil
		default:
			return 0, fmt.Errorf("unknown duration unit: %s", unit)
		}
	}

	return 0, fmt.Errorf("invalid duration format: %s", durationStr)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}

var instanceTypePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*\.[a-z0-9]+$`)

// ValidateInstanceType checks that the instance type looks like "<family>.<size>"
func ValidateInstanceType(instanceType string) error {
	if !instanceTypePattern.MatchString(instanceType) {
		return fmt.Errorf("invalid instance type: %s", instanceType)
	}
	return nil
}

// ValidateAvailabilityZone checks if the availability zone format is valid
func ValidateAvailabilityZone(az string) error {
	if az == "" {
		return fmt.Errorf("availability zone cannot be empty")
	}

	// Basic validation for AWS AZ format (e.g., us-east-1a)
	parts := strings.Split(az, "-")
	if len(parts) < 3 {
		return fmt.Errorf("invalid availability zone format: %s", az)
	}

	lastPart := parts[len(parts)-1]
	if len(lastPart) < 2 {
		return fmt.Errorf("invalid availability zone format: %s", az)
	}

	return nil
}

// ValidateResourceName checks a caller-supplied natural key such as a key pair
// or security group name.
func ValidateResourceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("name is longer than 255 characters: %s", name)
	}
	for _, r := range name {
		if r > 127 {
			return fmt.Errorf("name must be ASCII: %s", name)
		}
	}
	return nil
}

// ValidateCIDR checks an IPv4 or IPv6 CIDR block
func ValidateCIDR(cidr string) error {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return fmt.Errorf("invalid CIDR block: %s", cidr)
	}
	return nil
}

// IsIPv6CIDR reports whether cidr is a valid IPv6 CIDR block
func IsIPv6CIDR(cidr string) bool {
	ip, _, err := net.ParseCIDR(cidr)
	return err == nil && ip.To4() == nil
}

// NormalizeProtocol lower-cases a protocol name and maps "all" to "-1".
func NormalizeProtocol(protocol string) string {
	p := strings.ToLower(strings.TrimSpace(protocol))
	if p == "all" {
		return "-1"
	}
	return p
}

// ValidateProtocol accepts tcp, udp, icmp, icmpv6, -1 (all) or an IP protocol number
func ValidateProtocol(protocol string) error {
	switch NormalizeProtocol(protocol) {
	case "tcp", "udp", "icmp", "icmpv6", "-1":
		return nil
	}
	n, err := strconv.Atoi(protocol)
	if err != nil || n < 0 || n > 255 {
		return fmt.Errorf("invalid protocol: %s", protocol)
	}
	return nil
}

// ValidatePortRange checks the from/to pair for the given protocol. ICMP uses
// the pair as type/code and accepts -1 as a wildcard.
func ValidatePortRange(protocol string, from, to int64) error {
	switch NormalizeProtocol(protocol) {
	case "-1":
		return nil
	case "icmp", "icmpv6":
		if from < -1 || from > 255 || to < -1 || to > 255 {
			return fmt.Errorf("invalid icmp type/code: %d/%d", from, to)
		}
		return nil
	}
	if from < 0 || from > 65535 {
		return fmt.Errorf("invalid from port: %d", from)
	}
	if to < 0 || to > 65535 {
		return fmt.Errorf("invalid to port: %d", to)
	}
	if from > to {
		return fmt.Errorf("from port %d is greater than to port %d", from, to)
	}
	return nil
}
