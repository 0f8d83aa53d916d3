package config

import (
	"cmp"
	"fmt"
	"net/netip"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidatePositiveDuration reports an error unless d is greater than zero.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// ValidateRange reports an error unless min <= v <= max.
//
// Example:
//
//	if err := ValidateRange(threshold, 0.0, 1.0); err != nil {
//	    return fmt.Errorf("FILTER_SIMILARITY_THRESHOLD: %w", err)
//	}
func ValidateRange[T cmp.Ordered](v, min, max T) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}
	if v < min {
		return fmt.Errorf("value %v is below minimum %v", v, min)
	}
	if v > max {
		return fmt.Errorf("value %v exceeds maximum %v", v, max)
	}
	return nil
}

// ValidateMin reports an error unless v >= min.
func ValidateMin[T cmp.Ordered](v, min T) error {
	if v < min {
		return fmt.Errorf("value %v is below minimum %v", v, min)
	}
	return nil
}

// ValidateCronSchedule parses a five field cron expression
// ("minute hour day month weekday"), the format robfig/cron uses by default.
//
// Example:
//
//	err := ValidateCronSchedule("0 0 1 * *") // first day of every month
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}
	return nil
}

// ParsePrefixes parses IP addresses and CIDR ranges. A bare address becomes
// a /32 or /128 prefix.
//
// Example:
//
//	prefixes, err := ParsePrefixes([]string{"10.0.0.0/8", "192.168.1.1"})
func ParsePrefixes(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			addr, addrErr := netip.ParseAddr(v)
			if addrErr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR '%s': must be an IP address or CIDR notation (e.g. '192.168.1.1' or '10.0.0.0/8')", v)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
