package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count parsed from "N", "NKB", "NMB", or "NGB".
// It implements encoding.TextUnmarshaler so caarlos0/env can parse it
// directly from an environment variable.
type ByteSize int64

const (
	kilobyte = 1024
	megabyte = 1024 * kilobyte
	gigabyte = 1024 * megabyte
)

// UnmarshalText parses a human-readable size string.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Int64 returns the size in bytes.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

func (b ByteSize) String() string {
	switch {
	case b >= gigabyte && b%gigabyte == 0:
		return fmt.Sprintf("%dGB", int64(b)/gigabyte)
	case b >= megabyte && b%megabyte == 0:
		return fmt.Sprintf("%dMB", int64(b)/megabyte)
	case b >= kilobyte && b%kilobyte == 0:
		return fmt.Sprintf("%dKB", int64(b)/kilobyte)
	default:
		return strconv.FormatInt(int64(b), 10)
	}
}

// ParseByteSize parses "N" (bytes), "NKB", "NMB", or "NGB", case-insensitive.
func ParseByteSize(raw string) (ByteSize, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = gigabyte
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = megabyte
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		multiplier = kilobyte
		s = s[:len(s)-2]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("size must not be negative: %q", raw)
	}

	return ByteSize(n * multiplier), nil
}
