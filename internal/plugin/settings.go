package plugin

import (
	"fmt"
	"strconv"
	"time"
)

// Settings holds the per-plugin options from the plugin_settings table of
// the configuration file. All values arrive as strings; typed accessors
// report malformed values as errors so factories can fail startup.
type Settings map[string]string

// String returns the value for key, or fallback when absent.
func (s Settings) String(key, fallback string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return fallback
}

// Require returns the value for key or an error when absent or empty.
func (s Settings) Require(key string) (string, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing required option %q", key)
	}
	return v, nil
}

// Int returns the integer value for key, or fallback when absent.
func (s Settings) Int(key string, fallback int) (int, error) {
	v, ok := s[key]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	return n, nil
}

// Bool returns the boolean value for key, or fallback when absent.
func (s Settings) Bool(key string, fallback bool) (bool, error) {
	v, ok := s[key]
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %q: %w", key, err)
	}
	return b, nil
}

// Seconds interprets the value for key as a whole number of seconds, or
// fallback when absent.
func (s Settings) Seconds(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := s[key]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
