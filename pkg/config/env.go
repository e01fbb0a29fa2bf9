package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the environment variable value for key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the environment variable value for key parsed as int, or def if unset or invalid.
func GetEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvFloat returns the value for key parsed as float64, or def if unset or invalid.
func GetEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}

// GetEnvBool parses "true"/"false"/"1"/"0" style values, returning def otherwise.
func GetEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// GetEnvDuration returns the environment variable value for key parsed as time.Duration, or def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// GetEnvTime returns the value for key parsed as an HH:MM time of day, falling back to
// defaultTime when unset or invalid. Only the offset from midnight is meaningful.
func GetEnvTime(key, defaultTime string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		value = defaultTime
	}

	t, err := time.Parse("15:04", value)
	if err != nil {
		t, _ = time.Parse("15:04", defaultTime)
	}

	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// GetEnvList splits a comma-separated value, trimming blanks. def is returned when unset.
func GetEnvList(key string, def []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetEnvLocation loads a tz database location, falling back to def and then UTC.
func GetEnvLocation(key, def string) *time.Location {
	name := GetEnv(key, def)
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(def); err == nil {
		return loc
	}
	return time.UTC
}
