package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// must retrieves a required environment variable and exits when it is
// unset or empty.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("config: missing required env var")
	}
	return v
}

func envStr(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}

// envDur accepts Go durations ("90s") and bare integers, which are read
// as milliseconds.
func envDur(k string, d time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
