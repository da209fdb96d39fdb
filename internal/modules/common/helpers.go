package common

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Env resolves the environment variable named by name. An empty name yields
// an empty value; an unset variable is logged and also yields an empty value.
func Env(logger *zap.Logger, name string) string {
	if name == "" {
		return ""
	}
	value, ok := os.LookupEnv(name)
	if !ok {
		logger.Warn("Environment variable not set", zap.String("env", name))
	}
	return value
}

// EnvOr is Env with a fallback for empty results.
func EnvOr(logger *zap.Logger, name, fallback string) string {
	if v := Env(logger, name); v != "" {
		return v
	}
	return fallback
}

// RenderPath expands {date}, {hour}, {year}, {month} and {day} using t in UTC.
func RenderPath(pattern string, t time.Time) string {
	t = t.UTC()
	return strings.NewReplacer(
		"{date}", t.Format("2006-01-02"),
		"{hour}", t.Format("15"),
		"{year}", t.Format("2006"),
		"{month}", t.Format("01"),
		"{day}", t.Format("02"),
	).Replace(pattern)
}
