package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is an interval written as a number of seconds or as an integer
// followed by one of the units s, m or h ("30s", "5m", "1h").
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: interval must be a scalar", value.Line)
	}

	parsed, err := ParseInterval(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return fmt.Sprintf("%ds", int64(time.Duration(d)/time.Second)), nil
}

// ParseInterval parses "<n>s", "<n>m", "<n>h" or a bare "<n>" meaning
// seconds. Anything else, including zero, negative and out of range values,
// is an error.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty interval", ErrInvalidConfig)
	}

	unit := time.Second
	digits := s
	switch s[len(s)-1] {
	case 's':
		digits = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		digits = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		digits = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: malformed interval %q", ErrInvalidConfig, s)
	}
	if n > uint64(math.MaxInt64/int64(unit)) {
		return 0, fmt.Errorf("%w: interval %q out of range", ErrInvalidConfig, s)
	}

	return time.Duration(n) * unit, nil
}
