package onboarding

import (
	"context"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Environment variables read by EnvCollector.
const (
	EnvHost     = "ACTUATOR_HOST"
	EnvPort     = "ACTUATOR_PORT"
	EnvUser     = "ACTUATOR_USER"
	EnvPassword = "ACTUATOR_PASSWORD"
)

// EnvCollector reads credentials from the environment for unattended
// installs. It cancels when a variable is missing or when asked again after
// a failed probe, since the environment would hand back the same values.
type EnvCollector struct {
	lookup func(string) (string, bool)
}

// NewEnvCollector reads from the process environment.
func NewEnvCollector() *EnvCollector {
	return &EnvCollector{lookup: os.LookupEnv}
}

func (c *EnvCollector) CollectCredentials(_ context.Context, h Hints) (Submission, error) {
	if h.Retry {
		log.Warn().Str("host", h.Host).Str("user", h.UserName).Msg("Environment credentials rejected by broker")
		return Submission{}, ErrCancelled
	}

	get := func(key, def string) string {
		if v, ok := c.lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	port := h.Port
	if p := get(EnvPort, ""); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			log.Warn().Str("value", p).Msg("Invalid " + EnvPort)
			return Submission{}, ErrCancelled
		}
		port = n
	}

	s := Submission{
		Host:     get(EnvHost, h.Host),
		Port:     port,
		UserName: get(EnvUser, h.UserName),
		Password: get(EnvPassword, ""),
	}
	if err := s.Validate(); err != nil {
		log.Warn().Err(err).Msg("Incomplete credentials in environment")
		return Submission{}, ErrCancelled
	}
	return s, nil
}

// NoneCollector always cancels.
type NoneCollector struct{}

func (NoneCollector) CollectCredentials(context.Context, Hints) (Submission, error) {
	return Submission{}, ErrCancelled
}
