// Package onboarding collects session credentials when none are stored or a
// first connect with the supplied ones failed.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urmzd/actuator/pkg/session"
)

// ErrCancelled means the user (or environment) gave up on onboarding.
var ErrCancelled = errors.New("onboarding cancelled")

// Hints pre-fill the collector.
type Hints struct {
	Host     string
	Port     int
	UserName string
	// Retry is set when a probe with the previous submission failed.
	Retry bool
}

// Submission is what the collector returns.
type Submission struct {
	Host     string
	Port     int
	UserName string
	Password string
}

// Credentials hashes the password into storable credentials.
func (s Submission) Credentials() session.Credentials {
	hash, method := session.HashPassword(s.UserName, s.Password)
	return session.Credentials{
		Host:               s.Host,
		Port:               s.Port,
		UserName:           s.UserName,
		PasswordHash:       hash,
		PasswordHashMethod: method,
	}
}

// Validate checks that every field is present.
func (s Submission) Validate() error {
	if err := validateHost(s.Host); err != nil {
		return err
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if err := validateRequired(s.UserName); err != nil {
		return fmt.Errorf("user name: %w", err)
	}
	if err := validateRequired(s.Password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	return nil
}

// Collector asks for credentials.
type Collector interface {
	CollectCredentials(ctx context.Context, hints Hints) (Submission, error)
}

func validateRequired(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validateHost(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("host is required")
	}
	if strings.ContainsAny(s, " /") {
		return fmt.Errorf("must be a host name or address")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("must be a port between 1 and 65535")
	}
	return nil
}
