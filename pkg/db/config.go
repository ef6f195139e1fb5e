package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/urmzd/actuator/pkg/session"
)

// DefaultAPIAddress is the local API listen address used until one is stored.
const DefaultAPIAddress = "127.0.0.1:8080"

// LoadCredentials reads the five session keys. Missing keys read as empty
// string or zero; callers check Complete before connecting.
func (s *Settings) LoadCredentials(ctx context.Context) session.Credentials {
	return session.Credentials{
		Host:               s.GetString(ctx, KeyHost, ""),
		Port:               s.GetInt(ctx, KeyPort, 0),
		UserName:           s.GetString(ctx, KeyUserName, ""),
		PasswordHash:       s.GetString(ctx, KeyPasswordHash, ""),
		PasswordHashMethod: s.GetString(ctx, KeyPasswordHashMethod, ""),
	}
}

// CredentialHints returns the host, port and user name to pre-fill the
// onboarding collector with, falling back to the defaults.
func (s *Settings) CredentialHints(ctx context.Context) (host string, port int, userName string) {
	creds := s.LoadCredentials(ctx)
	host, port = creds.Host, creds.Port
	if host == "" {
		host = session.DefaultHost
	}
	if port <= 0 || port > 65535 {
		port = session.DefaultPort
	}
	return host, port, creds.UserName
}

// SaveCredentials writes the five session keys in one transaction so they are
// never partially updated.
func (s *Settings) SaveCredentials(ctx context.Context, creds session.Credentials) error {
	values := []struct {
		key   string
		value any
	}{
		{KeyHost, creds.Host},
		{KeyPort, creds.Port},
		{KeyUserName, creds.UserName},
		{KeyPasswordHash, creds.PasswordHash},
		{KeyPasswordHashMethod, creds.PasswordHashMethod},
	}

	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		for _, v := range values {
			raw, err := json.Marshal(v.value)
			if err != nil {
				return fmt.Errorf("failed to encode setting %s: %w", v.key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
			`, v.key, string(raw)); err != nil {
				return fmt.Errorf("failed to write setting %s: %w", v.key, err)
			}
		}
		return nil
	})
}

// APIAddress returns the local API listen address.
func (s *Settings) APIAddress(ctx context.Context) string {
	return s.GetString(ctx, KeyAPIAddress, DefaultAPIAddress)
}
