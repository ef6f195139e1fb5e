package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrSettingNotFound = errors.New("setting not found")

// Persisted setting keys.
const (
	KeyDeviceID           = "DeviceId"
	KeyOutput             = "Actuator.Output"
	KeyHost               = "XmppHost"
	KeyPort               = "XmppPort"
	KeyUserName           = "XmppUserName"
	KeyPasswordHash       = "XmppPasswordHash"
	KeyPasswordHashMethod = "XmppPasswordHashMethod"
	KeyAPIAddress         = "Api.Address"
)

// Settings is a process-wide key/value store backed by the settings table.
// Values are stored JSON-encoded so bools and ints round-trip with their type.
// It is safe for concurrent use.
type Settings struct {
	db *DB
}

// Settings returns the key/value store for this database.
func (db *DB) Settings() *Settings {
	return &Settings{db: db}
}

// Lookup decodes the value stored under key into dst.
// Returns ErrSettingNotFound if the key has never been set.
func (s *Settings) Lookup(ctx context.Context, key string, dst any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrSettingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Settings) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in lexical order.
func (s *Settings) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetString returns the string stored under key, or def when it is missing
// or unreadable. Read failures are logged, never returned.
func (s *Settings) GetString(ctx context.Context, key, def string) string {
	var v string
	if !s.get(ctx, key, &v) {
		return def
	}
	return v
}

// GetInt returns the integer stored under key, or def.
func (s *Settings) GetInt(ctx context.Context, key string, def int) int {
	var v int
	if !s.get(ctx, key, &v) {
		return def
	}
	return v
}

// GetBool returns the boolean stored under key, or def.
func (s *Settings) GetBool(ctx context.Context, key string, def bool) bool {
	var v bool
	if !s.get(ctx, key, &v) {
		return def
	}
	return v
}

func (s *Settings) get(ctx context.Context, key string, dst any) bool {
	err := s.Lookup(ctx, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrSettingNotFound) {
		log.Warn().Err(err).Str("key", key).Msg("Setting unavailable, using default")
	}
	return false
}
