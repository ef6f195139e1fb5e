package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EnsureDeviceID returns the persisted device identity, generating and
// storing a new one only when none exists. An unreadable identity is
// reported, never replaced.
func (s *Settings) EnsureDeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.Lookup(ctx, KeyDeviceID, &id)
	switch {
	case err == nil && id != "":
		return id, nil
	case err == nil:
		return "", errors.New("stored device id is empty")
	case !errors.Is(err, ErrSettingNotFound):
		return "", err
	}

	id = NewDeviceID()
	if err := s.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// NewDeviceID returns a random identity: a v4 UUID as 32 hex digits.
func NewDeviceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FactoryReset removes every stored setting, identity included, and
// returns the keys it removed.
func (db *DB) FactoryReset(ctx context.Context) ([]string, error) {
	s := db.Settings()
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return nil, fmt.Errorf("failed to reset settings: %w", err)
		}
	}
	return keys, nil
}
