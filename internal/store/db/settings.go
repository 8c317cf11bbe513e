package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SettingsStore implements store.SettingsStore over the key/value settings
// table. Values are read fresh on every call so operators can flip toggles
// without restarting workers.
type SettingsStore struct {
	db *sql.DB
}

func (s *SettingsStore) Bool(ctx context.Context, key string, def bool) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read setting %s: %w", key, err)
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return def, nil
}
