package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrSettingNotFound is returned when a sis_config key is absent.
var ErrSettingNotFound = errors.New("setting not found")

// Setting reads a raw value from sis_config.
func (r *Repository) Setting(ctx context.Context, key string) (string, error) {
	ctx, span := startSpan(ctx, r.tracer, "Setting")
	defer span.End()

	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM sis_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		recordError(span, err)
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting inserts or replaces a sis_config value.
func (r *Repository) PutSetting(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sis_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// SeedSource reads an integer seed from sis_config and falls back to a
// configured value when the row is missing. The fallback is never written
// back.
type SeedSource struct {
	repo     *Repository
	key      string
	fallback int64
}

// SeedSource returns a seed reader for key.
func (r *Repository) SeedSource(key string, fallback int64) *SeedSource {
	return &SeedSource{repo: r, key: key, fallback: fallback}
}

// SequenceSeed returns the configured seed.
func (s *SeedSource) SequenceSeed(ctx context.Context) (int64, error) {
	raw, err := s.repo.Setting(ctx, s.key)
	if errors.Is(err, ErrSettingNotFound) {
		return s.fallback, nil
	}
	if err != nil {
		return 0, err
	}
	seed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", s.key, err)
	}
	return seed, nil
}
