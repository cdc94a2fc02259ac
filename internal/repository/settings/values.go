package settings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
)

// Values reads typed settings, falling back to a default when the key is missing or unreadable.
type Values struct {
	repo Repository
}

func NewValues(repo Repository) *Values {
	return &Values{repo: repo}
}

func (v *Values) raw(ctx context.Context, key string) (string, bool) {
	if v == nil || v.repo == nil {
		return "", false
	}
	val, err := v.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to read setting", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (v *Values) String(ctx context.Context, key, def string) string {
	if val, ok := v.raw(ctx, key); ok && val != "" {
		return val
	}
	return def
}

func (v *Values) Int(ctx context.Context, key string, def int) int {
	val, ok := v.raw(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("setting is not an integer", "key", key, "value", val)
		return def
	}
	return n
}

func (v *Values) Bool(ctx context.Context, key string, def bool) bool {
	val, ok := v.raw(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("setting is not a boolean", "key", key, "value", val)
		return def
	}
	return b
}
