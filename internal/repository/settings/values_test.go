package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

type mapRepo map[string]string

func (m mapRepo) Get(_ context.Context, key string) (string, error) {
	if key == "broken" {
		return "", errors.New("db down")
	}
	v, ok := m[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m mapRepo) All(context.Context) ([]domain.Setting, error) { return nil, nil }

func (m mapRepo) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestValues(t *testing.T) {
	ctx := context.Background()
	v := NewValues(mapRepo{
		domain.SettingMaxPerDay:        "250",
		domain.SettingRemindersEnabled: "false",
		domain.SettingTemplateName:     "recordatorio_cita",
		"bad_int":                      "many",
	})

	assert.Equal(t, 250, v.Int(ctx, domain.SettingMaxPerDay, 500))
	assert.Equal(t, 500, v.Int(ctx, "missing", 500))
	assert.Equal(t, 7, v.Int(ctx, "bad_int", 7))
	assert.Equal(t, 3, v.Int(ctx, "broken", 3))

	assert.False(t, v.Bool(ctx, domain.SettingRemindersEnabled, true))
	assert.True(t, v.Bool(ctx, "missing", true))

	assert.Equal(t, "recordatorio_cita", v.String(ctx, domain.SettingTemplateName, "x"))
	assert.Equal(t, "x", v.String(ctx, "missing", "x"))
}

func TestNilValuesUsesDefaults(t *testing.T) {
	var v *Values
	assert.Equal(t, 20, v.Int(context.Background(), domain.SettingRateLimitPerMinute, 20))
}
