package settings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/cache"
	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cacheTTL = 5 * time.Minute

type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	All(ctx context.Context) ([]domain.Setting, error)
	Set(ctx context.Context, key, value string) error
}

type repo struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewSettingsRepository returns a settings store reading through c. c may be nil.
func NewSettingsRepository(db *gorm.DB, c cache.Cache) Repository {
	return &repo{db: db, cache: c}
}

func cacheKey(key string) string {
	return "setting:" + key
}

func (r *repo) Get(ctx context.Context, key string) (string, error) {
	if r.cache != nil {
		val, err := r.cache.Get(ctx, cacheKey(key))
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("settings cache read failed", "key", key, "error", err)
		}
	}

	var s domain.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey(key), s.Value, cacheTTL); err != nil {
			slog.Warn("settings cache write failed", "key", key, "error", err)
		}
	}
	return s.Value, nil
}

func (r *repo) All(ctx context.Context) ([]domain.Setting, error) {
	var settings []domain.Setting
	err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}

func (r *repo) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&domain.Setting{Key: key, Value: value, UpdatedAt: &now}).Error
	if err != nil {
		return err
	}

	if r.cache != nil {
		return r.cache.Del(ctx, cacheKey(key))
	}
	return nil
}
