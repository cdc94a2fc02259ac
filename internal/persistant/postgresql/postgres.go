package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

// Models lists every table owned by the service.
func Models() []any {
	return []any{
		&domain.Recipient{},
		&domain.Batch{},
		&domain.ProcessLock{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.Setting{},
	}
}

// Initialize opens the db session, retrying while the server comes up, and auto migrates models
func Initialize(ctx context.Context, opts Options, models []any) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if opts.LogQueries {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	retryTicker := time.NewTicker(time.Second * 2)
	defer retryTicker.Stop()

	var (
		db  *gorm.DB
		err error
	)
	// retry connect
	for range 5 {
		db, err = gorm.Open(postgres.Open(opts.ConnString), gormCfg)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-retryTicker.C:
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDb.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDb.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err = db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDb, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDb.Close()
}
