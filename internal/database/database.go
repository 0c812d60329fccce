package database

import (
	"time"

	"github.com/linkdrop/linkdrop/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(cfg *config.DBConfig, lg *zap.SugaredLogger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	level, lerr := zapcore.ParseLevel(cfg.LogLevel)
	if lerr != nil {
		level = zapcore.WarnLevel
	}
	logger := NewLogger(200*time.Millisecond, true, level)

	for i := 0; i <= 5; i++ {
		db, err = gorm.Open(sqlite.Open(cfg.DataSource), &gorm.Config{
			Logger:      logger,
			PrepareStmt: cfg.PrepareStmt,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		if err == nil {
			break
		}
		lg.Warnf("failed to open database: %v", err)
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	return db, nil
}
