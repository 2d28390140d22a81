package database

import (
	"fmt"
	"time"

	"ispmanager/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(postgres.Open(dsn), log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		log.Warn("failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}

// Open opens a GORM handle with error translation enabled so unique
// violations surface as gorm.ErrDuplicatedKey on every dialect. Query
// warnings and errors go to log.
func Open(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(log),
	})
}

// newLogger writes slow queries and failures to zap. Lookups that find
// nothing are expected and stay quiet.
func newLogger(log *zap.Logger) logger.Interface {
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate registers the explicit join models and migrates every table.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}); err != nil {
		return fmt.Errorf("setup role_user: %w", err)
	}
	if err := db.SetupJoinTable(&model.Role{}, "Permissions", &model.RolePermission{}); err != nil {
		return fmt.Errorf("setup permission_role: %w", err)
	}

	return db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.UserRole{},
		&model.RolePermission{},
		&model.AuditLog{},
	)
}
