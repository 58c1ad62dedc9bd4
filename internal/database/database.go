package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/user"
	"github.com/username/ecoenergy-api/internal/zone"
)

const slowQuery = 200 * time.Millisecond

// Dialector picks the gorm driver for the configured database type.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.GetDSN()
	switch cfg.Type {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		if dsn == "" {
			dsn = "ecoenergy.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// GormLogger routes gorm's warnings and slow queries through zap.
func GormLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		return logger.Discard
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Open buka koneksi database sesuai cfg.Type
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: GormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}
	return db, nil
}

// Models lists every table owned by the application, parents first.
func Models() []interface{} {
	return []interface{}{
		&organization.Organization{},
		&user.User{},
		&user.PasswordResetToken{},
		&category.Category{},
		&zone.Zone{},
		&device.Device{},
		&measurement.Measurement{},
		&alert.Alert{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Migrate brings the schema up to date. Postgres uses the SQL files under
// cfg.MigrationsPath; the other drivers fall back to AutoMigrate.
func Migrate(cfg config.DatabaseConfig, db *gorm.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Type != "postgres" || cfg.AutoMigrate {
		log.Info("running auto migration", zap.String("type", cfg.Type))
		return AutoMigrate(db)
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no new migrations, schema is up to date")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Info("migrations applied", zap.Uint("version", version))
	return nil
}

// Ping checks the underlying connection, used by /health.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
