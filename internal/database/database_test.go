package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/database"
)

func TestDialector(t *testing.T) {
	for _, typ := range []string{"postgres", "mysql", "sqlite"} {
		d, err := database.Dialector(config.DatabaseConfig{Type: typ, DSN: "x"})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, d.Name())
	}

	_, err := database.Dialector(config.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := config.DatabaseConfig{Type: "sqlite", DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}
	db, err := database.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, database.Migrate(cfg, db, nil))
	for _, table := range []string{"organizations", "users", "password_reset_tokens", "categories", "zones", "devices", "measurements", "alerts"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.NoError(t, database.Ping(context.Background(), db))
}

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return db, mock
}

func TestPing(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectPing()
	assert.NoError(t, database.Ping(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, database.Ping(context.Background(), db))

	assert.NoError(t, mock.ExpectationsWereMet())
}
