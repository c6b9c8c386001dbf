package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joshsymonds/inboxledger/internal/models"
)

func setupPostgresMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       db,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestPostgresUniqueViolationIsDuplicate(t *testing.T) {
	db, mock := setupPostgresMock(t)
	mock.ExpectQuery(`INSERT INTO "raw_messages"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := NewRawMessageRepository(db).InsertIfAbsent(context.Background(), &models.RawMessage{MessageID: "m1"})

	assert.ErrorIs(t, err, ErrDuplicateEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOtherErrorsPassThrough(t *testing.T) {
	db, mock := setupPostgresMock(t)
	mock.ExpectQuery(`INSERT INTO "raw_messages"`).WillReturnError(errors.New("connection reset"))

	err := NewRawMessageRepository(db).InsertIfAbsent(context.Background(), &models.RawMessage{MessageID: "m1"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEntry)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresExistingIDs(t *testing.T) {
	db, mock := setupPostgresMock(t)
	mock.ExpectQuery(`SELECT "message_id" FROM "raw_messages" WHERE message_id IN`).
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("b"))

	found, err := NewRawMessageRepository(db).ExistingIDs(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true}, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionInsertAll(t *testing.T) {
	db, mock := setupPostgresMock(t)
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	inserted, skipped, err := NewTransactionRepository(db).InsertAll(context.Background(), []models.Transaction{
		{MessageID: "m1", Amount: "1.00"},
		{MessageID: "m2", Amount: "2.00"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, inserted)
	assert.Equal(t, []string{"m2"}, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
