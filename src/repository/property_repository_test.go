package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return gdb, mock
}

var propertyColumns = []string{"id", "owner_id", "name", "address", "city", "nightly_rate", "max_guests", "created_at", "updated_at"}

func TestPropertyRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(propertyColumns).
		AddRow(1, 7, "Casa Azul", "Rua A, 1", "Natal", "300.00", 6, now, now).
		AddRow(2, 7, "Studio", "Rua B, 2", "Natal", "120.50", 2, now, now)
	mock.ExpectQuery(`SELECT \* FROM "properties" WHERE owner_id = \$1 AND city = \$2 ORDER BY id`).
		WithArgs(uint(7), "Natal").
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), PropertySearchOptions{OwnerID: 7, City: "Natal"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Casa Azul", got[0].Name)
	assert.True(t, decimal.RequireFromString("120.5").Equal(got[1].NightlyRate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyRepository_ListConnectionFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "properties"`).
		WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	_, err := repo.List(context.Background(), PropertySearchOptions{})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDatabaseConn, appErr.Code)
	assert.True(t, appErr.Recoverable())
}

func TestPropertyRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "properties" WHERE "properties"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows(propertyColumns).AddRow(3, 1, "Chalé", "", "Gramado", "450.00", 4, now, now))

	p, err := repo.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), p.ID)
	assert.Equal(t, "Gramado", p.City)
}

func TestPropertyRepository_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "properties" WHERE "properties"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows(propertyColumns))

	_, err := repo.Get(context.Background(), 123)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindNotFound, appErr.Kind)
	assert.Equal(t, "Property", appErr.NotFound.Resource)
	assert.Equal(t, "123", appErr.NotFound.ResourceID)
}

func TestPropertyRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "properties"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	p := &model.Property{OwnerID: 2, Name: "Flat", City: "Salvador", NightlyRate: decimal.NewFromInt(199), MaxGuests: 3}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, uint(11), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "properties"`).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "properties_pkey"`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Property{Name: "Flat"})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDuplicateEntry, appErr.Code)
	assert.False(t, appErr.Recoverable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageError_TranslatedErrors(t *testing.T) {
	assert.Equal(t, apperrors.CodeDuplicateEntry, storageError(gorm.ErrDuplicatedKey, "q").Code)
	assert.Equal(t, apperrors.CodeForeignKey, storageError(gorm.ErrForeignKeyViolated, "q").Code)
	assert.Equal(t, apperrors.CodeDatabase, storageError(errors.New("syntax error"), "q").Code)
}
