package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smallbiznis/affiliora/internal/affiliation/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestIncrementIsSingleAtomicUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE affiliations SET total_sale_qty = total_sale_qty + $1, updated_at = $2 WHERE id = $3 AND deleted = $4`,
	)).
		WithArgs(int64(3), at, int64(42), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := Provide().Increment(context.Background(), db, 42, domain.FieldTotalSaleQty, 3, at)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementReportsMissingRow(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE affiliations SET clicks = clicks + $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := Provide().Increment(context.Background(), db, 7, domain.FieldClicks, 1, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementRejectsUnknownColumn(t *testing.T) {
	db, mock := newMockDB(t)

	_, err := Provide().Increment(context.Background(), db, 7, domain.Field("id = 0; --"), 1, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrInvalidField)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newAffiliation() *domain.Affiliation {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Affiliation{ID: 9, ProductID: 3, InfluencerID: 4, CreatedAt: at, UpdatedAt: at}
}

func TestInsertSkipsExistingPairOnPostgres(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO "affiliations" .* ON CONFLICT \("product_id","influencer_id"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inserted, err := Provide().Insert(context.Background(), db, newAffiliation())
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSkipsExistingPairOnMySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO `affiliations` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := Provide().Insert(context.Background(), db, newAffiliation())
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}
