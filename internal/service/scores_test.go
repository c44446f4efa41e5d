package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestTemplateScoreUpdateExcludesDeletedPlans(t *testing.T) {
	db, mock := newMockDB(t)

	// The aggregate must join plans with the soft-delete guard, so rows
	// of removed plans never feed scores
	mock.ExpectQuery(`JOIN plans ON plans\.plan_id = posting_logs\.plan_id AND plans\.deleted_at IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"template_id", "impression_avg", "like_avg", "post_count"}))

	svc := NewTemplateScoreService(zap.NewNop(), db)
	scored, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, scored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateScoreUpdateAppendsAggregates(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT plans\.template_id AS template_id`).
		WillReturnRows(sqlmock.NewRows([]string{"template_id", "impression_avg", "like_avg", "post_count"}).
			AddRow("tpl-1", 1200.5, 34.2, 4).
			AddRow("tpl-2", 800.0, 12.0, 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "template_scores"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	svc := NewTemplateScoreService(zap.NewNop(), db)
	scored, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, scored)
	assert.NoError(t, mock.ExpectationsWereMet())
}
