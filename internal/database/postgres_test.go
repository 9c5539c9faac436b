package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

func TestMigrateCreatesGradingTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	require.True(t, db.Migrator().HasTable(&models.Submission{}))
	require.True(t, db.Migrator().HasTable(&models.GradingResult{}))
	require.True(t, db.Migrator().HasIndex(&models.GradingResult{}, "idx_grading_results_attempt"))
}

func TestConnectorsRejectEmptyURLs(t *testing.T) {
	_, err := ConnectPostgres("")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "", "gema-grader")
	require.Error(t, err)

	_, err = ConnectNATS("", "gema-grader")
	require.Error(t, err)
}
