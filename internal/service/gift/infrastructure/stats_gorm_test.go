// internal/service/gift/infrastructure/stats_gorm_test.go
package infrastructure

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ecoquiz/internal/service/gift/domain"
)

func newStatsMockDB(t *testing.T) (*GormStatsRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	return NewGormStatsRepository(db), mock
}

func TestWinnersByLevelRestrictsToGiftLevelGate(t *testing.T) {
	repo, mock := newStatsMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) AS n FROM `players`")).
		WillReturnRows(sqlmock.NewRows([]string{"level", "n"}).
			AddRow(string(domain.LevelConnaisseur), int64(4)))

	// 获奖口径必须经 gifts 表把奖品的等级门槛限定为玩家当前等级,
	// 否则无门槛奖品的获奖者会虚增该等级的获奖率
	mock.ExpectQuery("JOIN gifts ON gifts\\.id = allocations\\.gift_id.+gifts\\.required_level = players\\.level").
		WithArgs(string(domain.StatusWon), string(domain.StatusRedeemed)).
		WillReturnRows(sqlmock.NewRows([]string{"level", "n"}).
			AddRow(string(domain.LevelConnaisseur), int64(2)))

	stats, err := repo.WinnersByLevel(context.Background(), domain.StatsQuery{}, nil)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, domain.LevelConnaisseur, stats[0].Level)
	assert.Equal(t, int64(4), stats[0].TotalPlayers)
	assert.Equal(t, int64(2), stats[0].Winners)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWinnersByLevelAppliesFilters(t *testing.T) {
	repo, mock := newStatsMockDB(t)

	mock.ExpectQuery("COUNT\\(\\*\\) AS n FROM `players`.+players\\.zone_id IN.+players\\.level IN").
		WillReturnRows(sqlmock.NewRows([]string{"level", "n"}).
			AddRow(string(domain.LevelExpert), int64(3)))

	mock.ExpectQuery("COUNT\\(DISTINCT players\\.id\\) AS n.+players\\.zone_id IN.+players\\.level IN").
		WillReturnRows(sqlmock.NewRows([]string{"level", "n"}))

	q := domain.StatsQuery{Levels: []domain.Level{domain.LevelExpert}}
	stats, err := repo.WinnersByLevel(context.Background(), q, []string{"dept-75"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].TotalPlayers)
	assert.Zero(t, stats[0].Winners)
	assert.NoError(t, mock.ExpectationsWereMet())
}
