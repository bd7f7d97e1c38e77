package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:migrations_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec("DROP TABLE IF EXISTS data_migrations").Error)
	require.NoError(t, db.Exec("DROP TABLE IF EXISTS properties").Error)
	require.NoError(t, db.Exec("CREATE TABLE properties (id integer primary key, owner_id integer, city text)").Error)
	return db
}

func TestRunOnce_RecordsAndSkips(t *testing.T) {
	db := newTestDB(t)
	calls := 0
	fn := func(*gorm.DB) error { calls++; return nil }

	require.NoError(t, RunOnce(db, "00099_test", fn))
	require.NoError(t, RunOnce(db, "00099_test", fn))
	assert.Equal(t, 1, calls)

	var count int64
	require.NoError(t, db.Model(&DataMigration{}).Where("id = ?", "00099_test").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRunOnce_Validation(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, RunOnce(db, "", func(*gorm.DB) error { return nil }))
	assert.Error(t, RunOnce(db, "x", nil))
	assert.NoError(t, RunOnce(nil, "x", nil))
}

func TestRun_TrimsCities(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec("INSERT INTO properties (id, city) VALUES (1, '  Florianópolis ')").Error)

	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	var city string
	require.NoError(t, db.Raw("SELECT city FROM properties WHERE id = 1").Scan(&city).Error)
	assert.Equal(t, "Florianópolis", city)

	var applied int64
	require.NoError(t, db.Model(&DataMigration{}).Count(&applied).Error)
	assert.Equal(t, int64(2), applied)
}
