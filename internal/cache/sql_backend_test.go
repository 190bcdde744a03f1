package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaSQL = "CREATE TABLE IF NOT EXISTS kv_store (key TEXT PRIMARY KEY, value TEXT NOT NULL)"

func TestSQLBackend_PostgresQueries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectExec(schemaSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO kv_store (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value").
		WithArgs("Admin-Token", "abc").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT value FROM kv_store WHERE key = $1").
		WithArgs("Admin-Token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc"))
	mock.ExpectQuery("SELECT value FROM kv_store WHERE key = $1").
		WithArgs("userInfo").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectExec("DELETE FROM kv_store WHERE key = $1").
		WithArgs("Admin-Token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM kv_store").
		WillReturnResult(sqlmock.NewResult(0, 0))

	b, err := NewSQLBackend(context.Background(), db, DriverPostgres)
	require.NoError(t, err)

	require.NoError(t, b.SetItem("Admin-Token", "abc"))
	v, ok, err := b.GetItem("Admin-Token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok, err = b.GetItem("userInfo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.RemoveItem("Admin-Token"))
	require.NoError(t, b.Clear())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestSQLBackend_SQLitePlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(schemaSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM kv_store WHERE key = ?").
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 0))

	b, err := NewSQLBackend(context.Background(), db, DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, b.RemoveItem("k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackend_UnsupportedDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLBackend(context.Background(), db, "mysql")
	assert.Error(t, err)
}

func TestSQLBackend_SQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	b, err := OpenSQLBackend(context.Background(), DriverSQLite, path)
	require.NoError(t, err)

	kv := NewKV("local", b)
	kv.Set("Admin-Token", "first")
	kv.Set("Admin-Token", "second")
	kv.SetJSON("userInfo", map[string]string{"userName": "admin"})

	v, ok := kv.Get("Admin-Token")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	require.NoError(t, b.Close())

	reopened, err := OpenSQLBackend(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	defer reopened.Close()

	var profile map[string]string
	assert.True(t, NewKV("local", reopened).GetJSON("userInfo", &profile))
	assert.Equal(t, "admin", profile["userName"])
}
