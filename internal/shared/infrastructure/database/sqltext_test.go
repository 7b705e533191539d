package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		driver Driver
		in     string
		want   string
	}{
		{"sqlite untouched", DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", DriverPostgres, "UPDATE t SET a = ? WHERE b = ? AND c = ?", "UPDATE t SET a = $1 WHERE b = $2 AND c = $3"},
		{"quoted question mark kept", DriverPostgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rebind(tt.driver, tt.in))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", Placeholders(3))
	assert.Equal(t, "", Placeholders(0))
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	early := time.Date(2026, 1, 2, 9, 0, 0, 5000, time.UTC)
	late := early.Add(90 * time.Minute)

	assert.Less(t, FormatTime(early), FormatTime(late))
	assert.Len(t, FormatTime(early), len(FormatTime(late)))

	parsed, err := ParseTime(FormatTime(early))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(early))
}

func TestNullTime(t *testing.T) {
	assert.False(t, NullTime(nil).Valid)

	got, err := ParseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Microsecond)
	got, err = ParseNullTime(NullTime(&now))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))
}
