package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCalendarDefault(t *testing.T) {
	cfg, err := LoadCalendar("")
	require.NoError(t, err)

	assert.Equal(t, "tr-TR", cfg.Metadata.Locale)
	assert.Len(t, cfg.Seasons, 12)
	assert.Len(t, cfg.Weather, 12)
	assert.NotEmpty(t, cfg.SpecialDays)
	assert.Equal(t, 30, cfg.ShelfLife.DefaultDays)
}

func TestLoadCalendarFromFile(t *testing.T) {
	data, err := calendarAssets.ReadFile(DefaultCalendarAsset)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadCalendar(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Seasons, 12)
}

func TestParseCalendarRejectsBadTables(t *testing.T) {
	_, err := ParseCalendar([]byte("seasons:\n  - { month: 1, season: winter, factor: 0.9 }\n"))
	assert.Error(t, err)

	_, err = ParseCalendar([]byte("special_days:\n  - { date: \"2024/01/01\", name: x }\n"))
	assert.Error(t, err)

	_, err = LoadCalendar(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
