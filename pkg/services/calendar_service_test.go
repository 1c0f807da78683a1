package services

import (
	"testing"
	"time"

	config "demand-insight-api/configs"
	"demand-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalendar(t *testing.T) *CalendarService {
	t.Helper()
	cal, err := NewDefaultCalendarService()
	require.NoError(t, err)
	return cal
}

func TestCalendarSpecialDays(t *testing.T) {
	cal := newTestCalendar(t)

	day, ok := cal.IsSpecialDay(time.Date(2024, 10, 29, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "public_holiday", day.Type)
	assert.Equal(t, "high", day.Impact)

	_, ok = cal.IsSpecialDay(time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	// 時刻が入っていても日付で判定する
	_, ok = cal.IsSpecialDay(time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC))
	assert.True(t, ok)
}

func TestCalendarSeasons(t *testing.T) {
	cal := newTestCalendar(t)

	assert.Equal(t, 1.3, cal.SeasonalFactor(12))
	assert.Equal(t, 0.85, cal.SeasonalFactor(2))
	assert.Equal(t, 1.0, cal.SeasonalFactor(13))
	assert.Equal(t, "summer", cal.Season(7))
	assert.Equal(t, "unknown", cal.Season(0))
}

func TestCalendarWeatherIsDeterministic(t *testing.T) {
	cal := newTestCalendar(t)

	jan := cal.Weather(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 7.0, jan.Temperature)
	assert.Equal(t, "rainy", jan.Condition)
	assert.Equal(t, 70.0, jan.Humidity)

	jul := cal.Weather(time.Date(2030, 7, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "sunny", jul.Condition)
	assert.Equal(t, jul, cal.Weather(time.Date(1999, 7, 1, 0, 0, 0, 0, time.UTC)))
}

type fixedWeather struct{}

func (fixedWeather) Weather(time.Time) models.WeatherReading {
	return models.WeatherReading{Temperature: -5, Condition: "snow"}
}

func TestCalendarWeatherProviderOverride(t *testing.T) {
	cfg, err := config.LoadCalendar("")
	require.NoError(t, err)

	cal, err := NewCalendarService(cfg, WithWeatherProvider(fixedWeather{}))
	require.NoError(t, err)

	assert.Equal(t, "snow", cal.Weather(time.Now()).Condition)
}

func TestCalendarShelfLifeAndCompetition(t *testing.T) {
	cal := newTestCalendar(t)

	assert.Equal(t, 7, cal.ShelfLife("Tam Yağlı Süt", ""))
	assert.Equal(t, 2, cal.ShelfLife("Ekmek", "Fırın"))
	assert.Equal(t, 365, cal.ShelfLife("Makarna", "Kuru Gıda"))
	assert.Equal(t, 30, cal.ShelfLife("Sabun", "Temizlik"))

	assert.Equal(t, 1.3, cal.CompetitionFactor("Istanbul Kadıköy"))
	assert.Equal(t, 1.0, cal.CompetitionFactor(""))
	assert.Equal(t, 1.0, cal.CompetitionFactor("Trabzon"))
}

func TestCalendarFutureDatesRollover(t *testing.T) {
	cal := newTestCalendar(t)

	dates := cal.FutureDates(time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), 4)
	require.Len(t, dates, 4)
	assert.Equal(t, "2024-11-15", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2024-12-15", dates[1].Format("2006-01-02"))
	assert.Equal(t, "2025-01-15", dates[2].Format("2006-01-02"))
	assert.Equal(t, "2025-02-15", dates[3].Format("2006-01-02"))

	// 月末は各月の日数に丸め、元の日を維持する
	dates = cal.FutureDates(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, "2024-02-29", dates[1].Format("2006-01-02"))
	assert.Equal(t, "2024-03-31", dates[2].Format("2006-01-02"))

	assert.Empty(t, cal.FutureDates(time.Now(), 0))
}

func TestCalendarContext(t *testing.T) {
	cal := newTestCalendar(t)

	// 2024-12-29は日曜日、ISO週52
	ctx := cal.Context(time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 6, ctx.DayOfWeek)
	assert.True(t, ctx.IsWeekend)
	assert.Equal(t, 52, ctx.WeekOfYear)
	assert.Equal(t, 4, ctx.Quarter)
	assert.Equal(t, "winter", ctx.Season)
	assert.False(t, ctx.IsSpecialDay)

	ctx = cal.Context(time.Date(2024, 4, 23, 0, 0, 0, 0, time.UTC))
	assert.True(t, ctx.IsSpecialDay)
	require.NotNil(t, ctx.SpecialDay)
	assert.Equal(t, "medium", ctx.SpecialDay.Impact)
	assert.Equal(t, 1, ctx.DayOfWeek)
}
