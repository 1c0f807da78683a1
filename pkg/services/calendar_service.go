package services

import (
	"fmt"
	"strings"
	"time"

	config "demand-insight-api/configs"
	"demand-insight-api/pkg/models"
)

// WeatherProvider 日付から気象情報を返すインターフェース
// 実APIに差し替える場合もこのインターフェースを満たせばよい
type WeatherProvider interface {
	Weather(date time.Time) models.WeatherReading
}

type monthlyWeather struct {
	temperature     float64
	rainProbability float64
}

// SyntheticWeatherService 月別テーブルによる決定的な気象スタブ
type SyntheticWeatherService struct {
	table map[int]monthlyWeather
}

// NewSyntheticWeatherService カレンダー設定から気象スタブを作成
func NewSyntheticWeatherService(cfg *config.CalendarConfig) *SyntheticWeatherService {
	table := make(map[int]monthlyWeather, len(cfg.Weather))
	for _, w := range cfg.Weather {
		table[w.Month] = monthlyWeather{temperature: w.Temperature, rainProbability: w.RainProbability}
	}
	return &SyntheticWeatherService{table: table}
}

// Weather 月だけで決まる気象情報を返す
func (s *SyntheticWeatherService) Weather(date time.Time) models.WeatherReading {
	month := int(date.Month())
	w, ok := s.table[month]
	if !ok {
		w = monthlyWeather{temperature: 15, rainProbability: 0.3}
	}
	condition := "sunny"
	if w.rainProbability > 0.4 {
		condition = "rainy"
	}
	return models.WeatherReading{
		Temperature:     w.temperature,
		Condition:       condition,
		Humidity:        60 + float64(month%3)*10,
		RainProbability: w.rainProbability,
	}
}

type seasonEntry struct {
	label  string
	factor float64
}

type shelfLifeRule struct {
	days     int
	keywords []string
}

type competitionRule struct {
	keyword string
	factor  float64
}

// CalendarService 特別日・季節係数・気象などの日付コンテキストを提供
// 生成後は読み取り専用なので複数goroutineから共有してよい
type CalendarService struct {
	locale            string
	specialDays       map[string]models.SpecialDay
	seasons           map[int]seasonEntry
	weather           WeatherProvider
	shelfLifeDefault  int
	shelfLifeRules    []shelfLifeRule
	competitionBase   float64
	competitionByCity []competitionRule
}

// CalendarOption CalendarServiceの生成オプション
type CalendarOption func(*CalendarService)

// WithWeatherProvider 気象プロバイダを差し替える
func WithWeatherProvider(p WeatherProvider) CalendarOption {
	return func(c *CalendarService) {
		if p != nil {
			c.weather = p
		}
	}
}

// NewCalendarService カレンダー設定からサービスを作成
func NewCalendarService(cfg *config.CalendarConfig, opts ...CalendarOption) (*CalendarService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("カレンダー設定がありません")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &CalendarService{
		locale:           cfg.Metadata.Locale,
		specialDays:      make(map[string]models.SpecialDay, len(cfg.SpecialDays)),
		seasons:          make(map[int]seasonEntry, len(cfg.Seasons)),
		weather:          NewSyntheticWeatherService(cfg),
		shelfLifeDefault: cfg.ShelfLife.DefaultDays,
		competitionBase:  cfg.Competition.DefaultFactor,
	}
	for _, d := range cfg.SpecialDays {
		c.specialDays[d.Date] = models.SpecialDay{Name: d.Name, Type: d.Type, Impact: d.Impact}
	}
	for _, s := range cfg.Seasons {
		c.seasons[s.Month] = seasonEntry{label: s.Season, factor: s.Factor}
	}
	if c.shelfLifeDefault <= 0 {
		c.shelfLifeDefault = 30
	}
	for _, r := range cfg.ShelfLife.Rules {
		rule := shelfLifeRule{days: r.Days}
		for _, k := range r.Keywords {
			rule.keywords = append(rule.keywords, strings.ToLower(k))
		}
		c.shelfLifeRules = append(c.shelfLifeRules, rule)
	}
	if c.competitionBase <= 0 {
		c.competitionBase = 1.0
	}
	for _, l := range cfg.Competition.Locations {
		c.competitionByCity = append(c.competitionByCity, competitionRule{keyword: strings.ToLower(l.Keyword), factor: l.Factor})
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewDefaultCalendarService 埋め込みの既定カレンダーでサービスを作成
func NewDefaultCalendarService() (*CalendarService, error) {
	cfg, err := config.LoadCalendar("")
	if err != nil {
		return nil, err
	}
	return NewCalendarService(cfg)
}

// Locale カレンダーのロケール
func (c *CalendarService) Locale() string {
	return c.locale
}

// IsSpecialDay 指定日が特別日かどうか
func (c *CalendarService) IsSpecialDay(date time.Time) (models.SpecialDay, bool) {
	d, ok := c.specialDays[date.Format("2006-01-02")]
	return d, ok
}

// SeasonalFactor 月の季節係数（不明な月は1.0）
func (c *CalendarService) SeasonalFactor(month int) float64 {
	if s, ok := c.seasons[month]; ok {
		return s.factor
	}
	return 1.0
}

// Season 月の季節ラベル
func (c *CalendarService) Season(month int) string {
	if s, ok := c.seasons[month]; ok {
		return s.label
	}
	return "unknown"
}

// Weather 気象情報（プロバイダに委譲）
func (c *CalendarService) Weather(date time.Time) models.WeatherReading {
	return c.weather.Weather(date)
}

// ShelfLife 製品名・カテゴリのキーワードから保存期間（日）を推定
func (c *CalendarService) ShelfLife(name, category string) int {
	text := strings.ToLower(name + " " + category)
	for _, rule := range c.shelfLifeRules {
		for _, k := range rule.keywords {
			if strings.Contains(text, k) {
				return rule.days
			}
		}
	}
	return c.shelfLifeDefault
}

// CompetitionFactor 立地による競合係数
func (c *CalendarService) CompetitionFactor(location string) float64 {
	if location == "" {
		return c.competitionBase
	}
	loc := strings.ToLower(location)
	for _, r := range c.competitionByCity {
		if strings.Contains(loc, r.keyword) {
			return r.factor
		}
	}
	return c.competitionBase
}

// FutureDates startを含むn個の月次日付を返す（12月→1月で年を繰り上げ）
// 日は各月の末日を超えないよう丸める
func (c *CalendarService) FutureDates(start time.Time, n int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, addMonthsClamped(start, i))
	}
	return dates
}

// Context 日付に関する情報をまとめて返す
func (c *CalendarService) Context(date time.Time) models.CalendarContext {
	month := int(date.Month())
	_, week := date.ISOWeek()
	dow := weekdayIndex(date)
	ctx := models.CalendarContext{
		Date:           date.Format("2006-01-02"),
		Year:           date.Year(),
		Month:          month,
		Day:            date.Day(),
		DayOfWeek:      dow,
		IsWeekend:      dow >= 5,
		WeekOfYear:     week,
		Quarter:        (month-1)/3 + 1,
		Season:         c.Season(month),
		SeasonalFactor: c.SeasonalFactor(month),
		Weather:        c.Weather(date),
	}
	if sd, ok := c.IsSpecialDay(date); ok {
		ctx.IsSpecialDay = true
		ctx.SpecialDay = &sd
	}
	return ctx
}

// weekdayIndex 月曜=0 ... 日曜=6
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// addMonthsClamped 月を加算し、日を加算先の月の日数に丸める
func addMonthsClamped(t time.Time, months int) time.Time {
	total := int(t.Month()) - 1 + months
	year := t.Year() + total/12
	month := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		year--
		month = time.Month(total%12 + 13)
	}
	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
