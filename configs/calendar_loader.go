package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed calendar/*.yaml
var calendarAssets embed.FS

// DefaultCalendarAsset 埋め込み済みの既定カレンダー
const DefaultCalendarAsset = "calendar/tr.yaml"

// CalendarConfig はカレンダーアセット（calendar/*.yaml）の構造を定義
type CalendarConfig struct {
	Metadata struct {
		Locale  string `yaml:"locale"`
		Version string `yaml:"version"`
		Years   []int  `yaml:"years"`
	} `yaml:"metadata"`

	SpecialDays []struct {
		Date   string `yaml:"date"`
		Name   string `yaml:"name"`
		Type   string `yaml:"type"`
		Impact string `yaml:"impact"`
	} `yaml:"special_days"`

	Seasons []struct {
		Month  int     `yaml:"month"`
		Season string  `yaml:"season"`
		Factor float64 `yaml:"factor"`
	} `yaml:"seasons"`

	Weather []struct {
		Month           int     `yaml:"month"`
		Temperature     float64 `yaml:"temperature"`
		RainProbability float64 `yaml:"rain_probability"`
	} `yaml:"weather"`

	ShelfLife struct {
		DefaultDays int `yaml:"default_days"`
		Rules       []struct {
			Days     int      `yaml:"days"`
			Keywords []string `yaml:"keywords"`
		} `yaml:"rules"`
	} `yaml:"shelf_life"`

	Competition struct {
		DefaultFactor float64 `yaml:"default_factor"`
		Locations     []struct {
			Keyword string  `yaml:"keyword"`
			Factor  float64 `yaml:"factor"`
		} `yaml:"locations"`
	} `yaml:"competition"`
}

// LoadCalendar はYAMLファイルからカレンダー設定を読み込む。
// pathが空の場合は埋め込みの既定アセットを使う。
func LoadCalendar(path string) (*CalendarConfig, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = calendarAssets.ReadFile(DefaultCalendarAsset)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("カレンダー設定ファイルの読み込みに失敗: %w", err)
	}
	return ParseCalendar(data)
}

// ParseCalendar はYAMLバイト列をパースして検証する
func ParseCalendar(data []byte) (*CalendarConfig, error) {
	var cfg CalendarConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 月テーブルと日付書式をチェック
func (c *CalendarConfig) Validate() error {
	for _, d := range c.SpecialDays {
		if _, err := time.Parse("2006-01-02", d.Date); err != nil {
			return fmt.Errorf("特別日の日付が不正です (%s): %w", d.Date, err)
		}
	}
	for _, s := range c.Seasons {
		if s.Month < 1 || s.Month > 12 {
			return fmt.Errorf("季節テーブルの月が不正です: %d", s.Month)
		}
	}
	for _, w := range c.Weather {
		if w.Month < 1 || w.Month > 12 {
			return fmt.Errorf("気象テーブルの月が不正です: %d", w.Month)
		}
	}
	if len(c.Seasons) != 12 {
		return fmt.Errorf("季節テーブルは12ヶ月分必要です（%d件）", len(c.Seasons))
	}
	if len(c.Weather) != 12 {
		return fmt.Errorf("気象テーブルは12ヶ月分必要です（%d件）", len(c.Weather))
	}
	return nil
}
