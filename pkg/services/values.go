package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// 日付として受け付けるレイアウト（先頭から順に試す）
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	"01-02-06",
	"2006.01.02",
	"20060102",
	"2006-01",
	"2006/01",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2006",
	"Jan 2006",
	// Excelの表示形式をそのまま書き出したCSV
	"1/2/06 15:04",
	"1/2/06",
	"2-Jan-06",
	"Jan-06",
}

// missingTokens 欠損とみなす文字列
var missingTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"null": {},
	"none": {},
	"na":   {},
	"n/a":  {},
	"#n/a": {},
	"-":    {},
}

// isMissing 欠損値かどうか
func isMissing(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		_, ok := missingTokens[strings.ToLower(strings.TrimSpace(x))]
		return ok
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case time.Time:
		return x.IsZero()
	}
	return false
}

// toFloat 数値に変換できれば返す
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		f := float64(x)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// quantityValue 数量列の値（数値化できない値は0）
func quantityValue(v interface{}) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return 0
}

// parseDate 日付値を解析する。文字列とtime.Timeのみ受け付ける
func parseDate(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, ErrDateParse
		}
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, ErrDateParse
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrDateParse, v)
}

// entityKey 製品列の値を文字列キーに変換
func entityKey(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
