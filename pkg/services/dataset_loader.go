package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"demand-insight-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

const utf8BOM = "\ufeff"

// LoadFile 拡張子（.csv / .xlsx）に応じてデータセットを読み込む
func LoadFile(name string, r io.Reader) (*models.Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return LoadCSV(r)
	case ".xlsx":
		return LoadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// LoadCSV CSVを読み込む。1行目はヘッダー
func LoadCSV(r io.Reader) (*models.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVファイルの解析に失敗: %w", err)
	}
	return datasetFromRows(rows)
}

// LoadXLSX 最初のシートを読み込む
// 日付書式のセルは表示形式（"1/15/24 00:00" など）ではなくシリアル値から
// YYYY-MM-DD（時刻があれば YYYY-MM-DD hh:mm:ss）に戻す
func LoadXLSX(r io.Reader) (*models.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("Excelファイルの読み込みに失敗: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("Excelシートの行取得に失敗: %w", err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("Excelシートの行取得に失敗: %w", err)
	}

	dates := &xlsxDateCells{f: f, sheet: sheet, styles: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		dates.date1904 = *props.Date1904
	}
	for i := 1; i < len(rows) && i < len(raw); i++ {
		for j := range rows[i] {
			if j >= len(raw[i]) {
				break
			}
			if v, ok := dates.convert(j, i, rows[i][j], raw[i][j]); ok {
				rows[i][j] = v
			}
		}
	}
	return datasetFromRows(rows)
}

// xlsxDateCells 日付書式のセルを判定する（スタイルごとの判定はキャッシュ）
type xlsxDateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

// convert 日付書式の数値セルならシリアル値を日付文字列に変換する
func (d *xlsxDateCells) convert(col, row int, formatted, raw string) (string, bool) {
	if formatted == raw {
		return "", false
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	idx, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil {
		return "", false
	}
	isDate, ok := d.styles[idx]
	if !ok {
		if style, err := d.f.GetStyle(idx); err == nil {
			isDate = isDateNumFmt(style)
		}
		d.styles[idx] = isDate
	}
	if !isDate {
		return "", false
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return "", false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02"), true
	}
	return t.Format("2006-01-02 15:04:05"), true
}

// 日付を含む組み込み書式（14-17, 22 と言語別の日付書式）
var dateNumFmts = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 36: true,
	50: true, 51: true, 57: true, 58: true,
}

// isDateNumFmt 書式が日付を表すか。ユーザー定義書式は年または日の指定で判定する
func isDateNumFmt(style *excelize.Style) bool {
	if style.CustomNumFmt == nil {
		return dateNumFmts[style.NumFmt]
	}
	var (
		code    = *style.CustomNumFmt
		quoted  bool
		bracket bool
	)
	for i := 0; i < len(code); i++ {
		switch ch := code[i]; {
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '\\':
			i++
		case ch == '[':
			bracket = true
		case ch == ']':
			bracket = false
		case bracket:
		case ch == 'y', ch == 'Y', ch == 'd', ch == 'D':
			return true
		}
	}
	return false
}

// datasetFromRows ヘッダー＋データ行からDatasetを作る
// 空セルはnil、値はすべて文字列のまま保持する
func datasetFromRows(rows [][]string) (*models.Dataset, error) {
	if len(rows) < 2 {
		return nil, ErrNoDataRows
	}

	header := headerNames(rows[0])
	ds := &models.Dataset{Columns: header, Records: make([]models.Record, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(models.Record, len(header))
		for i, col := range header {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				rec[col] = strings.TrimSpace(row[i])
			} else {
				rec[col] = nil
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	if len(ds.Records) == 0 {
		return nil, ErrNoDataRows
	}
	return ds, nil
}

// headerNames 空の列名を補い、重複には連番を付ける
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		names[i] = h
	}
	return names
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteFile 拡張子に応じてデータセットをCSVまたはExcelで書き出す
func WriteFile(name string, w io.Writer, ds *models.Dataset) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return WriteCSV(w, ds)
	case ".xlsx":
		return WriteXLSX(w, ds)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// WriteCSV ヘッダー付きCSVで書き出す
func WriteCSV(w io.Writer, ds *models.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗: %w", err)
	}
	for _, rec := range ds.Records {
		row := make([]string, len(ds.Columns))
		for i, col := range ds.Columns {
			row[i] = cellString(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("CSVの書き込みに失敗: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX 1シートのExcelで書き出す
func WriteXLSX(w io.Writer, ds *models.Dataset) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("Excelの書き込みに失敗: %w", err)
	}
	for r, rec := range ds.Records {
		row := make([]interface{}, len(ds.Columns))
		for i, col := range ds.Columns {
			row[i] = rec[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("Excelの書き込みに失敗: %w", err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("Excelの書き込みに失敗: %w", err)
	}
	return nil
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
