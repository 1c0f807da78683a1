package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"demand-insight-api/pkg/models"
	"demand-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes アップロードの上限（32MB）
const maxUploadBytes = 32 << 20

// DatasetRequest JSONで渡すデータセット。mappingは任意
type DatasetRequest struct {
	Columns []string             `json:"columns"`
	Records []models.Record      `json:"records" binding:"required"`
	Mapping models.SchemaMapping `json:"mapping,omitempty"`
}

// readDataset multipartのfile、またはJSONボディからデータセットを読み込む
func readDataset(c *gin.Context) (*models.Dataset, models.SchemaMapping, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			return nil, nil, fmt.Errorf("ファイルの取得に失敗しました: %w", err)
		}
		defer file.Close()
		ds, err := services.LoadFile(header.Filename, file)
		return ds, nil, err
	}

	var req DatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, fmt.Errorf("リクエストの解析に失敗しました: %w", err)
	}
	ds := &models.Dataset{Columns: req.Columns, Records: req.Records}
	if len(ds.Columns) == 0 {
		ds.Columns = columnsFromRecords(req.Records)
	}
	return ds, req.Mapping, nil
}

// columnsFromRecords 列順が指定されていない場合は最初の行のキーを名前順で使う
func columnsFromRecords(records []models.Record) []string {
	if len(records) == 0 {
		return nil
	}
	cols := make([]string, 0, len(records[0]))
	for k := range records[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// queryInt 正の整数のクエリパラメータ（上限limitで切り詰め、不正値はdef）
func queryInt(c *gin.Context, key string, def, limit int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > limit {
		return limit
	}
	return n
}

// statusFor エラーの種類からHTTPステータスを決める
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSchemaUnresolved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrEmptyDataset),
		errors.Is(err, services.ErrNoDataRows),
		errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
		message = message + ": " + err.Error()
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}
