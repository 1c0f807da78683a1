package handlers

import (
	"net/http"

	"demand-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// SchemaHandler スキーマ推定ハンドラー
type SchemaHandler struct {
	schemaService *services.SchemaService
}

// NewSchemaHandler 新しいスキーマ推定ハンドラーを作成
func NewSchemaHandler(schemaService *services.SchemaService) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService}
}

// InferSchema 列の役割を推定し、データセットの概要と合わせて返す
func (h *SchemaHandler) InferSchema(c *gin.Context) {
	dataset, _, err := readDataset(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "データセットの読み込みに失敗しました", err)
		return
	}
	if len(dataset.Records) == 0 {
		respondError(c, http.StatusBadRequest, "データセットが空です", nil)
		return
	}

	profile := h.schemaService.ProfileDataset(dataset)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}
