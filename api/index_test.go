package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHandlerServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		Handler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
