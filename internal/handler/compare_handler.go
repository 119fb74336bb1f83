package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"partychat-go/internal/model"
	"partychat-go/internal/service"
	"partychat-go/pkg/log"
)

// CompareHandler builds side-by-side program contexts for several
// parties at once.
type CompareHandler struct {
	contextService service.ContextService
}

func NewCompareHandler(contextService service.ContextService) *CompareHandler {
	return &CompareHandler{contextService: contextService}
}

type compareRequest struct {
	PartyCodes []string            `json:"partyCodes" binding:"required,min=1"`
	Question   string              `json:"question"`
	Messages   []model.ChatMessage `json:"messages"`
}

func (h *CompareHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partyCodes and a question are required"})
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = model.LatestQuestion(req.Messages)
	}
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no question provided"})
		return
	}

	traceID := "compare-" + time.Now().Format("20060102150405.000")
	log.Infow("[CompareHandler] comparison requested",
		"parties", req.PartyCodes, "trace_id", traceID)

	comparison := h.contextService.BuildComparisonContext(c.Request.Context(), req.PartyCodes, question, traceID)

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "ok",
		"data":    comparison,
	})
}
