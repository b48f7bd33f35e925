package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tiketai/internal/services"
)

// AnalysisHandler AI 分析管线的 HTTP 入口
type AnalysisHandler struct {
	analyzer *services.AnalysisService
	pool     *services.KeyPool
	logger   *logrus.Logger
}

func NewAnalysisHandler(analyzer *services.AnalysisService, pool *services.KeyPool, logger *logrus.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnalysisHandler{analyzer: analyzer, pool: pool, logger: logger}
}

// RegisterAnalysisRoutes 挂载分析路由
func RegisterAnalysisRoutes(group *gin.RouterGroup, h *AnalysisHandler) {
	group.POST("/tickets/:id/analyze", h.Trigger)
	group.GET("/ai/keypool", h.KeyPoolStats)
}

type triggerRequest struct {
	Mode string `json:"mode"` // initial 或 reanalysis，缺省 initial
}

// Trigger POST /tickets/:id/analyze：调度一次分析。
// 返回的是调度结果，分析结局通过工单的 ai_analysis 字段观察。
func (h *AnalysisHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	mode := services.ModeInitial
	switch req.Mode {
	case "", string(services.ModeInitial):
	case string(services.ModeReanalysis):
		mode = services.ModeReanalysis
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": "mode must be 'initial' or 'reanalysis'"})
		return
	}

	result, err := h.analyzer.TriggerAnalysis(c.Request.Context(), c.Param("id"), mode)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// KeyPoolStats GET /ai/keypool：凭证池只读诊断快照
func (h *AnalysisHandler) KeyPoolStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Snapshot())
}
