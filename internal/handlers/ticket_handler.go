package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tiketai/internal/services"
	"tiketai/internal/store"
)

// TicketHandler 工单相关 HTTP 入口
type TicketHandler struct {
	tickets  *services.TicketService
	analyzer *services.AnalysisService
	logger   *logrus.Logger
}

func NewTicketHandler(tickets *services.TicketService, analyzer *services.AnalysisService, logger *logrus.Logger) *TicketHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &TicketHandler{tickets: tickets, analyzer: analyzer, logger: logger}
}

// RegisterTicketRoutes 挂载工单路由
func RegisterTicketRoutes(group *gin.RouterGroup, h *TicketHandler) {
	group.POST("/tickets", h.Create)
	group.GET("/tickets/:id", h.Get)
	group.POST("/tickets/:id/messages", h.AddMessage)
	group.PUT("/tickets/:id/status", h.UpdateStatus)
}

// Create POST /tickets：创建工单并调度首次分析
func (h *TicketHandler) Create(c *gin.Context) {
	var req services.TicketCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	ticket, err := h.tickets.CreateTicket(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Create ticket failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if _, err := h.analyzer.TriggerAnalysis(c.Request.Context(), ticket.ID, services.ModeInitial); err != nil {
		// 创建已成功，分析可随后手动重试
		h.logger.Errorf("Initial analysis scheduling failed for ticket %s: %v", ticket.ID, err)
	}

	c.JSON(http.StatusCreated, ticket)
}

// Get GET /tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type addMessageRequest struct {
	SenderRole string `json:"sender_role" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// AddMessage POST /tickets/:id/messages
func (h *TicketHandler) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	msg, err := h.tickets.AddMessage(c.Request.Context(), c.Param("id"), req.SenderRole, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus PUT /tickets/:id/status
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	if err := h.tickets.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

// respondStoreError 存储层错误到 HTTP 状态码的统一映射
func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
}
