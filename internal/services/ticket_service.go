package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tiketai/internal/models"
	"tiketai/internal/store"
)

// TicketService 工单写入口：创建、追加消息、业务状态流转。
// 只覆盖喂给分析管线所需的最小面，完整的工单后台不在此服务范围内。
type TicketService struct {
	tickets  store.TicketStore
	messages store.MessageStore
	hub      *EventHub
	watcher  *ActivityWatcher
	logger   *logrus.Logger
}

// NewTicketService 创建工单服务。hub 与 watcher 可为 nil。
func NewTicketService(tickets store.TicketStore, messages store.MessageStore, hub *EventHub, watcher *ActivityWatcher, logger *logrus.Logger) *TicketService {
	if logger == nil {
		logger = logrus.New()
	}

	return &TicketService{
		tickets:  tickets,
		messages: messages,
		hub:      hub,
		watcher:  watcher,
		logger:   logger,
	}
}

// TicketCreateRequest 创建工单请求
type TicketCreateRequest struct {
	Subject    string `json:"subject" binding:"required"`
	CustomerID string `json:"customer_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// CreateTicket 创建工单并追加首条客户消息，AI 状态从 pending 起步
func (s *TicketService) CreateTicket(ctx context.Context, req *TicketCreateRequest) (*models.Ticket, error) {
	now := time.Now()
	ticket := &models.Ticket{
		ID:         uuid.NewString(),
		Subject:    req.Subject,
		Status:     models.TicketOpen,
		CustomerID: req.CustomerID,
		AIAnalysis: models.AIAnalysis{Status: models.AnalysisPending},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		SenderRole: models.RoleCustomer,
		Message:    req.Message,
		CreatedAt:  now,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.tickets.IncrementMessageStats(ctx, ticket.ID, now); err != nil {
		s.logger.Errorf("Failed to bump message stats for ticket %s: %v", ticket.ID, err)
	}

	// 首条消息不进集线器：它由随后的首次分析覆盖，
	// 监听器只需要关心创建之后新到的客户消息
	s.logger.Infof("Created ticket %s for customer %s", ticket.ID, req.CustomerID)
	return s.tickets.Get(ctx, ticket.ID)
}

// GetTicket 读取工单
func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.tickets.Get(ctx, id)
}

// AddMessage 追加一条消息并广播事件，客户消息会进入去抖监听
func (s *TicketService) AddMessage(ctx context.Context, ticketID, senderRole, text string) (*models.Message, error) {
	if !models.ValidSenderRole(senderRole) {
		return nil, fmt.Errorf("invalid sender role: %s", senderRole)
	}
	if _, err := s.tickets.Get(ctx, ticketID); err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &models.Message{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		SenderRole: senderRole,
		Message:    text,
		CreatedAt:  now,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.tickets.IncrementMessageStats(ctx, ticketID, now); err != nil {
		s.logger.Errorf("Failed to bump message stats for ticket %s: %v", ticketID, err)
	}

	if s.hub != nil {
		s.hub.Publish(TicketEvent{
			Type:       EventMessageAppended,
			TicketID:   ticketID,
			SenderRole: senderRole,
			MessageID:  msg.ID,
			Timestamp:  now,
		})
	}

	s.logger.Infof("Appended %s message to ticket %s", senderRole, ticketID)
	return msg, nil
}

// UpdateStatus 业务状态流转。关单会取消待触发的再分析，
// 并追加一条系统消息作为记录。
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID, status string) error {
	if !models.ValidTicketStatus(status) {
		return fmt.Errorf("invalid ticket status: %s", status)
	}

	if err := s.tickets.UpdateStatus(ctx, ticketID, status); err != nil {
		return err
	}

	if status == models.TicketClosed {
		if s.watcher != nil {
			s.watcher.Cancel(ticketID)
		}
		if _, err := s.AddMessage(ctx, ticketID, models.RoleSystem, "Ticket closed."); err != nil {
			s.logger.Errorf("Failed to append close notice to ticket %s: %v", ticketID, err)
		}
	}

	s.logger.Infof("Ticket %s status changed to %s", ticketID, status)
	return nil
}
