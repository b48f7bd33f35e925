package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tiketai/internal/models"
)

// GormStore 基于 Postgres 的 TicketStore/MessageStore 实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 迁移工单与消息表
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Ticket{}, &models.Message{})
}

func (s *GormStore) Create(ctx context.Context, ticket *models.Ticket) error {
	if err := s.db.WithContext(ctx).Create(ticket).Error; err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).First(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &ticket, nil
}

func (s *GormStore) UpdateAIAnalysis(ctx context.Context, id string, upd AIAnalysisUpdate) error {
	updates := aiUpdateColumns(upd)
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update ai analysis: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ClaimForProcessing(ctx context.Context, id string) (bool, string, error) {
	// 条件更新即并发闸门：只有 pending 的工单能被占用
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND ai_status = ?", id, models.AnalysisPending).
		Update("ai_status", models.AnalysisProcessing)
	if res.Error != nil {
		return false, "", fmt.Errorf("claim ticket: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, models.AnalysisProcessing, nil
	}

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return false, "", err
	}
	return false, ticket.AIAnalysis.Status, nil
}

func (s *GormStore) MarkPendingForReprocess(ctx context.Context, id string) (bool, string, error) {
	// 条件更新只放行终态，在跑的分析不会被重置回 pending
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND ai_status IN ?", id, []string{models.AnalysisDone, models.AnalysisError}).
		Updates(map[string]interface{}{
			"ai_status":              models.AnalysisPending,
			"ai_reprocess_requested": true,
		})
	if res.Error != nil {
		return false, "", fmt.Errorf("mark pending for reprocess: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, models.AnalysisPending, nil
	}

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return false, "", err
	}
	return false, ticket.AIAnalysis.Status, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, status string) error {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementMessageStats(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Updates(map[string]interface{}{
		"message_count":   gorm.Expr("message_count + 1"),
		"last_message_at": at,
	})
	if res.Error != nil {
		return fmt.Errorf("increment message stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Append(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *GormStore) ListByTicket(ctx context.Context, ticketID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// aiUpdateColumns 将类型化的部分更新翻译为 ai_ 前缀列
func aiUpdateColumns(upd AIAnalysisUpdate) map[string]interface{} {
	updates := make(map[string]interface{})

	if upd.Status != nil {
		updates["ai_status"] = *upd.Status
	}
	if upd.Mood != nil {
		updates["ai_mood"] = *upd.Mood
	}
	if upd.Sentiment != nil {
		updates["ai_sentiment"] = *upd.Sentiment
	}
	if upd.UrgencyScore != nil {
		updates["ai_urgency_score"] = *upd.UrgencyScore
	}
	if upd.Urgency != nil {
		updates["ai_urgency"] = *upd.Urgency
	}
	if upd.Summary != nil {
		updates["ai_summary"] = *upd.Summary
	}
	if upd.SuggestedResponse != nil {
		updates["ai_suggested_response"] = *upd.SuggestedResponse
	}
	if upd.ReprocessCount != nil {
		updates["ai_reprocess_count"] = *upd.ReprocessCount
	}
	if upd.ReprocessRequested != nil {
		updates["ai_reprocess_requested"] = *upd.ReprocessRequested
	}
	if upd.Error != nil {
		updates["ai_error"] = *upd.Error
	}
	if upd.AnalyzedAt != nil {
		updates["ai_analyzed_at"] = *upd.AnalyzedAt
	}

	return updates
}
