package store

import (
	"context"
	"errors"
	"time"

	"tiketai/internal/models"
)

// ErrNotFound 工单或消息不存在
var ErrNotFound = errors.New("not found")

// AIAnalysisUpdate AI 分析字段的部分更新。nil 字段不写入，
// 避免动态 map 更新对兄弟字段的意外覆盖。
type AIAnalysisUpdate struct {
	Status             *string
	Mood               *string
	Sentiment          *string
	UrgencyScore       *int
	Urgency            *string
	Summary            *string
	SuggestedResponse  *string
	ReprocessCount     *int
	ReprocessRequested *bool
	Error              *string // 指向空串表示清除
	AnalyzedAt         *time.Time
}

// TicketStore 工单存取接口
type TicketStore interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	Get(ctx context.Context, id string) (*models.Ticket, error)

	// UpdateAIAnalysis 只更新 AI 分析子记录中被显式指定的字段
	UpdateAIAnalysis(ctx context.Context, id string, upd AIAnalysisUpdate) error

	// ClaimForProcessing 以 pending→processing 的条件更新作为并发闸门。
	// 返回 claimed=false 时附带当前的分析状态。
	ClaimForProcessing(ctx context.Context, id string) (claimed bool, current string, err error)

	// MarkPendingForReprocess 仅允许终态回退：done/error → pending，
	// 并同时置位 reprocess_requested。processing 不可抢占，
	// 此时返回 moved=false 与当前状态。
	MarkPendingForReprocess(ctx context.Context, id string) (moved bool, current string, err error)

	UpdateStatus(ctx context.Context, id string, status string) error

	// IncrementMessageStats 递增 message_count 并推进 last_message_at
	IncrementMessageStats(ctx context.Context, id string, at time.Time) error
}

// MessageStore 消息存取接口，消息只追加
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error

	// ListByTicket 按 created_at 升序返回工单全部消息
	ListByTicket(ctx context.Context, ticketID string) ([]models.Message, error)
}

// 指针辅助函数，供构造 AIAnalysisUpdate 使用
func String(s string) *string     { return &s }
func Int(i int) *int              { return &i }
func Bool(b bool) *bool           { return &b }
func Time(t time.Time) *time.Time { return &t }
