package models

import (
	"time"
)

// 工单业务状态
const (
	TicketOpen       = "open"
	TicketInProgress = "in-progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// AI 分析状态（与业务状态相互独立）
const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisDone       = "done"
	AnalysisError      = "error"
)

// 消息发送方角色
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleSystem   = "system"
)

// 紧急度与情感分桶（由 urgency_score / mood 推导，从不独立写入）
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"

	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// 工单模型
type Ticket struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Subject    string `json:"subject"`
	Status     string `gorm:"default:'open';index" json:"status"`
	CustomerID string `gorm:"index" json:"customer_id"`

	// 冗余的消息统计字段，与消息表最终一致，message_count 只增不减
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	AIAnalysis AIAnalysis `gorm:"embedded;embeddedPrefix:ai_" json:"ai_analysis"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:TicketID" json:"messages,omitempty"`
}

// AI 分析子记录，status 在任一时刻只处于 pending/processing/done/error 之一
type AIAnalysis struct {
	Status             string     `gorm:"default:'pending';index" json:"status"`
	Mood               string     `json:"mood,omitempty"`
	Sentiment          string     `json:"sentiment,omitempty"`
	UrgencyScore       int        `json:"urgency_score,omitempty"`
	Urgency            string     `json:"urgency,omitempty"`
	Summary            string     `gorm:"type:text" json:"summary,omitempty"`
	SuggestedResponse  string     `gorm:"type:text" json:"suggested_response,omitempty"`
	ReprocessCount     int        `json:"reprocess_count"`
	ReprocessRequested bool       `json:"reprocess_requested"`
	Error              string     `json:"error,omitempty"`
	AnalyzedAt         *time.Time `json:"analyzed_at,omitempty"`
}

// 消息模型，按 created_at 在工单内有序，只追加、不修改、不删除
type Message struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TicketID   string    `gorm:"index" json:"ticket_id"`
	SenderRole string    `json:"sender_role"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// ValidTicketStatus 校验业务状态取值
func ValidTicketStatus(s string) bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// ValidSenderRole 校验消息角色取值
func ValidSenderRole(r string) bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSystem:
		return true
	}
	return false
}
