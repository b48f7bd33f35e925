package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tiketai/internal/models"
	"tiketai/internal/store"
)

// TriggerMode 分析触发方式
type TriggerMode string

const (
	ModeInitial    TriggerMode = "initial"
	ModeReanalysis TriggerMode = "reanalysis"
)

// TriggerResult 调度动作的同步返回。分析本身异步执行，
// 结果通过工单的 ai_analysis 字段观察。
type TriggerResult struct {
	Status         string `json:"status"`
	ReprocessCount int    `json:"reprocess_count"`
}

// Classifier 分类调用接口，便于测试注入计数桩
type Classifier interface {
	Classify(ctx context.Context, prompt string) (*ClassificationResult, error)
}

// AnalysisService 驱动工单 AI 分析的状态机：
// pending → processing → {done | error}，done/error → pending（再分析）。
// pending→processing 通过存储层的条件更新独占推进，
// 同一工单同一时刻至多有一个分析任务在调用外部接口。
type AnalysisService struct {
	tickets    store.TicketStore
	messages   store.MessageStore
	classifier Classifier
	producer   *EventProducer
	hub        *EventHub
	logger     *logrus.Logger
}

// NewAnalysisService 创建分析服务。producer 与 hub 可为 nil。
func NewAnalysisService(tickets store.TicketStore, messages store.MessageStore, classifier Classifier, producer *EventProducer, hub *EventHub, logger *logrus.Logger) *AnalysisService {
	if logger == nil {
		logger = logrus.New()
	}

	return &AnalysisService{
		tickets:    tickets,
		messages:   messages,
		classifier: classifier,
		producer:   producer,
		hub:        hub,
		logger:     logger,
	}
}

// TriggerAnalysis 调度一次分析。对已处于 processing/done 的初次触发
// 幂等：汇报现状，不发起第二次外部调用。再分析只抢占终态
// （done/error → pending，reprocess_count 要等这次跑到 done 才加一）；
// 在跑的任务不被打断，只登记 reprocess 请求。
func (s *AnalysisService) TriggerAnalysis(ctx context.Context, ticketID string, mode TriggerMode) (*TriggerResult, error) {
	if mode == ModeReanalysis {
		moved, current, err := s.tickets.MarkPendingForReprocess(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if !moved && current == models.AnalysisProcessing {
			// 同一工单同时只允许一个外部调用：登记请求后汇报现状
			if err := s.tickets.UpdateAIAnalysis(ctx, ticketID, store.AIAnalysisUpdate{
				ReprocessRequested: store.Bool(true),
			}); err != nil {
				return nil, err
			}
			ticket, err := s.tickets.Get(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			s.logger.Debugf("Ticket %s analysis in flight, reprocess request recorded", ticketID)
			return &TriggerResult{Status: current, ReprocessCount: ticket.AIAnalysis.ReprocessCount}, nil
		}
	}

	claimed, current, err := s.tickets.ClaimForProcessing(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	// 闸门之后再读，计数才不会落后于刚完成的那轮
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if !claimed {
		// 已在处理或已完成：良性的重复抑制信号，不是错误
		s.logger.Debugf("Ticket %s already %s, skipping duplicate analysis", ticketID, current)
		return &TriggerResult{Status: current, ReprocessCount: ticket.AIAnalysis.ReprocessCount}, nil
	}

	reprocess := mode == ModeReanalysis || ticket.AIAnalysis.ReprocessRequested
	go s.runAnalysis(ticketID, reprocess)

	return &TriggerResult{Status: models.AnalysisProcessing, ReprocessCount: ticket.AIAnalysis.ReprocessCount}, nil
}

// runAnalysis 独立协程中执行一次完整分析。进入 processing 后不可抢占，
// 由分类客户端的重试/轮换预算保证有界结束。
func (s *AnalysisService) runAnalysis(ticketID string, reprocess bool) {
	ctx := context.Background()

	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		s.logger.Errorf("Ticket %s vanished before analysis: %v", ticketID, err)
		return
	}

	prompt, err := s.buildPrompt(ctx, ticket, reprocess)
	if err != nil {
		s.failAnalysis(ctx, ticket, fmt.Errorf("load conversation: %w", err))
		return
	}

	result, err := s.classifier.Classify(ctx, prompt)
	if err != nil {
		s.failAnalysis(ctx, ticket, err)
		return
	}

	s.completeAnalysis(ctx, ticket, result, reprocess)
}

// buildPrompt 首次分析只带首条客户消息，再分析序列化整段会话
func (s *AnalysisService) buildPrompt(ctx context.Context, ticket *models.Ticket, reprocess bool) (string, error) {
	messages, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return "", err
	}

	if reprocess {
		return BuildConversationPrompt(ticket.Subject, messages), nil
	}

	first := ticket.Subject
	for _, msg := range messages {
		if msg.SenderRole == models.RoleCustomer {
			first = msg.Message
			break
		}
	}
	return BuildInitialPrompt(ticket.Subject, first), nil
}

// completeAnalysis processing→done：结果字段与状态原子落库，清除 error。
// urgency/sentiment 永远由 score/mood 重新推导，不单独写入。
func (s *AnalysisService) completeAnalysis(ctx context.Context, ticket *models.Ticket, result *ClassificationResult, reprocess bool) {
	now := time.Now()
	upd := store.AIAnalysisUpdate{
		Status:             store.String(models.AnalysisDone),
		Mood:               store.String(result.Mood),
		Sentiment:          store.String(SentimentFromMood(result.Mood)),
		UrgencyScore:       store.Int(result.UrgencyScore),
		Urgency:            store.String(UrgencyFromScore(result.UrgencyScore)),
		Summary:            store.String(result.Summary),
		SuggestedResponse:  store.String(result.SuggestedReply),
		Error:              store.String(""),
		ReprocessRequested: store.Bool(false),
		AnalyzedAt:         store.Time(now),
	}
	count := ticket.AIAnalysis.ReprocessCount
	if reprocess {
		count++
		upd.ReprocessCount = store.Int(count)
	}

	if err := s.tickets.UpdateAIAnalysis(ctx, ticket.ID, upd); err != nil {
		s.logger.Errorf("Failed to persist analysis result for ticket %s: %v", ticket.ID, err)
		return
	}

	s.logger.Infof("Analysis done for ticket %s: urgency=%s sentiment=%s score=%d",
		ticket.ID, *upd.Urgency, *upd.Sentiment, result.UrgencyScore)

	s.publishOutcome(ctx, AnalysisEvent{
		TicketID:       ticket.ID,
		Status:         models.AnalysisDone,
		Urgency:        *upd.Urgency,
		Sentiment:      *upd.Sentiment,
		ReprocessCount: count,
		Timestamp:      now,
	})
}

// failAnalysis processing→error：只写失败原因，不碰既有的 done 字段
func (s *AnalysisService) failAnalysis(ctx context.Context, ticket *models.Ticket, cause error) {
	upd := store.AIAnalysisUpdate{
		Status: store.String(models.AnalysisError),
		Error:  store.String(cause.Error()),
	}
	if err := s.tickets.UpdateAIAnalysis(ctx, ticket.ID, upd); err != nil {
		s.logger.Errorf("Failed to persist analysis error for ticket %s: %v", ticket.ID, err)
		return
	}

	s.logger.Warnf("Analysis failed for ticket %s: %v", ticket.ID, cause)

	s.publishOutcome(ctx, AnalysisEvent{
		TicketID:       ticket.ID,
		Status:         models.AnalysisError,
		ReprocessCount: ticket.AIAnalysis.ReprocessCount,
		Error:          cause.Error(),
		Timestamp:      time.Now(),
	})
}

func (s *AnalysisService) publishOutcome(ctx context.Context, event AnalysisEvent) {
	if s.hub != nil {
		s.hub.Publish(TicketEvent{
			Type:      EventAnalysisUpdated,
			TicketID:  event.TicketID,
			Data:      event,
			Timestamp: event.Timestamp,
		})
	}
	if err := s.producer.PublishAnalysis(ctx, event); err != nil {
		s.logger.Errorf("Failed to publish analysis event for ticket %s: %v", event.TicketID, err)
	}
}
