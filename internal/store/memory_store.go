package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tiketai/internal/models"
)

// MemoryStore 进程内实现，用于测试与本地开发
type MemoryStore struct {
	mu       sync.Mutex
	tickets  map[string]*models.Ticket
	messages map[string][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*models.Ticket),
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ticket
	s.tickets[ticket.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (s *MemoryStore) UpdateAIAnalysis(ctx context.Context, id string, upd AIAnalysisUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}

	ai := &ticket.AIAnalysis
	if upd.Status != nil {
		ai.Status = *upd.Status
	}
	if upd.Mood != nil {
		ai.Mood = *upd.Mood
	}
	if upd.Sentiment != nil {
		ai.Sentiment = *upd.Sentiment
	}
	if upd.UrgencyScore != nil {
		ai.UrgencyScore = *upd.UrgencyScore
	}
	if upd.Urgency != nil {
		ai.Urgency = *upd.Urgency
	}
	if upd.Summary != nil {
		ai.Summary = *upd.Summary
	}
	if upd.SuggestedResponse != nil {
		ai.SuggestedResponse = *upd.SuggestedResponse
	}
	if upd.ReprocessCount != nil {
		ai.ReprocessCount = *upd.ReprocessCount
	}
	if upd.ReprocessRequested != nil {
		ai.ReprocessRequested = *upd.ReprocessRequested
	}
	if upd.Error != nil {
		ai.Error = *upd.Error
	}
	if upd.AnalyzedAt != nil {
		at := *upd.AnalyzedAt
		ai.AnalyzedAt = &at
	}

	ticket.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClaimForProcessing(ctx context.Context, id string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return false, "", ErrNotFound
	}
	if ticket.AIAnalysis.Status != models.AnalysisPending {
		return false, ticket.AIAnalysis.Status, nil
	}
	ticket.AIAnalysis.Status = models.AnalysisProcessing
	return true, models.AnalysisProcessing, nil
}

func (s *MemoryStore) MarkPendingForReprocess(ctx context.Context, id string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return false, "", ErrNotFound
	}

	ai := &ticket.AIAnalysis
	if ai.Status != models.AnalysisDone && ai.Status != models.AnalysisError {
		return false, ai.Status, nil
	}
	ai.Status = models.AnalysisPending
	ai.ReprocessRequested = true
	return true, models.AnalysisPending, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	ticket.Status = status
	ticket.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrementMessageStats(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	ticket.MessageCount++
	ticket.LastMessageAt = &at
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.TicketID] = append(s.messages[msg.TicketID], *msg)
	return nil
}

func (s *MemoryStore) ListByTicket(ctx context.Context, ticketID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]models.Message, len(s.messages[ticketID]))
	copy(messages, s.messages[ticketID])
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}
