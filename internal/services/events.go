package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// AnalysisEvent 分析终态事件，发往 Kafka 供下游消费
type AnalysisEvent struct {
	TicketID       string    `json:"ticket_id"`
	Status         string    `json:"status"` // done 或 error
	Urgency        string    `json:"urgency,omitempty"`
	Sentiment      string    `json:"sentiment,omitempty"`
	ReprocessCount int       `json:"reprocess_count"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventProducer 分析事件生产者。未配置 broker 时为 nil，所有方法对 nil 安全。
type EventProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewEventProducer 创建 Kafka 生产者，brokers 为空时返回 nil
func NewEventProducer(brokers []string, topic string, logger *logrus.Logger) *EventProducer {
	if len(brokers) == 0 {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &EventProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// PublishAnalysis 以工单 ID 为 key 发布分析终态事件
func (p *EventProducer) PublishAnalysis(ctx context.Context, event AnalysisEvent) error {
	if p == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.TicketID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.logger.Debugf("Published analysis event for ticket %s (%s)", event.TicketID, event.Status)
	return nil
}

// Close 关闭底层 writer
func (p *EventProducer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
