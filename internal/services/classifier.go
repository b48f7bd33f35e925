package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tiketai/internal/models"
	"tiketai/pkg/gemini"
)

// 终态错误分类，分析服务据此持久化 error 状态与原因
var (
	ErrQuotaExhausted = errors.New("all API keys exhausted")
	ErrServerFailure  = errors.New("upstream server error after retries")
	ErrEmptyResponse  = errors.New("empty model response after retries")
	ErrParse          = errors.New("unparseable classification response")
	ErrNetwork        = errors.New("network failure after retries")
)

// KeyPool 计数用的错误种类标签
const (
	errKindQuota   = "quota"
	errKindServer  = "server"
	errKindEmpty   = "empty"
	errKindNetwork = "network"
)

// GenerateAPI 底层生成接口，便于测试注入桩实现
type GenerateAPI interface {
	GenerateContent(ctx context.Context, apiKey, prompt string) (string, error)
}

// ClassifierClient 包装一次外部分类调用：提示词构建、
// 限额轮换与瞬时错误重试、响应解析。
//
// 两个预算相互独立：限额错误只消耗轮换预算（至多池大小-1 次），
// 5xx/空响应/网络错误只消耗整次调用共享的重试预算。
// 原实现未定义两者组合耗尽的先后顺序，这里保持维度独立而不合并。
type ClassifierClient struct {
	api            GenerateAPI
	pool           *KeyPool
	retryBudget    int
	retryBackoff   time.Duration
	rotationBudget int
	logger         *logrus.Logger
}

// NewClassifierClient 创建分类客户端。rotationBudget<=0 时默认池大小-1。
func NewClassifierClient(api GenerateAPI, pool *KeyPool, retryBudget int, retryBackoff time.Duration, rotationBudget int, logger *logrus.Logger) *ClassifierClient {
	if logger == nil {
		logger = logrus.New()
	}
	if rotationBudget <= 0 {
		rotationBudget = pool.Size() - 1
	}
	if retryBackoff <= 0 {
		retryBackoff = 1500 * time.Millisecond
	}

	return &ClassifierClient{
		api:            api,
		pool:           pool,
		retryBudget:    retryBudget,
		retryBackoff:   retryBackoff,
		rotationBudget: rotationBudget,
		logger:         logger,
	}
}

// Classify 执行一次完整的分类调用并解析结果
func (c *ClassifierClient) Classify(ctx context.Context, prompt string) (*ClassificationResult, error) {
	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseClassification(raw)
}

// generate 调用外部接口直至成功或某一预算耗尽，成功时返回原始文本
func (c *ClassifierClient) generate(ctx context.Context, prompt string) (string, error) {
	rotations := 0
	retries := 0

	for {
		key, idx := c.pool.Current()
		raw, err := c.api.GenerateContent(ctx, key, prompt)
		if err == nil {
			c.pool.RecordResult(idx, true, "")
			c.pool.Reset()
			return raw, nil
		}

		switch {
		case errors.Is(err, gemini.ErrQuota):
			c.pool.RecordResult(idx, false, errKindQuota)
			c.logger.Warnf("Key %d hit quota limit: %v", idx, err)
			if rotations >= c.rotationBudget || !c.pool.Rotate() {
				return "", fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
			}
			rotations++
			// 换新钥匙立即重试，不占用重试预算

		case errors.Is(err, gemini.ErrServer):
			c.pool.RecordResult(idx, false, errKindServer)
			if retries >= c.retryBudget {
				return "", fmt.Errorf("%w: %v", ErrServerFailure, err)
			}
			retries++
			c.logger.Warnf("Transient server error, retry %d/%d: %v", retries, c.retryBudget, err)
			if err := c.sleep(ctx); err != nil {
				return "", err
			}

		case errors.Is(err, gemini.ErrEmptyResponse):
			c.pool.RecordResult(idx, false, errKindEmpty)
			if retries >= c.retryBudget {
				return "", fmt.Errorf("%w: %v", ErrEmptyResponse, err)
			}
			retries++
			c.logger.Warnf("Empty model response, retry %d/%d", retries, c.retryBudget)
			if err := c.sleep(ctx); err != nil {
				return "", err
			}

		default:
			c.pool.RecordResult(idx, false, errKindNetwork)
			if retries >= c.retryBudget {
				return "", fmt.Errorf("%w: %v", ErrNetwork, err)
			}
			retries++
			c.logger.Warnf("Network error, retry %d/%d: %v", retries, c.retryBudget, err)
			if err := c.sleep(ctx); err != nil {
				return "", err
			}
		}
	}
}

func (c *ClassifierClient) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryBackoff):
		return nil
	}
}

// BuildInitialPrompt 首次分析的提示词，只带客户的首条消息
func BuildInitialPrompt(subject, firstMessage string) string {
	var b strings.Builder

	writePromptHeader(&b)
	b.WriteString(fmt.Sprintf("Subject: %s\n", subject))
	b.WriteString(fmt.Sprintf("Customer message: %s\n", firstMessage))
	return b.String()
}

// BuildConversationPrompt 再分析的提示词，按到达顺序序列化整段会话，
// 让结果反映对话的最新状态而不只是最初的投诉。
func BuildConversationPrompt(subject string, messages []models.Message) string {
	var b strings.Builder

	writePromptHeader(&b)
	b.WriteString(fmt.Sprintf("Subject: %s\n", subject))
	b.WriteString("Full conversation so far:\n")
	for i, msg := range messages {
		b.WriteString(fmt.Sprintf("%d. [%s]: %s\n", i+1, roleLabel(msg.SenderRole), msg.Message))
	}
	return b.String()
}

func writePromptHeader(b *strings.Builder) {
	b.WriteString("You are a support-ticket analyst. Analyze the conversation below and respond with ONLY a JSON object, no markdown, with exactly these fields:\n")
	b.WriteString(`{"mood": "<short mood label>", "urgency_score": <integer 1-100>, "summary": "<one-paragraph summary>", "suggested_reply": "<reply the agent could send>"}` + "\n")
	b.WriteString("The customer may write in Indonesian or English; answer mood/summary/suggested_reply in the customer's language.\n\n")
}

func roleLabel(role string) string {
	switch role {
	case models.RoleCustomer:
		return "Customer"
	case models.RoleAgent:
		return "Agent"
	default:
		return "System"
	}
}
