package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client Gemini generateContent HTTP 客户端。
// 单次调用、单个凭证；重试与轮换由上层的分类服务负责。
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建新的 Gemini 客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// GenerateContent 用指定凭证发起一次分类调用，返回模型的原始文本。
// 失败按 ErrQuota / ErrServer / ErrEmptyResponse 分类，便于上层决定轮换还是重试。
func (c *Client) GenerateContent(ctx context.Context, apiKey, prompt string) (string, error) {
	reqBody := GenerateRequest{
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: prompt}}},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Gemini API response: %d (%d bytes)", resp.StatusCode, len(body))

	if resp.StatusCode >= 400 {
		return "", classifyHTTPError(resp.StatusCode, body)
	}

	var parsed GenerateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", classifyAPIError(parsed.Error)
	}

	text := extractText(&parsed)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// classifyHTTPError 按状态码与错误载荷区分限额错误与服务端错误
func classifyHTTPError(status int, body []byte) error {
	var errResp GenerateResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		if status == http.StatusTooManyRequests || isQuotaPayload(errResp.Error) {
			return fmt.Errorf("%w: [%d] %s", ErrQuota, status, errResp.Error.Message)
		}
		if status >= 500 {
			return fmt.Errorf("%w: [%d] %s", ErrServer, status, errResp.Error.Message)
		}
		return fmt.Errorf("gemini API error [%d]: %s (status: %s)", status, errResp.Error.Message, errResp.Error.Status)
	}

	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: [%d]", ErrQuota, status)
	}
	if status >= 500 {
		return fmt.Errorf("%w: [%d] %s", ErrServer, status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("gemini API error [%d]: %s", status, strings.TrimSpace(string(body)))
}

func classifyAPIError(apiErr *APIError) error {
	if apiErr.Code == http.StatusTooManyRequests || isQuotaPayload(apiErr) {
		return fmt.Errorf("%w: %s", ErrQuota, apiErr.Message)
	}
	if apiErr.Code >= 500 {
		return fmt.Errorf("%w: %s", ErrServer, apiErr.Message)
	}
	return fmt.Errorf("gemini API error [%d]: %s (status: %s)", apiErr.Code, apiErr.Message, apiErr.Status)
}

// isQuotaPayload 识别错误载荷中的限额/限流标记
func isQuotaPayload(apiErr *APIError) bool {
	status := strings.ToUpper(apiErr.Status)
	if status == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

// extractText 拼接首个候选的全部文本分片
func extractText(resp *GenerateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}
