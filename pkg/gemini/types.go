package gemini

import (
	"errors"
	"time"
)

// Config Gemini 客户端配置
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.0-flash",
		Timeout: 30 * time.Second,
	}
}

// 错误分类哨兵。上层用 errors.Is 区分限额、服务端与空响应三类失败。
var (
	ErrQuota         = errors.New("gemini: quota or rate limit exceeded")
	ErrServer        = errors.New("gemini: upstream server error")
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// GenerateRequest generateContent 请求体
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

// GenerateResponse generateContent 响应体
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
	Error      *APIError   `json:"error,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// APIError Google API 风格的错误载荷
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"` // 例如 RESOURCE_EXHAUSTED
}
