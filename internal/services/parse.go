package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ClassificationResult 解析后的分类结果
type ClassificationResult struct {
	Mood           string `json:"mood"`
	UrgencyScore   int    `json:"urgency_score"`
	Summary        string `json:"summary"`
	SuggestedReply string `json:"suggested_reply"`
}

// ParseClassification 解析模型返回的文本。纯函数，无 I/O。
// 模型偶尔会返回被 markdown 包裹或在字符串字面量中途截断的 JSON，
// 这里先剥离围栏，再做一次尽力而为的补全后交给标准解析。
func ParseClassification(raw string) (*ClassificationResult, error) {
	text := stripCodeFence(raw)
	text = repairTruncatedJSON(text)

	var payload struct {
		Mood           *string  `json:"mood"`
		UrgencyScore   *float64 `json:"urgency_score"`
		Summary        *string  `json:"summary"`
		SuggestedReply *string  `json:"suggested_reply"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if payload.Mood == nil || strings.TrimSpace(*payload.Mood) == "" {
		return nil, fmt.Errorf("%w: missing or empty field 'mood'", ErrParse)
	}
	if payload.UrgencyScore == nil {
		return nil, fmt.Errorf("%w: missing field 'urgency_score'", ErrParse)
	}
	if payload.Summary == nil || strings.TrimSpace(*payload.Summary) == "" {
		return nil, fmt.Errorf("%w: missing or empty field 'summary'", ErrParse)
	}
	if payload.SuggestedReply == nil || strings.TrimSpace(*payload.SuggestedReply) == "" {
		return nil, fmt.Errorf("%w: missing or empty field 'suggested_reply'", ErrParse)
	}

	// 超出范围的分值收敛到 [1,100]，不拒绝
	score := int(math.Round(*payload.UrgencyScore))
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}

	return &ClassificationResult{
		Mood:           strings.TrimSpace(*payload.Mood),
		UrgencyScore:   score,
		Summary:        strings.TrimSpace(*payload.Summary),
		SuggestedReply: strings.TrimSpace(*payload.SuggestedReply),
	}, nil
}

// stripCodeFence 剥离 ```json ... ``` 这类 markdown 围栏
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// 丢弃围栏行上的语言标记（json 等）
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// repairTruncatedJSON 单次补全截断的对象：引号数为奇数说明字符串
// 字面量未闭合，先补引号再补右花括号。只处理这一种截断形态。
func repairTruncatedJSON(text string) string {
	if text == "" || strings.HasSuffix(text, "}") {
		return text
	}

	if strings.Count(text, `"`)%2 == 1 {
		text += `"`
	}
	return text + "}"
}
