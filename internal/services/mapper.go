package services

import (
	"strings"

	"tiketai/internal/models"
)

// 情感词表，支持印尼语与英语。负面优先于正面匹配，
// 同表内按列表顺序取首个命中——这是一个粗粒度启发式，不是分类器。
var negativeMoodWords = []string{
	"marah", "kesal", "frustrasi", "frustrated", "angry", "furious",
	"kecewa", "disappointed", "upset", "annoyed", "sedih", "sad",
	"panik", "panic", "cemas", "khawatir", "worried", "stres", "stress",
}

var positiveMoodWords = []string{
	"senang", "puas", "satisfied", "happy", "gembira", "glad",
	"lega", "relieved", "tenang", "calm", "antusias", "enthusiastic",
}

// UrgencyFromScore 将 [1,100] 的紧急度分值映射为固定档位。
// 对全部整数输入有定义且单调。
func UrgencyFromScore(score int) string {
	switch {
	case score >= 80:
		return models.UrgencyCritical
	case score >= 60:
		return models.UrgencyHigh
	case score >= 30:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// SentimentFromMood 按词表对 mood 做大小写不敏感的子串匹配，
// 未命中任何词表时返回 neutral。
func SentimentFromMood(mood string) string {
	lower := strings.ToLower(mood)

	for _, w := range negativeMoodWords {
		if strings.Contains(lower, w) {
			return models.SentimentNegative
		}
	}
	for _, w := range positiveMoodWords {
		if strings.Contains(lower, w) {
			return models.SentimentPositive
		}
	}
	return models.SentimentNeutral
}
