package services

import (
	"fmt"
	"sync"
	"time"
)

// KeyStats 单个凭证的进程内诊断计数，不做持久化
type KeyStats struct {
	Index           int       `json:"index"`
	CallCount       int64     `json:"call_count"`
	SuccessCount    int64     `json:"success_count"`
	QuotaErrorCount int64     `json:"quota_error_count"`
	LastUsedAt      time.Time `json:"last_used_at"`
	LastError       string    `json:"last_error,omitempty"`
}

// PoolStats 凭证池的只读诊断快照
type PoolStats struct {
	TotalCalls      int64      `json:"total_calls"`
	SuccessfulCalls int64      `json:"successful_calls"`
	FailedCalls     int64      `json:"failed_calls"`
	QuotaErrors     int64      `json:"quota_errors"`
	ActiveIndex     int        `json:"active_index"`
	PerKey          []KeyStats `json:"per_key"`
}

// KeyPool 持有有序的分类接口凭证列表。活跃下标只在锁内变更，
// 避免并发任务互相越过地轮换；计数字段仅用于诊断。
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	active int
	stats  []KeyStats
}

// NewKeyPool 创建凭证池，至少需要一个凭证
func NewKeyPool(keys []string) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key pool requires at least one credential")
	}

	stats := make([]KeyStats, len(keys))
	for i := range stats {
		stats[i].Index = i
	}
	return &KeyPool{keys: keys, stats: stats}, nil
}

// Size 凭证数量
func (p *KeyPool) Size() int {
	return len(p.keys)
}

// Current 返回当前活跃凭证及其下标
func (p *KeyPool) Current() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.active], p.active
}

// Rotate 切换到下一个凭证。已处于最后一个时返回 false 表示池耗尽，
// 此时调用方应终止而不是继续循环。
func (p *KeyPool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active >= len(p.keys)-1 {
		return false
	}
	p.active++
	return true
}

// Reset 回到首个凭证。每次成功后调用，让下一次请求从头开始尝试，
// 而不是停留在上次成功的位置。
func (p *KeyPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = 0
}

// RecordResult 更新指定凭证的调用计数
func (p *KeyPool) RecordResult(index int, success bool, errKind string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.stats) {
		return
	}

	st := &p.stats[index]
	st.CallCount++
	st.LastUsedAt = time.Now()
	if success {
		st.SuccessCount++
		st.LastError = ""
		return
	}
	st.LastError = errKind
	if errKind == errKindQuota {
		st.QuotaErrorCount++
	}
}

// Snapshot 返回诊断快照的副本
func (p *KeyPool) Snapshot() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := PoolStats{
		ActiveIndex: p.active,
		PerKey:      make([]KeyStats, len(p.stats)),
	}
	copy(snap.PerKey, p.stats)

	for _, st := range p.stats {
		snap.TotalCalls += st.CallCount
		snap.SuccessfulCalls += st.SuccessCount
		snap.FailedCalls += st.CallCount - st.SuccessCount
		snap.QuotaErrors += st.QuotaErrorCount
	}
	return snap
}
