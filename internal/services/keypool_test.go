package services

import (
	"testing"
)

func TestKeyPoolRotation(t *testing.T) {
	pool, err := NewKeyPool([]string{"k0", "k1", "k2"})
	if err != nil {
		t.Fatalf("NewKeyPool failed: %v", err)
	}

	key, idx := pool.Current()
	if key != "k0" || idx != 0 {
		t.Fatalf("expected initial key k0/0, got %s/%d", key, idx)
	}

	if !pool.Rotate() {
		t.Fatal("first rotation should succeed")
	}
	if key, idx = pool.Current(); key != "k1" || idx != 1 {
		t.Fatalf("expected k1/1 after first rotation, got %s/%d", key, idx)
	}

	if !pool.Rotate() {
		t.Fatal("second rotation should succeed")
	}
	if key, idx = pool.Current(); key != "k2" || idx != 2 {
		t.Fatalf("expected k2/2 after second rotation, got %s/%d", key, idx)
	}

	// 最后一个凭证上的轮换宣告耗尽，且不回绕
	if pool.Rotate() {
		t.Fatal("rotation past the last key should report exhaustion")
	}
	if key, idx = pool.Current(); key != "k2" || idx != 2 {
		t.Fatalf("exhausted pool should stay on last key, got %s/%d", key, idx)
	}

	pool.Reset()
	if key, idx = pool.Current(); key != "k0" || idx != 0 {
		t.Fatalf("expected k0/0 after reset, got %s/%d", key, idx)
	}
}

func TestNewKeyPoolRequiresKeys(t *testing.T) {
	if _, err := NewKeyPool(nil); err == nil {
		t.Fatal("expected error for empty key list")
	}
}

func TestKeyPoolStats(t *testing.T) {
	pool, err := NewKeyPool([]string{"a", "b"})
	if err != nil {
		t.Fatalf("NewKeyPool failed: %v", err)
	}

	pool.RecordResult(0, false, errKindQuota)
	pool.Rotate()
	pool.RecordResult(1, false, errKindServer)
	pool.RecordResult(1, true, "")

	snap := pool.Snapshot()
	if snap.TotalCalls != 3 {
		t.Errorf("expected 3 total calls, got %d", snap.TotalCalls)
	}
	if snap.SuccessfulCalls != 1 {
		t.Errorf("expected 1 successful call, got %d", snap.SuccessfulCalls)
	}
	if snap.FailedCalls != 2 {
		t.Errorf("expected 2 failed calls, got %d", snap.FailedCalls)
	}
	if snap.QuotaErrors != 1 {
		t.Errorf("expected 1 quota error, got %d", snap.QuotaErrors)
	}
	if snap.ActiveIndex != 1 {
		t.Errorf("expected active index 1, got %d", snap.ActiveIndex)
	}
	if snap.PerKey[0].QuotaErrorCount != 1 || snap.PerKey[1].QuotaErrorCount != 0 {
		t.Errorf("quota errors attributed to wrong key: %+v", snap.PerKey)
	}
	if snap.PerKey[1].LastError != "" {
		t.Errorf("success should clear last error, got %q", snap.PerKey[1].LastError)
	}
}

func TestKeyPoolRecordResultIgnoresBadIndex(t *testing.T) {
	pool, _ := NewKeyPool([]string{"a"})
	pool.RecordResult(-1, true, "")
	pool.RecordResult(5, false, errKindQuota)

	if snap := pool.Snapshot(); snap.TotalCalls != 0 {
		t.Fatalf("out-of-range index should be ignored, got %d calls", snap.TotalCalls)
	}
}
