package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"tiketai/internal/models"
)

type recordingTrigger struct {
	mu    sync.Mutex
	calls []string
	modes []TriggerMode
}

func (r *recordingTrigger) TriggerAnalysis(ctx context.Context, ticketID string, mode TriggerMode) (*TriggerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ticketID)
	r.modes = append(r.modes, mode)
	return &TriggerResult{Status: models.AnalysisProcessing}, nil
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newWatcherFixture(t *testing.T, window time.Duration) (*ActivityWatcher, *EventHub, *recordingTrigger) {
	t.Helper()
	hub := NewEventHub()
	trigger := &recordingTrigger{}
	watcher := NewActivityWatcher(trigger, hub, window, nil)
	go hub.Run()
	watcher.Start()
	t.Cleanup(watcher.Stop)
	return watcher, hub, trigger
}

func customerMessage(ticketID, messageID string) TicketEvent {
	return TicketEvent{
		Type:       EventMessageAppended,
		TicketID:   ticketID,
		SenderRole: models.RoleCustomer,
		MessageID:  messageID,
	}
}

func TestWatcherDebouncesMessageBurst(t *testing.T) {
	_, hub, trigger := newWatcherFixture(t, 150*time.Millisecond)

	// 连发三条，间隔小于窗口：只应触发一次再分析
	hub.Publish(customerMessage("t1", "m1"))
	time.Sleep(50 * time.Millisecond)
	hub.Publish(customerMessage("t1", "m2"))
	time.Sleep(50 * time.Millisecond)
	hub.Publish(customerMessage("t1", "m3"))

	time.Sleep(400 * time.Millisecond)

	if got := trigger.count(); got != 1 {
		t.Fatalf("expected exactly one debounced trigger, got %d", got)
	}
	if trigger.modes[0] != ModeReanalysis {
		t.Fatalf("watcher should trigger reanalysis, got %s", trigger.modes[0])
	}
}

func TestWatcherIgnoresNonCustomerMessages(t *testing.T) {
	_, hub, trigger := newWatcherFixture(t, 50*time.Millisecond)

	hub.Publish(TicketEvent{
		Type:       EventMessageAppended,
		TicketID:   "t1",
		SenderRole: models.RoleAgent,
		MessageID:  "m1",
	})
	hub.Publish(TicketEvent{
		Type:     EventAnalysisUpdated,
		TicketID: "t1",
	})

	time.Sleep(200 * time.Millisecond)

	if got := trigger.count(); got != 0 {
		t.Fatalf("agent and analysis events must not schedule reanalysis, got %d triggers", got)
	}
}

func TestWatcherDuplicateMessageEvent(t *testing.T) {
	_, hub, trigger := newWatcherFixture(t, 50*time.Millisecond)

	hub.Publish(customerMessage("t1", "m1"))
	hub.Publish(customerMessage("t1", "m1"))

	time.Sleep(250 * time.Millisecond)

	if got := trigger.count(); got != 1 {
		t.Fatalf("duplicate message events should collapse to one trigger, got %d", got)
	}
}

func TestWatcherTracksTicketsIndependently(t *testing.T) {
	_, hub, trigger := newWatcherFixture(t, 50*time.Millisecond)

	hub.Publish(customerMessage("t1", "m1"))
	hub.Publish(customerMessage("t2", "m2"))

	time.Sleep(300 * time.Millisecond)

	if got := trigger.count(); got != 2 {
		t.Fatalf("expected one trigger per ticket, got %d", got)
	}
}

func TestWatcherCancelDropsPendingTrigger(t *testing.T) {
	watcher, hub, trigger := newWatcherFixture(t, 100*time.Millisecond)

	hub.Publish(customerMessage("t1", "m1"))
	time.Sleep(30 * time.Millisecond)
	watcher.Cancel("t1")

	time.Sleep(300 * time.Millisecond)

	if got := trigger.count(); got != 0 {
		t.Fatalf("canceled ticket must not fire, got %d triggers", got)
	}
}

func TestWatcherStopDropsPendingTriggers(t *testing.T) {
	watcher, hub, trigger := newWatcherFixture(t, 100*time.Millisecond)

	hub.Publish(customerMessage("t1", "m1"))
	time.Sleep(30 * time.Millisecond)
	watcher.Stop()

	time.Sleep(300 * time.Millisecond)

	if got := trigger.count(); got != 0 {
		t.Fatalf("stopped watcher must not fire, got %d triggers", got)
	}
}
