package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tiketai/internal/models"
)

// ReanalysisTrigger 再分析入口，由 AnalysisService 实现
type ReanalysisTrigger interface {
	TriggerAnalysis(ctx context.Context, ticketID string, mode TriggerMode) (*TriggerResult, error)
}

// pendingTimer 某工单待触发的去抖定时器。gen 用来判定过期回调：
// 定时器重置或取消后，旧回调凭代数不符直接放弃。
type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// ActivityWatcher 监听工单消息流，发现新的客户消息后，
// 在一段安静期（去抖窗口）之后调度一次再分析。窗口内的新消息
// 重置窗口（去抖而非节流），让分析反映一轮连发的最终状态。
type ActivityWatcher struct {
	trigger ReanalysisTrigger
	events  <-chan TicketEvent
	window  time.Duration
	logger  *logrus.Logger

	mu       sync.Mutex
	lastSeen map[string]string // ticket id → 最近一条客户消息 id
	timers   map[string]*pendingTimer
	gen      uint64
	stopped  bool

	stopCh chan struct{}
	done   chan struct{}
}

// NewActivityWatcher 创建监听器，事件来自集线器订阅
func NewActivityWatcher(trigger ReanalysisTrigger, hub *EventHub, window time.Duration, logger *logrus.Logger) *ActivityWatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if window <= 0 {
		window = 3 * time.Second
	}

	return &ActivityWatcher{
		trigger:  trigger,
		events:   hub.Subscribe(),
		window:   window,
		logger:   logger,
		lastSeen: make(map[string]string),
		timers:   make(map[string]*pendingTimer),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动事件循环
func (w *ActivityWatcher) Start() {
	go w.loop()
}

func (w *ActivityWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.events:
			if !ok {
				return
			}
			w.handleEvent(event)
		}
	}
}

// handleEvent 只关心客户消息；同一条消息的重复事件不会重置窗口
func (w *ActivityWatcher) handleEvent(event TicketEvent) {
	if event.Type != EventMessageAppended || event.SenderRole != models.RoleCustomer {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.lastSeen[event.TicketID] == event.MessageID {
		return
	}
	w.lastSeen[event.TicketID] = event.MessageID

	// 经典去抖：取消旧定时器并重开窗口
	if pt, ok := w.timers[event.TicketID]; ok {
		pt.timer.Stop()
	}
	w.gen++
	gen := w.gen
	ticketID := event.TicketID
	pt := &pendingTimer{gen: gen}
	pt.timer = time.AfterFunc(w.window, func() {
		w.fire(ticketID, gen)
	})
	w.timers[ticketID] = pt

	w.logger.Debugf("Debounce window restarted for ticket %s (message %s)", ticketID, event.MessageID)
}

// fire 安静期结束，调度再分析
func (w *ActivityWatcher) fire(ticketID string, gen uint64) {
	w.mu.Lock()
	pt, ok := w.timers[ticketID]
	if w.stopped || !ok || pt.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.timers, ticketID)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := w.trigger.TriggerAnalysis(ctx, ticketID, ModeReanalysis)
	if err != nil {
		w.logger.Errorf("Debounced re-analysis of ticket %s failed to schedule: %v", ticketID, err)
		return
	}
	w.logger.Infof("Debounced re-analysis scheduled for ticket %s (status=%s)", ticketID, res.Status)
}

// Cancel 工单关闭时取消待触发的再分析
func (w *ActivityWatcher) Cancel(ticketID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pt, ok := w.timers[ticketID]; ok {
		pt.timer.Stop()
		delete(w.timers, ticketID)
	}
	delete(w.lastSeen, ticketID)
}

// Stop 停止监听并取消全部待触发定时器，已排定的再分析不再执行
func (w *ActivityWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for id, pt := range w.timers {
		pt.timer.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.done
}
