package director

import (
	"log"
	"slices"
	"sync"
	"time"

	"radio-station/internal/models"
)

const subscriberBuffer = 256

// 已结束run的事件记录默认保留时间和数量
const (
	DefaultRetention = time.Hour
	DefaultMaxClosed = 200
)

// Hub 按run分发进度事件, 并保留事件记录供之后查询.
// 已结束的记录超过保留时间或数量上限后被清理.
type Hub struct {
	mu        sync.Mutex
	runs      map[string]*runLog
	retention time.Duration
	maxClosed int
	clock     models.Clock
}

type runLog struct {
	events    []models.Event
	subs      map[chan models.Event]struct{}
	followers map[*follower]struct{}
	closed    bool
	closedAt  time.Time
}

// NewHub 创建事件中心
func NewHub() *Hub {
	return &Hub{
		runs:      make(map[string]*runLog),
		retention: DefaultRetention,
		maxClosed: DefaultMaxClosed,
		clock:     time.Now,
	}
}

// WithRetention 设置已结束记录的保留时间和数量上限, 0表示不限制
func (h *Hub) WithRetention(ttl time.Duration, maxClosed int) *Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retention, h.maxClosed = ttl, maxClosed
	return h
}

// WithClock 替换时钟
func (h *Hub) WithClock(clock models.Clock) *Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = clock
	return h
}

func (h *Hub) logFor(runID string) *runLog {
	l, ok := h.runs[runID]
	if !ok {
		l = &runLog{
			subs:      make(map[chan models.Event]struct{}),
			followers: make(map[*follower]struct{}),
		}
		h.runs[runID] = l
	}
	return l
}

// Open 开始记录一个run, 已结束的记录会被重新打开(续跑)
func (h *Hub) Open(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evict()
	h.logFor(runID).closed = false
}

// Publish 记录事件并推送. Follow得到的事件流不丢事件;
// Subscribe的订阅者处理不过来时丢弃.
func (h *Hub) Publish(e models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.logFor(e.RunID)
	l.events = append(l.events, e)
	for f := range l.followers {
		f.push(e)
	}
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
			log.Printf("[run %s] 订阅者缓冲已满，丢弃事件: %s", e.RunID, e.Author)
		}
	}
}

// Follow 返回run之后发布的全部事件, run结束时通道关闭.
// 事件在内存中排队, 调用方必须把通道读完.
func (h *Hub) Follow(runID string) <-chan models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.logFor(runID)
	f := newFollower()
	if l.closed {
		f.finish()
		return f.out
	}
	l.followers[f] = struct{}{}
	return f.out
}

// Subscribe 订阅run的事件, 返回已有的事件记录和后续事件的通道.
// run结束后通道关闭; 订阅已结束或不存在的run会得到一个已关闭的通道.
func (h *Hub) Subscribe(runID string) ([]models.Event, <-chan models.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan models.Event, subscriberBuffer)
	l, ok := h.runs[runID]
	if !ok {
		close(ch)
		return nil, ch, func() {}
	}
	history := append([]models.Event(nil), l.events...)
	if l.closed {
		close(ch)
		return history, ch, func() {}
	}
	l.subs[ch] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
		})
	}
	return history, ch, cancel
}

// Close 结束run的事件流, 关闭所有订阅通道
func (h *Hub) Close(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.logFor(runID)
	l.closed = true
	l.closedAt = h.clock()
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
	for f := range l.followers {
		delete(l.followers, f)
		f.finish()
	}
	h.evict()
}

// Events 返回run的事件记录
func (h *Hub) Events(runID string) ([]models.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.runs[runID]
	if !ok {
		return nil, false
	}
	return append([]models.Event(nil), l.events...), true
}

// evict 清理过期的已结束记录, 调用方持有锁
func (h *Hub) evict() {
	now := h.clock()
	var closed []string
	for id, l := range h.runs {
		if !l.closed {
			continue
		}
		if h.retention > 0 && now.Sub(l.closedAt) >= h.retention {
			delete(h.runs, id)
			continue
		}
		closed = append(closed, id)
	}
	if h.maxClosed <= 0 || len(closed) <= h.maxClosed {
		return
	}
	slices.SortFunc(closed, func(a, b string) int {
		return h.runs[a].closedAt.Compare(h.runs[b].closedAt)
	})
	for _, id := range closed[:len(closed)-h.maxClosed] {
		delete(h.runs, id)
	}
}

// follower 不限长度的事件队列, 由单独的goroutine按顺序写入out
type follower struct {
	mu    sync.Mutex
	queue []models.Event
	done  bool
	wake  chan struct{}
	out   chan models.Event
}

func newFollower() *follower {
	f := &follower{wake: make(chan struct{}, 1), out: make(chan models.Event)}
	go f.pump()
	return f
}

func (f *follower) push(e models.Event) {
	f.mu.Lock()
	f.queue = append(f.queue, e)
	f.mu.Unlock()
	f.signal()
}

func (f *follower) finish() {
	f.mu.Lock()
	f.done = true
	f.mu.Unlock()
	f.signal()
}

func (f *follower) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *follower) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		queue, done := f.queue, f.done
		f.queue = nil
		f.mu.Unlock()

		for _, e := range queue {
			f.out <- e
		}
		if len(queue) > 0 {
			continue
		}
		if done {
			return
		}
		<-f.wake
	}
}
