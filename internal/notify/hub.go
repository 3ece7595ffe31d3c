package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub persists activity through an underlying Log and fans each appended
// entry out to live subscribers of the owning teacher.
type Hub struct {
	log  Log
	subs map[string]map[chan Activity]struct{}
	mu   sync.RWMutex
}

// NewHub wraps log. A nil log is treated as NopLog.
func NewHub(log Log) *Hub {
	if log == nil {
		log = NopLog{}
	}
	return &Hub{
		log:  log,
		subs: make(map[string]map[chan Activity]struct{}),
	}
}

// Append persists the activity, then publishes it. Publishing never blocks:
// a subscriber whose buffer is full misses the entry.
func (h *Hub) Append(ctx context.Context, activity Activity) error {
	activity, err := prepare(activity)
	if err != nil {
		return err
	}
	if err := h.log.Append(ctx, activity); err != nil {
		return err
	}
	h.publish(activity)
	return nil
}

// Subscribe registers a live feed for teacherID. The returned cancel func
// must be called to release it.
func (h *Hub) Subscribe(teacherID string) (<-chan Activity, func()) {
	ch := make(chan Activity, subscriberBuffer)

	h.mu.Lock()
	if h.subs[teacherID] == nil {
		h.subs[teacherID] = make(map[chan Activity]struct{})
	}
	h.subs[teacherID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[teacherID], ch)
			if len(h.subs[teacherID]) == 0 {
				delete(h.subs, teacherID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live feeds for teacherID.
func (h *Hub) Subscribers(teacherID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[teacherID])
}

func (h *Hub) publish(activity Activity) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[activity.TeacherID] {
		select {
		case ch <- activity:
		default:
			slog.Warn("activity subscriber is slow, dropping entry",
				"teacher_id", activity.TeacherID,
				"activity_id", activity.ID,
			)
		}
	}
}

// ServeWS upgrades the request to a websocket and streams teacherID's
// activity as JSON messages until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, teacherID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	feed, cancel := h.Subscribe(teacherID)
	defer cancel()

	// Reads are not expected; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	slog.Info("activity feed connected", "teacher_id", teacherID)
	for {
		select {
		case <-ctx.Done():
			slog.Info("activity feed disconnected", "teacher_id", teacherID)
			return
		case activity := <-feed:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, activity)
			writeCancel()
			if err != nil {
				slog.Warn("activity feed write failed", "teacher_id", teacherID, "error", err)
				return
			}
		}
	}
}
