package rest

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/orchestrator"
)

const pollInterval = time.Second * 2

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 1 << 12,
}

// hub fans the progress events of the bus out to the sockets watching
// each handle. Slow sockets miss events and catch up on the next poll.
type hub struct {
	mu       sync.Mutex
	watchers map[string]map[chan internal.ProgressRecord]struct{}
}

func newHub(bus EventBus.Bus) *hub {
	h := &hub{
		watchers: make(map[string]map[chan internal.ProgressRecord]struct{}),
	}

	if bus != nil {
		if err := bus.Subscribe(orchestrator.ProgressTopic, h.dispatch); err != nil {
			slog.Error("failed to subscribe to progress events", slog.String("err", err.Error()))
		}
	}

	return h
}

func (h *hub) dispatch(id string, rec internal.ProgressRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.watchers[id] {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (h *hub) watch(id string) chan internal.ProgressRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan internal.ProgressRecord, 16)
	if h.watchers[id] == nil {
		h.watchers[id] = make(map[chan internal.ProgressRecord]struct{})
	}
	h.watchers[id][ch] = struct{}{}
	return ch
}

func (h *hub) unwatch(id string, ch chan internal.ProgressRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.watchers[id], ch)
	if len(h.watchers[id]) == 0 {
		delete(h.watchers, id)
	}
}

// WebSocket streams the progress of a download until it is terminal.
func (h *Handler) WebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", slog.String("err", err.Error()))
			return
		}
		defer conn.Close()

		updates := h.hub.watch(id)
		defer h.hub.unwatch(id, updates)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		send := func(rec internal.ProgressRecord) bool {
			if err := conn.WriteJSON(rec); err != nil {
				return false
			}
			return !rec.Status.IsTerminal() && rec.Status != internal.StatusNotFound
		}

		if !send(h.service.Progress(id)) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}

		for {
			var rec internal.ProgressRecord

			select {
			case <-closed:
				return
			case rec = <-updates:
			case <-ticker.C:
				rec = h.service.Progress(id)
			}

			if !send(rec) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}
