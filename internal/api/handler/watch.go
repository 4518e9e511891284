package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

const (
	defaultPollInterval = 5 * time.Second
	writeWait           = 10 * time.Second

	// refreshEvery forces a full reload every n polls so progress changes
	// under an unchanged status still reach the watcher.
	refreshEvery = 6
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusMessage is one frame pushed to a watcher.
type StatusMessage struct {
	Type string      `json:"type"`
	Job  *models.Job `json:"job,omitempty"`
	Err  string      `json:"error,omitempty"`
}

// NewWatchJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/watch.
// It upgrades to a websocket and pushes the job each time its status or
// progress changes, closing after a terminal status.
func NewWatchJobHandler(svc JobService, interval time.Duration) http.HandlerFunc {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		job, err := svc.Get(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()
		go func() {
			// Drain client frames; any read error means the peer went away.
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						slog.Debug("websocket read", "job_id", jobID, "error", err)
					}
					return
				}
			}
		}()

		watch(ctx, conn, svc, job, interval)
	}
}

func watch(ctx context.Context, conn *websocket.Conn, svc JobService, job *models.Job, interval time.Duration) {
	log := slog.With("job_id", job.ID)
	if !send(conn, StatusMessage{Type: "status", Job: job}) {
		return
	}
	last := job

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for polls := 1; !last.Status.IsTerminal(); polls++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The status lookup is served from the cache when one is configured.
		if st, err := svc.Status(ctx, job.ID); err == nil && st == last.Status && polls%refreshEvery != 0 {
			continue
		}

		cur, err := svc.Get(ctx, job.ID)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("watch poll failed", "error", err)
				send(conn, StatusMessage{Type: "error", Err: err.Error()})
			}
			return
		}
		if cur.Status == last.Status && cur.Progress == last.Progress {
			continue
		}
		if !send(conn, StatusMessage{Type: "status", Job: cur}) {
			return
		}
		last = cur
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Status)),
		time.Now().Add(writeWait))
}

func send(conn *websocket.Conn, msg StatusMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("websocket write", "error", err)
		return false
	}
	return true
}
