// Package websocket streams application status to clients: a spinner
// snapshot first, then computed statuses as refreshes complete.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-appstatus/internal/service"
)

const defaultPollInterval = 15 * time.Second

// Handler handles WebSocket connections
type Handler struct {
	ctx      context.Context
	svc      service.AppStatusService
	poll     time.Duration
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler creates a new WebSocket handler. allowedOrigins containing "*"
// accepts every origin.
func NewHandler(ctx context.Context, svc service.AppStatusService, poll time.Duration, allowedOrigins []string, log *zap.Logger) *Handler {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		ctx:  ctx,
		svc:  svc,
		poll: poll,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		log: log.Named("websocket"),
	}
}

// ServeWS handles websocket requests from clients
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(h.ctx, conn, h.svc, h.poll, clientID, h.log)

	metrics.WebSocketConnectionsActive.Inc()
	go func() {
		<-client.ctx.Done()
		metrics.WebSocketConnectionsActive.Dec()
		h.log.Debug("websocket client disconnected", zap.String("client", clientID))
	}()

	go client.WritePump()
	go client.ReadPump()
	go client.Run()

	h.log.Debug("websocket client connected", zap.String("client", clientID))
}
