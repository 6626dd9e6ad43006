package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/service"
	"github.com/kubilitics/kubilitics-appstatus/internal/topology"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8 * 1024 * 1024
)

// Message types pushed to the client.
const (
	MessagePending = "pending"
	MessageStatus  = "status"
	MessageError   = "error"
)

// Message is one frame sent to the client.
type Message struct {
	Type   string                 `json:"type"`
	Status *models.TopologyStatus `json:"status,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type result struct {
	seq    uint64
	status *models.TopologyStatus
	err    error
}

// Client is one status stream. The client sends TopologyRequest frames; each
// one replaces the previous request and supersedes its in-flight refresh.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	requests chan *models.TopologyRequest
	svc      service.AppStatusService
	poll     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	id  string
	log *zap.Logger
}

// NewClient creates a new WebSocket client
func NewClient(ctx context.Context, conn *websocket.Conn, svc service.AppStatusService, poll time.Duration, id string, log *zap.Logger) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:     conn,
		send:     make(chan []byte, 16),
		requests: make(chan *models.TopologyRequest, 1),
		svc:      svc,
		poll:     poll,
		ctx:      topology.WithConsumer(clientCtx, id),
		cancel:   cancel,
		id:       id,
		log:      log.With(zap.String("client", id)),
	}
}

// ReadPump reads requests from the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req models.TopologyRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.sendMessage(Message{Type: MessageError, Error: "invalid request: " + err.Error()})
			continue
		}
		// Keep only the newest request.
		select {
		case <-c.requests:
		default:
		}
		select {
		case c.requests <- &req:
		case <-c.ctx.Done():
			return
		}
	}
}

// WritePump pumps queued messages and pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// Run drives refreshes: a pending snapshot and a computed status for every new
// request, then a recompute every poll interval. Results of superseded
// refreshes are dropped.
func (c *Client) Run() {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	results := make(chan result, 1)
	var (
		current  *models.TopologyRequest
		seq      uint64
		inflight context.CancelFunc
	)
	stop := func() {
		if inflight != nil {
			inflight()
			inflight = nil
		}
	}
	start := func(cached bool) {
		seq++
		ctx, cancel := context.WithCancel(c.ctx)
		inflight = cancel
		req, n := current, seq
		go func() {
			var r result
			r.seq = n
			if cached {
				r.status, r.err = c.svc.GetStatus(ctx, req)
			} else {
				r.status, r.err = c.svc.Refresh(ctx, req)
			}
			select {
			case results <- r:
			case <-c.ctx.Done():
			}
		}()
	}

	for {
		select {
		case <-c.ctx.Done():
			stop()
			return

		case req := <-c.requests:
			stop()
			pending, err := c.svc.Pending(req)
			if err != nil {
				current = nil
				c.sendMessage(Message{Type: MessageError, Error: err.Error()})
				continue
			}
			current = req
			c.sendMessage(Message{Type: MessagePending, Status: pending})
			start(true)

		case r := <-results:
			if r.seq != seq {
				continue
			}
			stop()
			if r.err != nil {
				if errors.Is(r.err, topology.ErrStaleRefresh) || errors.Is(r.err, context.Canceled) {
					continue
				}
				c.log.Warn("status refresh failed", zap.Error(r.err))
				c.sendMessage(Message{Type: MessageError, Error: r.err.Error()})
				continue
			}
			c.sendMessage(Message{Type: MessageStatus, Status: r.status})

		case <-ticker.C:
			if current != nil && inflight == nil {
				start(false)
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.cancel()
}

func (c *Client) sendMessage(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		c.log.Error("encode websocket message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}
