package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/discovery"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024

	// Maximum number of queued frames per client
	maxQueuedFrames = 64

	// How long a streamed decision waits for its write
	streamCommitWait = 30 * time.Second
)

// Client message types.
const (
	WSTypeGesture       = "gesture"
	WSTypeAnimationDone = "animation_done"
	WSTypeDecision      = "decision"
	WSTypePhoto         = "photo"
	WSTypeReplenish     = "replenish"
	WSTypeSnapshot      = "snapshot"
)

// Server frame types not shared with client messages.
const (
	WSTypeFeedback   = "feedback"
	WSTypeResolution = "resolution"
	WSTypeCommit     = "commit"
	WSTypeNotice     = "notice"
	WSTypeError      = "error"
)

// ErrBadMessage is reported for stream messages that cannot be decoded.
var ErrBadMessage = errors.New("malformed message")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is a client request on the stream.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSResponse wraps every server frame.
type WSResponse struct {
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *WSError        `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newWSResponse(msgType string, data interface{}, err error) WSResponse {
	resp := WSResponse{
		Type:      msgType,
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		_, msg := errorStatus(err)
		resp.Error = &WSError{Code: errorCode(err), Message: msg}
		return resp
	}
	if data != nil {
		raw, merr := json.Marshal(data)
		if merr != nil {
			raw = json.RawMessage(`{}`)
		}
		resp.Data = raw
	}
	return resp
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrQueueEmpty):
		return "QUEUE_EMPTY"
	case errors.Is(err, domain.ErrGestureBusy):
		return "GESTURE_BUSY"
	case errors.Is(err, domain.ErrNoDrag):
		return "NO_DRAG"
	case errors.Is(err, domain.ErrSessionClosed):
		return "SESSION_CLOSED"
	case errors.Is(err, domain.ErrFetchFailed):
		return "FETCH_FAILED"
	case errors.Is(err, domain.ErrInvalidDecisionKind),
		errors.Is(err, ErrUnknownPhase),
		errors.Is(err, ErrBadMessage):
		return "BAD_REQUEST"
	}
	return "ERROR"
}

// StreamHandler serves the discovery session over a websocket. Pointer
// events arrive as client messages; feedback, resolutions and snapshots go
// back as frames. A snapshot is pushed whenever the session changes on its
// own, e.g. when a background fetch lands or a match is made.
type StreamHandler struct {
	sessions *discovery.SessionManager
	logger   *zap.Logger
}

func NewStreamHandler(sessions *discovery.SessionManager, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{sessions: sessions, logger: logger}
}

// Stream handles GET /discovery/session/stream
// @Summary Discovery session websocket
// @Tags discovery
// @Security BearerAuth
// @Param token query string false "JWT when headers cannot be set"
// @Success 101
// @Failure 404 {object} ErrorResponse
// @Router /discovery/session/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	s, err := h.sessions.Get(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newStreamClient(conn, s, h.logger.With(
		zap.Int("user_id", userID),
		zap.String("session_id", s.ID()),
	))
	client.run()
}

type streamClient struct {
	conn    *websocket.Conn
	session *discovery.Session
	logger  *zap.Logger
	send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStreamClient(conn *websocket.Conn, s *discovery.Session, logger *zap.Logger) *streamClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &streamClient{
		conn:    conn,
		session: s,
		logger:  logger,
		send:    make(chan []byte, maxQueuedFrames),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// run blocks until the peer goes away or the session is closed.
func (c *streamClient) run() {
	c.wg.Add(2)
	go c.writePump()
	go c.watch()

	c.push(WSTypeSnapshot, c.session.Snapshot(), nil)
	c.readPump()

	c.cancel()
	c.wg.Wait()
	c.conn.Close()
}

func (c *streamClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		// Pointer events must be applied in arrival order.
		c.process(message)
	}
}

func (c *streamClient) writePump() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for n := len(c.send); n > 0; n-- {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// watch pushes a snapshot after every change the client did not ask for.
func (c *streamClient) watch() {
	defer c.wg.Done()

	for {
		changed := c.session.Changed()
		select {
		case <-changed:
			snap := c.session.Snapshot()
			c.push(WSTypeSnapshot, snap, nil)
			for _, n := range snap.Notices {
				c.push(WSTypeNotice, n, nil)
			}
			if snap.State == discovery.SessionClosed {
				// Let the close frame go out after the final snapshot.
				c.conn.SetReadDeadline(time.Now())
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *streamClient) process(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.push(WSTypeError, nil, ErrBadMessage)
		return
	}

	switch msg.Type {
	case WSTypeGesture:
		var req GestureRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.push(WSTypeGesture, nil, ErrUnknownPhase)
			return
		}
		resp, commit, err := ApplyGesture(c.session, req)
		if err != nil {
			c.push(WSTypeGesture, nil, err)
			return
		}
		switch {
		case resp.Feedback != nil:
			c.push(WSTypeFeedback, resp.Feedback, nil)
		case resp.Resolution != nil:
			c.push(WSTypeResolution, resp, nil)
		default:
			c.push(WSTypeSnapshot, resp.Snapshot, nil)
		}
		if commit != nil {
			c.awaitCommit(commit)
		}

	case WSTypeAnimationDone:
		c.session.AnimationDone()
		c.push(WSTypeSnapshot, c.session.Snapshot(), nil)

	case WSTypeDecision:
		var req DecisionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.push(WSTypeDecision, nil, domain.ErrInvalidDecisionKind)
			return
		}
		kind, err := domain.ParseDecisionKind(req.Kind)
		if err != nil {
			c.push(WSTypeDecision, nil, err)
			return
		}
		commit, err := c.session.Decide(kind)
		if err != nil {
			c.push(WSTypeDecision, nil, err)
			return
		}
		c.push(WSTypeSnapshot, c.session.Snapshot(), nil)
		c.awaitCommit(commit)

	case WSTypePhoto:
		var req PhotoRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.push(WSTypePhoto, nil, fmt.Errorf("%w: %v", ErrBadMessage, err))
			return
		}
		zone, err := req.zone()
		if err != nil {
			c.push(WSTypePhoto, nil, err)
			return
		}
		if _, err := c.session.TapPhoto(zone); err != nil {
			c.push(WSTypePhoto, nil, err)
			return
		}
		c.push(WSTypeSnapshot, c.session.Snapshot(), nil)

	case WSTypeReplenish:
		if err := c.session.Replenish(c.ctx); err != nil {
			c.push(WSTypeReplenish, nil, err)
		}
		c.push(WSTypeSnapshot, c.session.Snapshot(), nil)

	case WSTypeSnapshot:
		c.push(WSTypeSnapshot, c.session.Snapshot(), nil)

	default:
		c.push(WSTypeError, nil, fmt.Errorf("%w: unknown type %q", ErrBadMessage, msg.Type))
	}
}

// awaitCommit reports the write result without blocking the read loop.
func (c *streamClient) awaitCommit(commit *discovery.Commit) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.push(WSTypeCommit, AwaitCommit(c.ctx, commit, streamCommitWait), nil)
	}()
}

// push queues a frame; frames are dropped for a client too slow to drain.
func (c *streamClient) push(msgType string, data interface{}, err error) {
	raw, merr := json.Marshal(newWSResponse(msgType, data, err))
	if merr != nil {
		c.logger.Error("encode websocket frame", zap.Error(merr))
		return
	}
	select {
	case c.send <- raw:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("websocket send buffer full, dropping frame", zap.String("type", msgType))
	}
}
