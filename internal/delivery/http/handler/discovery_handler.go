package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/discovery"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/gesture"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/swipe"
)

const (
	// decisionWait is how long a decision request waits for the write before
	// answering "pending"; the card has already moved on either way.
	decisionWait = 2 * time.Second

	CommitSaved   = "saved"
	CommitPending = "pending"
	CommitFailed  = "failed"
)

// ErrUnknownPhase is returned for a pointer event other than down, move or up.
var ErrUnknownPhase = errors.New("unknown gesture phase")

type DiscoveryHandler struct {
	sessions *discovery.SessionManager
	logger   *zap.Logger
}

func NewDiscoveryHandler(sessions *discovery.SessionManager, logger *zap.Logger) *DiscoveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryHandler{sessions: sessions, logger: logger}
}

type OpenSessionRequest struct {
	discovery.Overrides
	ScreenWidth float64 `json:"screen_width" binding:"omitempty,gt=0,lte=4096"`
}

type GestureRequest struct {
	Phase string  `json:"phase" binding:"required,oneof=down move up"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
}

type DecisionRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// PhotoRequest names a hot-zone directly or gives the tap position on the
// card. An explicit zone wins.
type PhotoRequest struct {
	Zone      string   `json:"zone,omitempty" binding:"omitempty,oneof=left right"`
	X         *float64 `json:"x,omitempty" binding:"omitempty,min=0"`
	CardWidth float64  `json:"card_width,omitempty" binding:"omitempty,gt=0"`
}

type ResolutionResponse struct {
	Decision string  `json:"decision"`
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
	Next     string  `json:"next"`
}

type CommitResponse struct {
	TargetID int            `json:"target_id"`
	Kind     string         `json:"kind"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Outcome  *swipe.Outcome `json:"outcome,omitempty"`
}

type GestureResponse struct {
	Feedback   *gesture.Feedback   `json:"feedback,omitempty"`
	Resolution *ResolutionResponse `json:"resolution,omitempty"`
	Commit     *CommitResponse     `json:"commit,omitempty"`
	Snapshot   *discovery.Snapshot `json:"snapshot,omitempty"`
}

type DecisionResponse struct {
	Commit   *CommitResponse    `json:"commit"`
	Snapshot discovery.Snapshot `json:"snapshot"`
}

type PhotoResponse struct {
	PhotoIndex int                `json:"photo_index"`
	Snapshot   discovery.Snapshot `json:"snapshot"`
}

// OpenSession handles POST /discovery/session
// @Summary Open discovery session
// @Description Builds the filter, loads the first batch and replaces any previous session
// @Tags discovery
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body OpenSessionRequest false "Filter overrides"
// @Success 200 {object} discovery.Snapshot
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} discovery.Snapshot
// @Router /discovery/session [post]
func (h *DiscoveryHandler) OpenSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	// The body is optional.
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), userID, discovery.OpenOptions{
		Overrides:   req.Overrides,
		ScreenWidth: req.ScreenWidth,
	})
	if err != nil {
		h.fail(c, "open session", err)
		return
	}

	snap := s.Snapshot()
	if snap.State == discovery.QueueFetchFailed {
		c.JSON(http.StatusServiceUnavailable, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSession handles GET /discovery/session
// @Summary Current discovery state
// @Tags discovery
// @Security BearerAuth
// @Produce json
// @Success 200 {object} discovery.Snapshot
// @Failure 404 {object} ErrorResponse
// @Router /discovery/session [get]
func (h *DiscoveryHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// CloseSession handles DELETE /discovery/session
// @Summary Leave the discovery screen
// @Description Cancels an in-flight fetch. Committed decisions are still saved.
// @Tags discovery
// @Security BearerAuth
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /discovery/session [delete]
func (h *DiscoveryHandler) CloseSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(userID); err != nil {
		h.fail(c, "close session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Gesture handles POST /discovery/session/gesture
// @Summary Pointer event for the top card
// @Tags discovery
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body GestureRequest true "Pointer event"
// @Success 200 {object} GestureResponse
// @Failure 409 {object} ErrorResponse
// @Router /discovery/session/gesture [post]
func (h *DiscoveryHandler) Gesture(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req GestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}

	resp, _, err := ApplyGesture(s, req)
	if err != nil {
		h.fail(c, "gesture", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AnimationDone handles POST /discovery/session/animation-done
// @Summary Card animation finished
// @Tags discovery
// @Security BearerAuth
// @Produce json
// @Success 200 {object} discovery.Snapshot
// @Router /discovery/session/animation-done [post]
func (h *DiscoveryHandler) AnimationDone(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.AnimationDone()
	c.JSON(http.StatusOK, s.Snapshot())
}

// Decision handles POST /discovery/session/decision
// @Summary Like, pass or super like the top card
// @Description Answers once the decision is saved or after a short wait with status "pending"
// @Tags discovery
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body DecisionRequest true "Decision"
// @Success 200 {object} DecisionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /discovery/session/decision [post]
func (h *DiscoveryHandler) Decision(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}
	kind, err := domain.ParseDecisionKind(req.Kind)
	if err != nil {
		h.fail(c, "decision", err)
		return
	}

	commit, err := s.Decide(kind)
	if err != nil {
		h.fail(c, "decision", err)
		return
	}

	c.JSON(http.StatusOK, DecisionResponse{
		Commit:   AwaitCommit(c.Request.Context(), commit, decisionWait),
		Snapshot: s.Snapshot(),
	})
}

// Photo handles POST /discovery/session/photo
// @Summary Tap a photo hot-zone
// @Tags discovery
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body PhotoRequest true "Zone or tap position"
// @Success 200 {object} PhotoResponse
// @Router /discovery/session/photo [post]
func (h *DiscoveryHandler) Photo(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
		})
		return
	}

	zone, err := req.zone()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	idx, err := s.TapPhoto(zone)
	if err != nil {
		h.fail(c, "photo", err)
		return
	}
	c.JSON(http.StatusOK, PhotoResponse{PhotoIndex: idx, Snapshot: s.Snapshot()})
}

// Replenish handles POST /discovery/session/replenish
// @Summary Retry loading candidates
// @Tags discovery
// @Security BearerAuth
// @Produce json
// @Success 200 {object} discovery.Snapshot
// @Failure 503 {object} ErrorResponse
// @Router /discovery/session/replenish [post]
func (h *DiscoveryHandler) Replenish(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Replenish(c.Request.Context()); err != nil {
		h.fail(c, "replenish", err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *DiscoveryHandler) session(c *gin.Context) (*discovery.Session, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *DiscoveryHandler) fail(c *gin.Context, op string, err error) {
	status, _ := errorStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrFetchFailed) {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	respondError(c, err)
}

// ApplyGesture feeds one pointer event to the session. It is shared by the
// HTTP endpoint and the websocket stream. The commit is non-nil when a
// release sent the card away.
func ApplyGesture(s *discovery.Session, req GestureRequest) (*GestureResponse, *discovery.Commit, error) {
	switch req.Phase {
	case "down":
		if err := s.PointerDown(); err != nil {
			return nil, nil, err
		}
		snap := s.Snapshot()
		return &GestureResponse{Snapshot: &snap}, nil, nil

	case "move":
		fb, err := s.PointerMove(req.DX, req.DY)
		if err != nil {
			return nil, nil, err
		}
		return &GestureResponse{Feedback: &fb}, nil, nil

	case "up":
		res, commit, err := s.PointerUp(req.DX, req.DY, req.VX, req.VY)
		if err != nil {
			return nil, nil, err
		}
		resp := &GestureResponse{
			Resolution: &ResolutionResponse{
				Decision: res.Decision.String(),
				DX:       res.DX,
				DY:       res.DY,
				Next:     res.Next.String(),
			},
		}
		if commit != nil {
			resp.Commit = &CommitResponse{
				TargetID: commit.TargetID,
				Kind:     string(commit.Kind),
				Status:   CommitPending,
			}
		}
		snap := s.Snapshot()
		resp.Snapshot = &snap
		return resp, commit, nil
	}
	return nil, nil, ErrUnknownPhase
}

// AwaitCommit waits up to wait for the decision write to finish.
func AwaitCommit(ctx context.Context, commit *discovery.Commit, wait time.Duration) *CommitResponse {
	resp := &CommitResponse{
		TargetID: commit.TargetID,
		Kind:     string(commit.Kind),
		Status:   CommitPending,
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case result := <-commit.Done:
		if result.Err != nil {
			resp.Status = CommitFailed
			resp.Message = discovery.RecordFailedMessage
			return resp
		}
		resp.Status = CommitSaved
		resp.Outcome = result.Outcome
	case <-timer.C:
	case <-ctx.Done():
	}
	return resp
}

func (r PhotoRequest) zone() (gesture.Zone, error) {
	switch {
	case r.Zone == "left":
		return gesture.ZoneLeft, nil
	case r.Zone == "right":
		return gesture.ZoneRight, nil
	case r.X != nil && r.CardWidth > 0:
		return gesture.ZoneAt(*r.X, r.CardWidth), nil
	}
	return 0, fmt.Errorf("%w: zone or x with card_width is required", ErrBadMessage)
}
