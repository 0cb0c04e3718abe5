package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/usecase"
)

// SessionHandler exposes the operator-facing REST surface over live sessions.
type SessionHandler struct {
	registry    *usecase.SessionRegistry
	subs        *usecase.SubscriptionService
	broadcaster *usecase.Broadcaster
	logger      *zap.Logger
}

// NewSessionHandler builds the session handler.
func NewSessionHandler(registry *usecase.SessionRegistry, subs *usecase.SubscriptionService, broadcaster *usecase.Broadcaster, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{registry: registry, subs: subs, broadcaster: broadcaster, logger: log}
}

// RegisterRoutes wires the session endpoints onto the group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListSessions)
	rg.GET("/:id", h.GetSession)
	rg.GET("/:id/subscriptions/:packageName", h.Subscriptions)
	rg.GET("/:id/subscriptions/:packageName/history", h.History)
	rg.POST("/:id/datetime", h.PushDatetime)
}

// ListSessions returns a summary of every live session.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.registry.Sessions()

	response := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		response = append(response, summarize(sess))
	}
	sort.Slice(response, func(i, j int) bool { return response[i].SessionID < response[j].SessionID })

	c.JSON(http.StatusOK, response)
}

// GetSession returns one session summary by id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	c.JSON(http.StatusOK, summarize(sess))
}

// Subscriptions returns the streams one app currently holds.
func (h *SessionHandler) Subscriptions(c *gin.Context) {
	sessionID := c.Param("id")
	packageName := c.Param("packageName")

	if _, err := h.registry.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	c.JSON(http.StatusOK, SubscriptionsResponse{
		SessionID:   sessionID,
		PackageName: packageName,
		Streams:     h.subs.AppSubscriptions(sessionID, packageName),
	})
}

// History returns the recorded subscription changes for one app.
func (h *SessionHandler) History(c *gin.Context) {
	sessionID := c.Param("id")
	packageName := c.Param("packageName")

	if _, err := h.registry.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	c.JSON(http.StatusOK, SubscriptionHistoryResponse{
		SessionID:   sessionID,
		PackageName: packageName,
		History:     h.subs.History(sessionID, packageName),
	})
}

// PushDatetime stores the user-visible datetime on the session and notifies
// subscribed apps.
func (h *SessionHandler) PushDatetime(c *gin.Context) {
	sess, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	var req DatetimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "datetime is required"})
		return
	}

	delivered := h.broadcaster.PublishDatetime(sess, req.Datetime)
	c.JSON(http.StatusOK, DatetimeResponse{Delivered: delivered})
}

func summarize(sess *usecase.Session) SessionResponse {
	device := sess.Device()
	return SessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		StartedAt: sess.StartedAt,
		AppCount:  len(sess.AppConnections()),
		HasDevice: device != nil && device.IsOpen(),
	}
}
