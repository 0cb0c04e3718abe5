package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/infra/config"
	"github.com/arklim/wearable-stream-broker/internal/infra/logger"
	"github.com/arklim/wearable-stream-broker/internal/infra/ws"
	"github.com/arklim/wearable-stream-broker/internal/usecase"
)

// appInbound is the union of app→cloud message shapes; Type selects which
// fields are meaningful.
type appInbound struct {
	Type          string                 `json:"type"`
	Subscriptions []domain.StreamRequest `json:"subscriptions"`
	SaveToGallery bool                   `json:"saveToGallery"`
	RtmpURL       string                 `json:"rtmpUrl"`
	Video         map[string]any         `json:"video"`
	Audio         map[string]any         `json:"audio"`
	Accuracy      domain.RateTier        `json:"accuracy"`
	CorrelationID string                 `json:"correlationId"`
}

type websocketError struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AppSocketHandler serves the app-facing WebSocket endpoint.
type AppSocketHandler struct {
	registry *usecase.SessionRegistry
	subs     *usecase.SubscriptionService
	location *usecase.LocationService
	photos   *usecase.PhotoService
	streams  *usecase.StreamService
	logger   *zap.Logger
	cfg      config.BrokerSettings
	upgrader websocket.Upgrader
}

// NewAppSocketHandler builds the app socket handler.
func NewAppSocketHandler(
	registry *usecase.SessionRegistry,
	subs *usecase.SubscriptionService,
	location *usecase.LocationService,
	photos *usecase.PhotoService,
	streams *usecase.StreamService,
	cfg config.BrokerSettings,
	log *zap.Logger,
) *AppSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AppSocketHandler{
		registry: registry,
		subs:     subs,
		location: location,
		photos:   photos,
		streams:  streams,
		logger:   log,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and runs the app read loop until the peer
// disconnects. Apps join the session created by their user's device; there is
// nothing to attach to before the device connects.
func (h *AppSocketHandler) Handle(c *gin.Context) {
	userID := c.Query("userId")
	packageName := c.Query("packageName")
	if userID == "" || packageName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId and packageName are required"})
		return
	}

	sess, err := h.registry.GetByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active session for user"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("app websocket upgrade failed",
			zap.String("user_id", logger.MaskUserID(userID)),
			zap.String("package_name", packageName),
			zap.Error(err),
		)
		return
	}

	conn := ws.NewConn(raw, h.cfg.WriteTimeout)
	sess.RegisterApp(packageName, conn)

	h.logger.Info("app connected",
		zap.String("session_id", sess.ID),
		zap.String("user_id", logger.MaskUserID(userID)),
		zap.String("package_name", packageName),
	)

	h.readLoop(c, raw, conn, sess, packageName)

	conn.MarkClosed()
	sess.RemoveApp(packageName)
	_ = raw.Close()

	h.logger.Info("app disconnected",
		zap.String("session_id", sess.ID),
		zap.String("package_name", packageName),
	)
}

func (h *AppSocketHandler) readLoop(c *gin.Context, raw *websocket.Conn, conn *ws.Conn, sess *usecase.Session, packageName string) {
	if h.cfg.ReadLimitBytes > 0 {
		raw.SetReadLimit(h.cfg.ReadLimitBytes)
	}
	if h.cfg.PongTimeout > 0 {
		_ = raw.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		raw.SetPongHandler(func(string) error {
			return raw.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		})
	}

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("app websocket read failed",
					zap.String("session_id", sess.ID),
					zap.String("package_name", packageName),
					zap.Error(err),
				)
			}
			return
		}

		var msg appInbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}

		h.dispatch(c, conn, sess, packageName, msg)
	}
}

func (h *AppSocketHandler) dispatch(c *gin.Context, conn *ws.Conn, sess *usecase.Session, packageName string, msg appInbound) {
	ctx := c.Request.Context()

	switch msg.Type {
	case domain.MessageTypeSubscriptionUpdate:
		if err := h.subs.UpdateSubscriptions(ctx, sess, packageName, msg.Subscriptions); err != nil {
			if errors.Is(err, usecase.ErrUnknownStream) {
				h.sendError(conn, err.Error())
				return
			}
			h.logger.Error("subscription update failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
			h.sendError(conn, "subscription update failed")
		}

	case domain.MessageTypePhotoRequest:
		// Photo requests block on the device round trip; resolve off the
		// read loop so other messages keep flowing.
		go func() {
			result, err := h.photos.RequestPhoto(ctx, sess, packageName, msg.SaveToGallery)
			if err != nil {
				h.sendError(conn, err.Error())
				return
			}
			response := domain.PhotoResponseMessage{
				Type:      domain.MessageTypePhotoResponse,
				RequestID: result.RequestID,
				PhotoURL:  result.PhotoURL,
				Timestamp: time.Now().UTC(),
			}
			if err := conn.Send(response); err != nil {
				h.logger.Warn("photo response delivery failed",
					zap.String("session_id", sess.ID),
					zap.String("package_name", packageName),
					zap.Error(err),
				)
			}
		}()

	case domain.MessageTypeRtmpStreamRequest:
		streamID, err := h.streams.StartStream(ctx, sess, packageName, msg.RtmpURL, msg.Video, msg.Audio)
		if err != nil {
			h.sendError(conn, err.Error())
			return
		}
		status := domain.StreamStatus{
			StreamID:    streamID,
			PackageName: packageName,
			Status:      domain.StreamStatusInitializing,
			Timestamp:   time.Now().UTC(),
		}
		if err := conn.Send(streamStatusMessage(status)); err != nil {
			h.logger.Warn("stream status delivery failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
		}

	case domain.MessageTypeRtmpStreamStop:
		if err := h.streams.StopStream(ctx, sess, packageName); err != nil {
			h.sendError(conn, err.Error())
		}

	case domain.MessageTypeLocationPollRequest:
		sample, err := h.location.PollLocation(ctx, sess, msg.Accuracy, msg.CorrelationID)
		if err != nil {
			h.sendError(conn, err.Error())
			return
		}
		if sample == nil {
			// Hardware poll dispatched; the fix arrives as a tagged
			// location event once the device answers.
			return
		}
		tagged := *sample
		tagged.CorrelationID = msg.CorrelationID
		envelope := domain.DataStreamMessage{
			Type:       domain.MessageTypeDataStream,
			StreamType: string(domain.StreamLocationUpdate),
			SessionID:  sess.ID,
			Data:       tagged,
			Timestamp:  time.Now().UTC(),
		}
		if err := conn.Send(envelope); err != nil {
			h.logger.Warn("poll response delivery failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
		}

	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *AppSocketHandler) sendError(conn *ws.Conn, message string) {
	err := websocketError{
		Type:      domain.MessageTypeWebsocketError,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if sendErr := conn.Send(err); sendErr != nil {
		h.logger.Debug("error notice delivery failed", zap.Error(sendErr))
	}
}

type streamStatusEnvelope struct {
	Type         string    `json:"type"`
	StreamID     string    `json:"streamId"`
	Status       string    `json:"status"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func streamStatusMessage(status domain.StreamStatus) streamStatusEnvelope {
	return streamStatusEnvelope{
		Type:         domain.MessageTypeRtmpStreamStatus,
		StreamID:     status.StreamID,
		Status:       status.Status,
		ErrorDetails: status.ErrorDetails,
		Timestamp:    status.Timestamp,
	}
}
