package handlers

import (
	"encoding/json"
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

// deviceTypeProbe extracts the discriminator before the full decode.
type deviceTypeProbe struct {
	Type string `json:"type"`
}

type deviceLocationUpdate struct {
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Accuracy      *float64  `json:"accuracy"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

type deviceDatetimeUpdate struct {
	Datetime string `json:"datetime"`
}

// GlassesSocketHandler serves the device-facing WebSocket endpoint. A device
// connection is what brings a session to life; losing it tears the session
// down.
type GlassesSocketHandler struct {
	registry    *usecase.SessionRegistry
	location    *usecase.LocationService
	photos      *usecase.PhotoService
	streams     *usecase.StreamService
	broadcaster *usecase.Broadcaster
	logger      *zap.Logger
	cfg         config.BrokerSettings
	upgrader    websocket.Upgrader
}

// NewGlassesSocketHandler builds the device socket handler.
func NewGlassesSocketHandler(
	registry *usecase.SessionRegistry,
	location *usecase.LocationService,
	photos *usecase.PhotoService,
	streams *usecase.StreamService,
	broadcaster *usecase.Broadcaster,
	cfg config.BrokerSettings,
	log *zap.Logger,
) *GlassesSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GlassesSocketHandler{
		registry:    registry,
		location:    location,
		photos:      photos,
		streams:     streams,
		broadcaster: broadcaster,
		logger:      log,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the device connection, attaches it to the user's session
// (creating one if needed) and pumps device events until disconnect.
func (h *GlassesSocketHandler) Handle(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("device websocket upgrade failed",
			zap.String("user_id", logger.MaskUserID(userID)),
			zap.Error(err),
		)
		return
	}

	ctx := c.Request.Context()
	conn := ws.NewConn(raw, h.cfg.WriteTimeout)

	// Reattach to a live session when the device merely reconnected; a
	// session with an open device belongs to another connection and gets
	// replaced wholesale.
	sess, err := h.registry.GetByUser(userID)
	if err != nil || (sess.Device() != nil && sess.Device().IsOpen()) {
		sess = h.registry.StartSession(ctx, userID)
	}
	sess.SetDevice(conn)

	h.logger.Info("device connected",
		zap.String("session_id", sess.ID),
		zap.String("user_id", logger.MaskUserID(userID)),
	)

	h.readLoop(c, raw, sess)

	conn.MarkClosed()
	h.registry.EndSession(ctx, sess.ID, "device_disconnected")

	h.logger.Info("device disconnected",
		zap.String("session_id", sess.ID),
		zap.String("user_id", logger.MaskUserID(userID)),
	)
}

func (h *GlassesSocketHandler) readLoop(c *gin.Context, raw *websocket.Conn, sess *usecase.Session) {
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
				h.logger.Warn("device websocket read failed",
					zap.String("session_id", sess.ID),
					zap.Error(err),
				)
			}
			return
		}

		var probe deviceTypeProbe
		if err := json.Unmarshal(payload, &probe); err != nil {
			h.logger.Debug("malformed device message", zap.String("session_id", sess.ID))
			continue
		}

		h.dispatch(c, sess, probe.Type, payload)
	}
}

func (h *GlassesSocketHandler) dispatch(c *gin.Context, sess *usecase.Session, msgType string, payload []byte) {
	ctx := c.Request.Context()

	switch msgType {
	case string(domain.StreamLocationUpdate):
		var update deviceLocationUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			return
		}
		sample := domain.LocationSample{
			Lat:           update.Lat,
			Lng:           update.Lng,
			Accuracy:      update.Accuracy,
			CorrelationID: update.CorrelationID,
			Timestamp:     update.Timestamp,
		}
		h.location.RecordLocation(ctx, sess, sample)
		if sample.CorrelationID != "" {
			// Poll fulfillment: the requesting app may not subscribe to
			// location_update, so the tagged sample goes to every app.
			h.broadcaster.PublishToAll(sess, string(domain.StreamLocationUpdate), sample)
		} else {
			h.broadcaster.Publish(sess, string(domain.StreamLocationUpdate), sample)
		}

	case domain.MessageTypePhotoResponse:
		var result domain.PhotoResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return
		}
		if !h.photos.HandlePhotoResponse(result) {
			h.logger.Debug("photo response without pending request",
				zap.String("session_id", sess.ID),
				zap.String("request_id", result.RequestID),
			)
		}

	case domain.MessageTypeRtmpStreamStatus:
		var status domain.StreamStatus
		if err := json.Unmarshal(payload, &status); err != nil {
			return
		}
		normalized := h.streams.HandleStreamStatus(ctx, sess, status)
		h.deliverStreamStatus(sess, normalized)

	case domain.CustomActionUpdateDatetime:
		var update deviceDatetimeUpdate
		if err := json.Unmarshal(payload, &update); err != nil || update.Datetime == "" {
			return
		}
		h.broadcaster.PublishDatetime(sess, update.Datetime)

	default:
		if !domain.IsValidSubscription(msgType) {
			h.logger.Debug("unrecognized device message",
				zap.String("session_id", sess.ID),
				zap.String("type", msgType),
			)
			return
		}
		var data map[string]any
		if err := json.Unmarshal(payload, &data); err != nil {
			return
		}
		h.broadcaster.Publish(sess, msgType, data)
	}
}

// deliverStreamStatus routes a status to the app that owns the stream and to
// any apps watching the status stream.
func (h *GlassesSocketHandler) deliverStreamStatus(sess *usecase.Session, status domain.StreamStatus) {
	if status.PackageName != "" {
		if conn := sess.AppConnection(status.PackageName); conn != nil && conn.IsOpen() {
			if err := conn.Send(streamStatusMessage(status)); err != nil {
				h.logger.Warn("stream status delivery failed",
					zap.String("session_id", sess.ID),
					zap.String("package_name", status.PackageName),
					zap.Error(err),
				)
			}
		}
	}

	h.broadcaster.Publish(sess, string(domain.StreamRtmpStreamStatus), status)
}
