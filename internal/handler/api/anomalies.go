package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	"FlockWatch/internal/service/alertfeed"
	icache "FlockWatch/internal/service/cache"
	"FlockWatch/internal/service/metrics"
	"FlockWatch/internal/service/ratelimit"
	"FlockWatch/internal/usecase"
	pkgcache "FlockWatch/pkg/cache"
	xhttp "FlockWatch/pkg/http"
	xlogger "FlockWatch/pkg/logger"
)

const detectCacheTTL = 30 * time.Second

// AnomaliesHandler implements the Echo-based detection API.
type AnomaliesHandler struct {
	logger   *xlogger.Logger
	detect   *usecase.DetectionUseCase
	feedback *usecase.FeedbackUseCase
	hub      *alertfeed.Hub
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
}

func NewAnomaliesHandler(logger *xlogger.Logger, detect *usecase.DetectionUseCase, feedback *usecase.FeedbackUseCase, hub *alertfeed.Hub) *AnomaliesHandler {
	metrics.Register()
	return &AnomaliesHandler{
		logger:   logger,
		detect:   detect,
		feedback: feedback,
		hub:      hub,
		rl:       ratelimit.New(),
	}
}

// SetCache injects a response cache for the detection endpoints.
func (h *AnomaliesHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *AnomaliesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/anomalies")
	g.GET("/room/:room_id", h.DetectRoom)
	g.GET("/farm/:farm_id", h.DetectFarm)
	g.GET("/:id", h.GetAnomaly)
	g.POST("/feedback", h.Feedback)
	if h.hub != nil {
		e.GET("/ws/anomalies", h.AlertFeed)
	}
}

// DetectRoom runs the ensemble over every metric of one room.
// GET /api/anomalies/room/:room_id?days=7&sensitivity=0.8
func (h *AnomaliesHandler) DetectRoom(c echo.Context) error {
	start := time.Now()
	defer func() {
		metrics.Latency.WithLabelValues("http_detect_room").Observe(time.Since(start).Seconds())
	}()

	req := &models.DetectRoomRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":detect_room", 3, 1) {
		h.logger.Warn("anomalies.room rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, rateLimitedError())
	}

	cacheKey := pkgcache.ComposeKey("anomalies:room", req.RoomID, req.Days, req.Sensitivity)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	res, err := h.detect.DetectRoom(c.Request().Context(), *req)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("http_detect_room").Inc()
		h.logger.Error("anomalies.room usecase error",
			xlogger.String("room_id", req.RoomID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDetectionError(err))
	}

	h.store(cacheKey, res)
	return xhttp.SuccessResponse(c, res)
}

// DetectFarm fans out over the farm's rooms and aggregates counts.
// GET /api/anomalies/farm/:farm_id?days=7&severity=high
func (h *AnomaliesHandler) DetectFarm(c echo.Context) error {
	start := time.Now()
	defer func() {
		metrics.Latency.WithLabelValues("http_detect_farm").Observe(time.Since(start).Seconds())
	}()

	req := &models.DetectFarmRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":detect_farm", 2, 0.5) {
		h.logger.Warn("anomalies.farm rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, rateLimitedError())
	}

	cacheKey := pkgcache.ComposeKey("anomalies:farm", req.FarmID, req.Days, req.Severity)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	res, err := h.detect.DetectFarm(c.Request().Context(), *req)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("http_detect_farm").Inc()
		h.logger.Error("anomalies.farm usecase error",
			xlogger.String("farm_id", req.FarmID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDetectionError(err))
	}

	h.store(cacheKey, res)
	return xhttp.SuccessResponse(c, res)
}

// GetAnomaly returns one persisted record by ID.
// GET /api/anomalies/:id
func (h *AnomaliesHandler) GetAnomaly(c echo.Context) error {
	req := &models.GetAnomalyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rec, err := h.detect.GetAnomaly(c.Request().Context(), req.ID)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			h.logger.Error("anomalies.get usecase error",
				xlogger.String("anomaly_id", req.ID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapDetectionError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

// Feedback records a human confirm/dismiss decision.
// POST /api/anomalies/feedback {"anomaly_id": ..., "is_real": ..., "notes": ...}
func (h *AnomaliesHandler) Feedback(c echo.Context) error {
	req := &models.FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rec, err := h.feedback.RecordFeedback(c.Request().Context(), *req)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			metrics.ErrorsTotal.WithLabelValues("http_feedback").Inc()
			h.logger.Error("anomalies.feedback usecase error",
				xlogger.String("anomaly_id", req.AnomalyID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapDetectionError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

// AlertFeed upgrades the connection and streams anomalies as they are found.
// GET /ws/anomalies
func (h *AnomaliesHandler) AlertFeed(c echo.Context) error {
	return h.hub.ServeWS(c.Response(), c.Request())
}

func (h *AnomaliesHandler) cached(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.logger.Warn("anomalies cache_get_error", xlogger.Error(err))
		return nil, false
	}
	if ok {
		h.logger.Debug("anomalies cache_hit", xlogger.String("key", key))
	}
	return b, ok
}

// store caches the full response envelope so cache hits are byte-identical
// to a fresh SuccessResponse.
func (h *AnomaliesHandler) store(key string, res interface{}) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    res,
	})
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(key, b, detectCacheTTL); err != nil {
		h.logger.Warn("anomalies cache_set_error", xlogger.Error(err))
	}
}

func rateLimitedError() *xhttp.AppError {
	return xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests)
}

// mapDetectionError translates domain errors to transport-level AppErrors.
func mapDetectionError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("anomaly record not found").WithError(err)
	case errors.Is(err, domrepo.ErrNoData):
		return xhttp.NewAppError("ERR_NO_DATA", "", "no sensor data for requested period", http.StatusNotFound).WithError(err)
	default:
		return xhttp.InternalError("detection failed").WithError(err)
	}
}
