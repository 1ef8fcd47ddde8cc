package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/core/service"
	"github.com/99minutos/access-control/internal/infrastructure/camera"
	"github.com/99minutos/access-control/internal/infrastructure/capture"
)

// Snapshotter grabs a single frame from the camera.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// MediaHandler serves stored captures and live camera snapshots.
type MediaHandler struct {
	captures ports.CaptureStore
	camera   Snapshotter
	now      func() time.Time
	log      zerolog.Logger
}

// NewMediaHandler returns a MediaHandler. captures may be nil when saving is
// disabled.
func NewMediaHandler(captures ports.CaptureStore, cam Snapshotter, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{captures: captures, camera: cam, now: time.Now, log: log}
}

// Capture handles GET /admin/captures/*.
//
// @Summary      Download a stored capture
// @Tags         admin
// @Produce      image/jpeg
// @Security     BearerAuth
// @Param        key  path  string  true  "Capture key"
// @Success      200
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/captures/{key} [get]
func (h *MediaHandler) Capture(c echo.Context) error {
	if h.captures == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "captures are disabled"})
	}
	key, err := capture.CleanKey(c.Param("*"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid capture key"})
	}

	rc, err := h.captures.Open(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "capture not found"})
		}
		return err
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, contentType(key), rc)
}

// CameraSnapshot handles GET /admin/camera/snapshot.
//
// @Summary      Current camera frame
// @Tags         admin
// @Produce      image/jpeg
// @Security     BearerAuth
// @Success      200
// @Failure      502  {object}  cameraErrorResponse
// @Failure      503  {object}  cameraErrorResponse
// @Failure      504  {object}  cameraErrorResponse
// @Router       /admin/camera/snapshot [get]
func (h *MediaHandler) CameraSnapshot(c echo.Context) error {
	frame, err := h.camera.Snapshot(c.Request().Context())
	if err != nil {
		status, reason := cameraError(err)
		h.log.Warn().Err(err).Str("reason", reason).Msg("camera snapshot failed")
		return c.JSON(status, cameraErrorResponse{Status: "error", Reason: reason})
	}

	if h.captures != nil {
		key := "snapshots/" + service.CaptureName(h.now(), frame)
		if ref, err := h.captures.Save(c.Request().Context(), key, frame); err != nil {
			h.log.Warn().Err(err).Msg("failed to store camera snapshot")
		} else {
			c.Response().Header().Set("X-Capture-Ref", ref)
		}
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/jpeg", frame)
}

func cameraError(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrNotConfigured):
		return http.StatusServiceUnavailable, "camera_not_configured"
	case errors.Is(err, camera.ErrNoJPEG):
		return http.StatusGatewayTimeout, "no_jpeg_found"
	default:
		return http.StatusBadGateway, "upstream_connect"
	}
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}
