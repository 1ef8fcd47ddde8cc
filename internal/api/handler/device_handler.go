package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/core/service"
	"github.com/99minutos/access-control/internal/metrics"
)

// DeviceHandler serves the endpoints called by door controllers. Responses
// always use the verdict envelope; Go errors never reach the client.
type DeviceHandler struct {
	recognition ports.RecognitionService
	credentials ports.CredentialService
	audit       ports.AuditRecorder
	log         zerolog.Logger
}

func NewDeviceHandler(
	recognition ports.RecognitionService,
	credentials ports.CredentialService,
	audit ports.AuditRecorder,
	log zerolog.Logger,
) *DeviceHandler {
	return &DeviceHandler{recognition: recognition, credentials: credentials, audit: audit, log: log}
}

// Health handles GET /api/health.
//
// @Summary      Device health check
// @Tags         device
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  deviceHealthResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/health [get]
func (h *DeviceHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, deviceHealthResponse{Status: "ok", Known: h.recognition.Known()})
}

// Recognize handles POST /api/recognize. The body is the raw image.
//
// @Summary      Decide on a face image
// @Tags         device
// @Accept       octet-stream
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  verdictResponse
// @Failure      400  {object}  verdictResponse
// @Failure      401  {object}  verdictResponse
// @Failure      413  {object}  verdictResponse
// @Failure      500  {object}  verdictResponse
// @Router       /api/recognize [post]
func (h *DeviceHandler) Recognize(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.unreadable(c, metrics.ChannelFace, err)
	}

	v, err := h.recognition.Recognize(c.Request().Context(), raw)
	if err != nil {
		h.log.Error().Err(err).Msg("recognition failed")
	}
	return h.respond(c, v)
}

// RFID handles POST /api/rfid.
//
// @Summary      Decide on a scanned credential
// @Tags         device
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        body  body      rfidRequest  true  "Scanned uid"
// @Success      200   {object}  verdictResponse
// @Failure      400   {object}  verdictResponse
// @Failure      401   {object}  verdictResponse
// @Failure      500   {object}  verdictResponse
// @Router       /api/rfid [post]
func (h *DeviceHandler) RFID(c echo.Context) error {
	var req rfidRequest
	if err := c.Bind(&req); err != nil {
		// An unreadable body resolves as an empty uid.
		req = rfidRequest{}
	}

	v, err := h.credentials.Resolve(c.Request().Context(), string(req.UID))
	if err != nil {
		h.log.Error().Err(err).Msg("credential resolution failed")
		v = domain.Denied(domain.ReasonServerError)
	}
	return h.respond(c, v)
}

// RejectHealth answers a health probe that failed the device secret.
func (h *DeviceHandler) RejectHealth(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"status": "unauthorized"})
}

// RejectRecognize records and answers a face request that failed the device secret.
func (h *DeviceHandler) RejectRecognize(c echo.Context) error {
	return h.reject(c, metrics.ChannelFace)
}

// RejectRFID records and answers a credential request that failed the device secret.
func (h *DeviceHandler) RejectRFID(c echo.Context) error {
	return h.reject(c, metrics.ChannelCredential)
}

func (h *DeviceHandler) reject(c echo.Context, channel string) error {
	service.RecordRejection(c.Request().Context(), h.audit, channel)
	return c.JSON(http.StatusUnauthorized, newVerdictResponse(domain.Denied(domain.ReasonInvalidCredential)))
}

// PayloadLimit caps the request body at limit. A request refused for its
// size is answered and logged like any other denial on channel.
func (h *DeviceHandler) PayloadLimit(limit, channel string) echo.MiddlewareFunc {
	bodyLimit := echomiddleware.BodyLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			if err == nil || c.Response().Committed {
				return err
			}
			return h.unreadable(c, channel, err)
		}
	}
}

// unreadable answers a request whose body could not be read. Echo HTTP
// errors keep their status; anything else is a 500.
func (h *DeviceHandler) unreadable(c echo.Context, channel string, err error) error {
	h.log.Warn().Err(err).Str("channel", channel).Msg("request body unreadable")
	v := domain.Denied(domain.ReasonServerError)
	service.RecordDenial(c.Request().Context(), h.audit, channel, v.Reason)

	status := verdictStatus(v)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	return c.JSON(status, newVerdictResponse(v))
}

func (h *DeviceHandler) respond(c echo.Context, v domain.Verdict) error {
	return c.JSON(verdictStatus(v), newVerdictResponse(v))
}

// verdictStatus maps a verdict to its HTTP status. Domain denials are 200.
func verdictStatus(v domain.Verdict) int {
	if v.IsGranted() {
		return http.StatusOK
	}
	switch v.Reason {
	case domain.ReasonEmptyPayload, domain.ReasonEmptyUID:
		return http.StatusBadRequest
	case domain.ReasonServerError:
		return http.StatusInternalServerError
	case domain.ReasonInvalidCredential:
		return http.StatusUnauthorized
	default:
		return http.StatusOK
	}
}
