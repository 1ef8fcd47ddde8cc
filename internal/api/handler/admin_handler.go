package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/access-control/internal/core/ports"
)

const maxEnrollImages = 32

// AdminHandler serves the administrative views and mutations.
type AdminHandler struct {
	enrollment ports.EnrollmentService
	dashboard  ports.DashboardService
	tracker    ports.TokenTracker
}

func NewAdminHandler(enrollment ports.EnrollmentService, dashboard ports.DashboardService, tracker ports.TokenTracker) *AdminHandler {
	return &AdminHandler{enrollment: enrollment, dashboard: dashboard, tracker: tracker}
}

// Stats handles GET /admin/stats.
//
// @Summary      Dashboard counters
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Stats
// @Failure      401  {object}  errorResponse
// @Router       /admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.dashboard.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// Logs handles GET /admin/logs.
//
// @Summary      Recent access log entries, newest first
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum entries (default 200, max 1000)"
// @Success      200    {object}  logsResponse
// @Failure      400    {object}  errorResponse
// @Router       /admin/logs [get]
func (h *AdminHandler) Logs(c echo.Context) error {
	limit, ok := parseLimit(c.QueryParam("limit"))
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
	}
	logs, err := h.dashboard.RecentLogs(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logsResponse{Logs: logs})
}

// ListUsers handles GET /admin/users.
//
// @Summary      List enrolled users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  usersResponse
// @Router       /admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.enrollment.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, usersResponse{Users: users})
}

// CreateUser handles POST /admin/users. It accepts a multipart form with
// name, rfid_uid and files[] images, or a JSON body with precomputed vectors.
//
// @Summary      Enroll a user
// @Tags         admin
// @Accept       mpfd,json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      enrollRequest  false  "JSON enrollment"
// @Success      201   {object}  ports.EnrollResult
// @Failure      400   {object}  errorResponse
// @Router       /admin/users [post]
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var in ports.EnrollInput
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		parsed, err := enrollFromForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		in = parsed
	} else {
		var req enrollRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		}
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		in = toEnrollInput(req)
	}

	res, err := h.enrollment.EnrollUser(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// DeleteUser handles DELETE /admin/users/:id.
//
// @Summary      Delete a user, its embeddings and credential bindings
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  ports.MutationResult
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	res, err := h.enrollment.DeleteUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListCredentials handles GET /admin/credentials.
//
// @Summary      List credentials and their bindings
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  credentialsResponse
// @Router       /admin/credentials [get]
func (h *AdminHandler) ListCredentials(c echo.Context) error {
	creds, err := h.enrollment.ListCredentials(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, credentialsResponse{Credentials: creds})
}

// BindCredential handles POST /admin/credentials.
//
// @Summary      Bind a credential uid to a user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      bindCredentialRequest  true  "Binding"
// @Success      201   {object}  okResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /admin/credentials [post]
func (h *AdminHandler) BindCredential(c echo.Context) error {
	var req bindCredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if err := h.enrollment.BindCredential(c.Request().Context(), req.UID, req.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, okResponse{OK: true})
}

// DeleteCredential handles DELETE /admin/credentials/:id.
//
// @Summary      Delete a credential
// @Tags         admin
// @Security     BearerAuth
// @Param        id  path  string  true  "Credential id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /admin/credentials/{id} [delete]
func (h *AdminHandler) DeleteCredential(c echo.Context) error {
	if err := h.enrollment.DeleteCredential(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// LastToken handles GET /admin/rfid/last.
//
// @Summary      Most recently scanned credential
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  lastTokenResponse
// @Router       /admin/rfid/last [get]
func (h *AdminHandler) LastToken(c echo.Context) error {
	last, err := h.tracker.Peek(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newLastTokenResponse(last))
}

// ClearToken handles POST /admin/rfid/clear.
//
// @Summary      Forget the last scanned credential
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  okResponse
// @Router       /admin/rfid/clear [post]
func (h *AdminHandler) ClearToken(c echo.Context) error {
	if err := h.tracker.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}

func enrollFromForm(c echo.Context) (ports.EnrollInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return ports.EnrollInput{}, errors.New("invalid multipart form")
	}
	in := ports.EnrollInput{
		Name:          formValue(form, "name"),
		CredentialUID: formValue(form, "rfid_uid"),
	}
	files := append(form.File["files[]"], form.File["files"]...)
	if len(files) > maxEnrollImages {
		return ports.EnrollInput{}, fmt.Errorf("at most %d images per enrollment", maxEnrollImages)
	}
	for _, fh := range files {
		data, err := readFormFile(fh)
		if err != nil {
			return ports.EnrollInput{}, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		in.Images = append(in.Images, ports.EnrollImage{Filename: fh.Filename, Data: data})
	}
	return in, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
