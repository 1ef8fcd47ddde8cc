package handler

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

// errorResponse is the standard error envelope returned on admin 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Device types ---

// verdictResponse is the body of every device decision.
type verdictResponse struct {
	Status  string   `json:"status"`
	User    string   `json:"user,omitempty"`
	Dist    *float64 `json:"dist,omitempty"`
	MinDist *float64 `json:"min_dist,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type deviceHealthResponse struct {
	Status string `json:"status"`
	Known  int    `json:"known"`
}

// uidValue accepts the uid as a JSON string or number.
type uidValue string

func (u *uidValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = uidValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*u = uidValue(n.String())
	return nil
}

type rfidRequest struct {
	UID uidValue `json:"uid"`
}

// --- Admin types ---

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type enrollRequest struct {
	Name          string      `json:"name"           validate:"required,max=128"`
	CredentialUID string      `json:"credential_uid" validate:"omitempty,max=64"`
	Vectors       [][]float64 `json:"vectors"        validate:"omitempty,dive,len=128"`
}

type bindCredentialRequest struct {
	UID    string `json:"uid"     validate:"required,max=64"`
	UserID string `json:"user_id" validate:"required"`
}

type usersResponse struct {
	Users []domain.UserSummary `json:"users"`
}

type credentialsResponse struct {
	Credentials []domain.Credential `json:"credentials"`
}

type logsResponse struct {
	Logs []domain.AccessLogEntry `json:"logs"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type lastTokenResponse struct {
	UID   *string  `json:"uid"`
	Fresh bool     `json:"fresh"`
	Age   *float64 `json:"age"`
}

type cameraErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// --- Mappers ---

func newVerdictResponse(v domain.Verdict) verdictResponse {
	resp := verdictResponse{Status: string(v.Outcome)}
	if v.IsGranted() {
		resp.User = v.UserName
		resp.Dist = finite(v.Distance)
		return resp
	}
	resp.Reason = string(v.Reason)
	if v.Reason == domain.ReasonNoMatch {
		resp.MinDist = finite(v.Distance)
	}
	return resp
}

// finite drops NaN and infinities, which JSON cannot carry.
func finite(d *float64) *float64 {
	if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) {
		return nil
	}
	return d
}

func newLastTokenResponse(t domain.LastSeenToken) lastTokenResponse {
	if t.UID == "" {
		return lastTokenResponse{}
	}
	uid := t.UID
	age := t.Age.Seconds()
	return lastTokenResponse{UID: &uid, Fresh: t.Fresh, Age: &age}
}

func toVectors(in [][]float64) []domain.Vector {
	out := make([]domain.Vector, 0, len(in))
	for _, v := range in {
		out = append(out, domain.Vector(v))
	}
	return out
}

func toEnrollInput(req enrollRequest) ports.EnrollInput {
	return ports.EnrollInput{
		Name:          req.Name,
		Vectors:       toVectors(req.Vectors),
		CredentialUID: req.CredentialUID,
	}
}

// parseLimit reads the logs limit query parameter. Empty means service default.
func parseLimit(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
