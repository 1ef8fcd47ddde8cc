package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubRecognition struct {
	verdict domain.Verdict
	err     error
	got     []byte
	known   int
}

func (s *stubRecognition) Recognize(_ context.Context, raw []byte) (domain.Verdict, error) {
	s.got = raw
	return s.verdict, s.err
}

func (s *stubRecognition) Known() int { return s.known }

type stubCredentials struct {
	verdict domain.Verdict
	err     error
	got     string
	calls   int
}

func (s *stubCredentials) Resolve(_ context.Context, uid string) (domain.Verdict, error) {
	s.calls++
	s.got = uid
	if domain.NormalizeUID(uid) == "" {
		return domain.Denied(domain.ReasonEmptyUID), nil
	}
	return s.verdict, s.err
}

type stubAudit struct {
	entries []domain.AccessLogEntry
}

func (s *stubAudit) Record(_ context.Context, e domain.AccessLogEntry) {
	s.entries = append(s.entries, e)
}

func newDevice(rec *stubRecognition, creds *stubCredentials, audit *stubAudit) *DeviceHandler {
	return NewDeviceHandler(rec, creds, audit, zerolog.Nop())
}

func serve(t *testing.T, h echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDeviceHandler_Health(t *testing.T) {
	h := newDevice(&stubRecognition{known: 7}, &stubCredentials{}, &stubAudit{})
	rec, body := serve(t, h.Health, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["known"] != float64(7) {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
}

func TestDeviceHandler_Recognize_Granted(t *testing.T) {
	stub := &stubRecognition{verdict: domain.Granted("1", "alice", "").WithDistance(0.31)}
	h := newDevice(stub, &stubCredentials{}, &stubAudit{})

	req := httptest.NewRequest(http.MethodPost, "/api/recognize", strings.NewReader("jpeg-bytes"))
	rec, body := serve(t, h.Recognize, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "granted" || body["user"] != "alice" || body["dist"] != 0.31 {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["reason"]; ok {
		t.Fatalf("grant must not carry a reason: %v", body)
	}
	if string(stub.got) != "jpeg-bytes" {
		t.Fatalf("payload not forwarded, got %q", stub.got)
	}
}

func TestDeviceHandler_Recognize_StatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		verdict domain.Verdict
		err     error
		code    int
		extra   string
	}{
		{"no match", domain.Denied(domain.ReasonNoMatch).WithDistance(0.8), nil, http.StatusOK, "min_dist"},
		{"no face", domain.Denied(domain.ReasonNoFace), nil, http.StatusOK, ""},
		{"db empty", domain.Denied(domain.ReasonDBEmpty), nil, http.StatusOK, ""},
		{"decode failed", domain.Denied(domain.ReasonDecodeFailed), nil, http.StatusOK, ""},
		{"empty payload", domain.Denied(domain.ReasonEmptyPayload), nil, http.StatusBadRequest, ""},
		{"server error", domain.Denied(domain.ReasonServerError), errors.New("encoder down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newDevice(&stubRecognition{verdict: tc.verdict, err: tc.err}, &stubCredentials{}, &stubAudit{})
			rec, body := serve(t, h.Recognize, httptest.NewRequest(http.MethodPost, "/api/recognize", strings.NewReader("x")))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if body["status"] != "denied" || body["reason"] != string(tc.verdict.Reason) {
				t.Fatalf("unexpected body %v", body)
			}
			if tc.extra != "" {
				if _, ok := body[tc.extra]; !ok {
					t.Fatalf("expected %s in %v", tc.extra, body)
				}
			}
			if strings.Contains(rec.Body.String(), "encoder down") {
				t.Fatal("internal error leaked to device")
			}
		})
	}
}

func TestDeviceHandler_Recognize_InfiniteDistanceOmitted(t *testing.T) {
	inf := domain.Denied(domain.ReasonNoMatch).WithDistance(posInf())
	h := newDevice(&stubRecognition{verdict: inf}, &stubCredentials{}, &stubAudit{})
	rec, body := serve(t, h.Recognize, httptest.NewRequest(http.MethodPost, "/api/recognize", strings.NewReader("x")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := body["min_dist"]; ok {
		t.Fatalf("non-finite distance must be omitted: %v", body)
	}
}

func TestDeviceHandler_RFID(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		verdict domain.Verdict
		code    int
		want    map[string]any
	}{
		{"granted", `{"uid":"04ab"}`, domain.Granted("1", "bob", domain.ReasonRFID), http.StatusOK,
			map[string]any{"status": "granted", "user": "bob"}},
		{"numeric uid", `{"uid":1234}`, domain.Denied(domain.ReasonCardNotFound), http.StatusOK,
			map[string]any{"status": "denied", "reason": "card_not_found"}},
		{"not assigned", `{"uid":"x"}`, domain.Denied(domain.ReasonCardNotAssigned), http.StatusOK,
			map[string]any{"status": "denied", "reason": "card_not_assigned"}},
		{"empty uid", `{"uid":"   "}`, domain.Verdict{}, http.StatusBadRequest,
			map[string]any{"status": "denied", "reason": "empty_uid"}},
		{"malformed body", `{"uid":`, domain.Verdict{}, http.StatusBadRequest,
			map[string]any{"status": "denied", "reason": "empty_uid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := &stubCredentials{verdict: tc.verdict}
			h := newDevice(&stubRecognition{}, creds, &stubAudit{})
			rec, body := serve(t, h.RFID, jsonRequest(http.MethodPost, "/api/rfid", tc.body))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			for k, v := range tc.want {
				if body[k] != v {
					t.Fatalf("expected %s=%v, got %v", k, v, body)
				}
			}
			if creds.calls != 1 {
				t.Fatalf("expected exactly one resolve, got %d", creds.calls)
			}
		})
	}
}

func TestDeviceHandler_RFID_NumericUIDForwarded(t *testing.T) {
	creds := &stubCredentials{verdict: domain.Denied(domain.ReasonCardNotFound)}
	h := newDevice(&stubRecognition{}, creds, &stubAudit{})
	serve(t, h.RFID, jsonRequest(http.MethodPost, "/api/rfid", `{"uid":1234}`))
	if creds.got != "1234" {
		t.Fatalf("expected uid 1234, got %q", creds.got)
	}
}

func TestDeviceHandler_RFID_ServerError(t *testing.T) {
	creds := &stubCredentials{verdict: domain.Denied(domain.ReasonServerError), err: errors.New("db locked")}
	h := newDevice(&stubRecognition{}, creds, &stubAudit{})
	rec, body := serve(t, h.RFID, jsonRequest(http.MethodPost, "/api/rfid", `{"uid":"A1"}`))
	if rec.Code != http.StatusInternalServerError || body["reason"] != "server_error" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
}

func TestDeviceHandler_Rejections(t *testing.T) {
	audit := &stubAudit{}
	h := newDevice(&stubRecognition{}, &stubCredentials{}, audit)

	rec, body := serve(t, h.RejectRecognize, httptest.NewRequest(http.MethodPost, "/api/recognize", nil))
	if rec.Code != http.StatusUnauthorized || body["status"] != "denied" || body["reason"] != "invalid_credential" {
		t.Fatalf("unexpected recognize rejection %d %v", rec.Code, body)
	}
	rec, _ = serve(t, h.RejectRFID, httptest.NewRequest(http.MethodPost, "/api/rfid", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("expected both rejections logged once, got %d", len(audit.entries))
	}
	for _, e := range audit.entries {
		if e.Outcome != domain.OutcomeDenied || e.Reason == nil || *e.Reason != "invalid_credential" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	rec, body = serve(t, h.RejectHealth, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusUnauthorized || body["status"] != "unauthorized" {
		t.Fatalf("unexpected health rejection %d %v", rec.Code, body)
	}
	if len(audit.entries) != 2 {
		t.Fatal("health probes are not access decisions")
	}
}

func TestDeviceHandler_Recognize_ReadError(t *testing.T) {
	recog := &stubRecognition{}
	audit := &stubAudit{}
	h := newDevice(recog, &stubCredentials{}, audit)

	req := httptest.NewRequest(http.MethodPost, "/api/recognize", io.NopCloser(failingReader{}))
	rec, body := serve(t, h.Recognize, req)
	if rec.Code != http.StatusInternalServerError || body["status"] != "denied" || body["reason"] != "server_error" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if recog.got != nil {
		t.Fatal("pipeline must not run without a body")
	}
	if len(audit.entries) != 1 || *audit.entries[0].Reason != "server_error" || audit.entries[0].Label != domain.UnknownSubject {
		t.Fatalf("expected one server_error entry, got %+v", audit.entries)
	}
}

func TestDeviceHandler_PayloadLimit(t *testing.T) {
	recog := &stubRecognition{verdict: domain.Granted("1", "alice", "")}
	audit := &stubAudit{}
	h := newDevice(recog, &stubCredentials{}, audit)
	limited := h.PayloadLimit("1K", "face")(h.Recognize)

	// declared too large
	rec, body := serve(t, limited, httptest.NewRequest(http.MethodPost, "/api/recognize", strings.NewReader(strings.Repeat("x", 2048))))
	if rec.Code != http.StatusRequestEntityTooLarge || body["reason"] != "server_error" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	// streamed past the limit without a length
	req := httptest.NewRequest(http.MethodPost, "/api/recognize", io.NopCloser(strings.NewReader(strings.Repeat("x", 2048))))
	req.ContentLength = -1
	rec, body = serve(t, limited, req)
	if rec.Code != http.StatusRequestEntityTooLarge || body["reason"] != "server_error" {
		t.Fatalf("unexpected streamed response %d %v", rec.Code, body)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected both oversized requests logged, got %d", len(audit.entries))
	}
	for _, e := range audit.entries {
		if e.Outcome != domain.OutcomeDenied || *e.Reason != "server_error" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	rec, body = serve(t, limited, httptest.NewRequest(http.MethodPost, "/api/recognize", strings.NewReader("img")))
	if rec.Code != http.StatusOK || body["status"] != "granted" || len(audit.entries) != 2 {
		t.Fatalf("small body must pass through, got %d %v", rec.Code, body)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
