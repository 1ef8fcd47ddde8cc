package domain

import "time"

// Outcome is the final decision of an access request.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// Reason qualifies a decision. Denials always carry one.
type Reason string

const (
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonEmptyPayload      Reason = "empty_payload"
	ReasonDecodeFailed      Reason = "decode_failed"
	ReasonNoFace            Reason = "no_face"
	ReasonDBEmpty           Reason = "db_empty"
	ReasonNoMatch           Reason = "no_match"
	ReasonEmptyUID          Reason = "empty_uid"
	ReasonCardNotFound      Reason = "card_not_found"
	ReasonCardNotAssigned   Reason = "card_not_assigned"
	ReasonServerError       Reason = "server_error"
	ReasonRFID              Reason = "rfid"
)

// UnknownSubject labels log entries that do not resolve to a user.
const UnknownSubject = "Unknown"

// Verdict is the result of a decision pipeline.
type Verdict struct {
	Outcome  Outcome
	Reason   Reason
	UserID   string
	UserName string
	// Distance is the best face distance; nil for credential decisions.
	Distance *float64
}

// Granted builds a granting verdict.
func Granted(userID, userName string, reason Reason) Verdict {
	return Verdict{Outcome: OutcomeGranted, Reason: reason, UserID: userID, UserName: userName}
}

// Denied builds a denying verdict.
func Denied(reason Reason) Verdict {
	return Verdict{Outcome: OutcomeDenied, Reason: reason}
}

// WithDistance returns a copy of v carrying distance d.
func (v Verdict) WithDistance(d float64) Verdict {
	v.Distance = &d
	return v
}

// IsGranted reports whether access was granted.
func (v Verdict) IsGranted() bool {
	return v.Outcome == OutcomeGranted
}

// AccessLogEntry is one immutable audit record.
type AccessLogEntry struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"user_id,omitempty"`
	Label       string    `json:"name"`
	Outcome     Outcome   `json:"status"`
	Reason      *string   `json:"reason,omitempty"`
	EvidenceRef *string   `json:"image_path,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// Stats are the dashboard counters.
type Stats struct {
	Users      int64            `json:"users"`
	Embeddings int64            `json:"embeddings"`
	Logs       int64            `json:"logs"`
	Cached     int              `json:"cached"`
	Recent     []AccessLogEntry `json:"recent"`
}
