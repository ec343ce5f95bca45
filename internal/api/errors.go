package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/alecgard/kyosor/internal/mission"
	"github.com/alecgard/kyosor/internal/rename"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// ruleError maps a business-rule sentinel to a status and error code.
type ruleError struct {
	target error
	status int
	code   string
}

var ruleErrors = []ruleError{
	{identity.ErrInvalidIdentity, http.StatusUnprocessableEntity, "validation_error"},
	{identity.ErrDuplicateCredential, http.StatusConflict, "duplicate_credential"},
	{identity.ErrNameTaken, http.StatusConflict, "name_taken"},
	{identity.ErrNotFound, http.StatusNotFound, "not_found"},
	{identity.ErrBadSecret, http.StatusUnauthorized, "unauthorized"},
	{identity.ErrNotLoggedIn, http.StatusUnauthorized, "unauthorized"},
	{identity.ErrEmptyEmail, http.StatusUnprocessableEntity, "validation_error"},
	{identity.ErrEmptySecret, http.StatusUnprocessableEntity, "validation_error"},
	{identity.ErrEmailMismatch, http.StatusForbidden, "email_mismatch"},
	{rename.ErrEmptyName, http.StatusUnprocessableEntity, "validation_error"},
	{mission.ErrNotFound, http.StatusNotFound, "not_found"},
	{mission.ErrInvalidDraft, http.StatusUnprocessableEntity, "validation_error"},
	{mission.ErrNotOpen, http.StatusConflict, "not_open"},
	{mission.ErrSelfJoin, http.StatusConflict, "self_join"},
	{mission.ErrJoinDisabled, http.StatusConflict, "join_disabled"},
	{mission.ErrCrewFull, http.StatusConflict, "crew_full"},
	{mission.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{mission.ErrNotMember, http.StatusConflict, "not_member"},
	{mission.ErrNotChief, http.StatusForbidden, "forbidden"},
	{mission.ErrHasCrew, http.StatusConflict, "has_crew"},
	{ledger.ErrInvalidKind, http.StatusUnprocessableEntity, "validation_error"},
	{ledger.ErrInvalidHours, http.StatusUnprocessableEntity, "validation_error"},
}

// classify returns the response for err. Unknown errors are internal.
func classify(err error) (status int, code string, known bool) {
	for _, re := range ruleErrors {
		if errors.Is(err, re.target) {
			return re.status, re.code, true
		}
	}
	return http.StatusInternalServerError, "internal_error", false
}

// responder writes domain errors and counts refused operations.
type responder struct {
	metrics *metrics.Metrics
}

// fail writes err as an error envelope. Unknown errors are logged and
// reported with fallback as the message.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code, known := classify(err)
	if !known {
		slog.Error(fallback, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, status, code, fallback)
		return
	}
	if rs.metrics != nil && status != http.StatusNotFound {
		rs.metrics.IncRuleRejection(code)
	}
	writeError(w, status, code, err.Error())
}
