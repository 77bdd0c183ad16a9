package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/middleware"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEnrollmentError maps the enrollment taxonomy to a status code.
// Unexpected errors are logged and hidden behind a generic message.
func writeEnrollmentError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := enrollment.Kind(err)
	var status int
	switch kind {
	case enrollment.KindNotFound:
		status = http.StatusNotFound
	case enrollment.KindConflict, enrollment.KindCapacityExceeded:
		status = http.StatusConflict
	case enrollment.KindValidation:
		status = http.StatusBadRequest
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(kind)})
}

// pathID reads a positive numeric route variable.
func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// actorID returns the authenticated caller.
func actorID(r *http.Request) (uint, bool) {
	claims := middleware.GetUserClaims(r.Context())
	if claims == nil {
		return 0, false
	}
	return claims.UserID, true
}
