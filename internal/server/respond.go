package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/model"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

// writeKindError maps an error kind to a status and a user-facing message.
func writeKindError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, model.UserMessage(err), nil)
}

func statusFor(err error) (int, string) {
	switch model.KindOf(err) {
	case model.ErrInvalidIdentifier:
		return http.StatusBadRequest, "invalid_identifier"
	case model.ErrPreconditionNotMet:
		return http.StatusConflict, "precondition_not_met"
	case model.ErrUnsupportedLevel:
		return http.StatusUnprocessableEntity, "unsupported_level"
	case model.ErrUpstreamUnavailable:
		return http.StatusBadGateway, "upstream_unavailable"
	case model.ErrGeometryUnavailable:
		return http.StatusBadGateway, "geometry_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return dec.Decode(v)
}
