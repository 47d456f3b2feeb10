package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ocx/inkgrade/internal/apperr"
)

// envelope is the non-stream response shape: {code, message, data}.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: "OK", Message: "success", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.SystemError("unexpected error", err)
	}
	writeJSON(w, apperr.HTTPStatus(ae.Code), envelope{
		Code:    string(ae.Code),
		Message: apperr.UserMessage(ae.Code),
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
