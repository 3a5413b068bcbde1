package authapi

import (
	"encoding/json"
	"net/http"

	"lineauth/internal/federation"
	"lineauth/pkg/problems"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// writeError renders any error through the federation taxonomy. Internal causes stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	fe := federation.AsError(err)
	msg := fe.Message
	if fe.Code == federation.CodeInternal {
		msg = "internal error"
	}
	writeJSON(w, fe.Status, map[string]any{
		"success": false,
		"error": errorBody{
			Code:      string(fe.Code),
			Message:   msg,
			Type:      problems.Type(problems.Slug(string(fe.Code))),
			Retryable: fe.Retryable,
		},
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, &federation.Error{Code: federation.CodeInvalidRequest, Status: http.StatusBadRequest, Message: msg})
}
