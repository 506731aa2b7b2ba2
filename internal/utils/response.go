package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(code, message string) APIResponse {
	return APIResponse{
		Success:   false,
		Code:      code,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	ae, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case apperr.KindValidation, apperr.KindBusiness:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError reports err to the client. Internal errors are logged and
// replaced by a generic message.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("HTTP", err.Error())
		}
		WriteJSON(w, status, ErrorResponse("INTERNAL", "internal server error"))
		return
	}
	ae, _ := apperr.As(err)
	WriteJSON(w, status, ErrorResponse(ae.Code, ae.Message))
}
