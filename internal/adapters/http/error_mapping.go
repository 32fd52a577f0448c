package httpadapter

import (
	"math"
	"net/http"
	"strconv"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidationFailed, domain.CodeCorrupted:
		return http.StatusBadRequest
	case domain.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeProcessingFailed:
		return http.StatusUnprocessableEntity
	// Our own credentials were refused upstream; the caller is not at fault.
	case domain.CodeAuthentication:
		return http.StatusBadGateway
	case domain.CodeServerError, domain.CodeInitializationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeHeader repeats the body's error code so proxies and the access log can see it.
const errorCodeHeader = "X-Error-Code"

type errorEnvelope struct {
	Error *domain.ErrorInfo `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorInfo(w, domain.NewErrorInfo(err))
}

func writeErrorInfo(w http.ResponseWriter, info *domain.ErrorInfo) {
	setErrorHeaders(w, info)
	writeJSON(w, statusForCode(info.Code), errorEnvelope{Error: info})
}

func setErrorHeaders(w http.ResponseWriter, info *domain.ErrorInfo) {
	if info == nil {
		return
	}
	w.Header().Set(errorCodeHeader, string(info.Code))
	if info.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(info.RetryAfterSeconds))))
	}
}
