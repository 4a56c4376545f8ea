package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const (
	codeInvalidJSON         = "invalid_json"
	codeInternal            = "internal"
	codeIdempotencyConflict = "idempotency_conflict"
	codePayloadTooLarge     = "payload_too_large"
)

type errorDetail struct {
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Details []errorDetail `json:"details,omitempty"`
}

// statusForKind сопоставляет вид доменной ошибки с HTTP-кодом.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidationFailed:
		return http.StatusBadRequest
	case domain.KindStockInsufficient:
		return http.StatusConflict
	case domain.KindConnectionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError пишет ошибку сервиса. Неклассифицированные ошибки не раскрываются клиенту.
func writeDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)

	resp := errorResponse{Error: string(kind), Message: err.Error()}
	switch kind {
	case domain.KindUnknown:
		resp = errorResponse{Error: codeInternal, Message: "internal error"}
	case domain.KindConnectionUnavailable:
		resp.Message = domain.ErrStorageUnavailable.Error()
	}

	var placement *domain.PlacementError
	if errors.As(err, &placement) {
		resp.Message = "order placement rejected"
		for _, line := range placement.Lines {
			resp.Details = append(resp.Details, errorDetail{ProductID: line.ProductID, Message: line.Message()})
		}
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("kind", kind).Error("request failed")
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
