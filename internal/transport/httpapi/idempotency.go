package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const (
	// HeaderIdempotencyKey — заголовок с ключом идемпотентности.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, повторённых из сохранённой записи.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotentBody = 1 << 20
)

// Idempotency сохраняет ответ на запрос с Idempotency-Key и повторяет его для того же тела.
// Запросы без заголовка проходят как есть.
func Idempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if repo == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidJSON, "failed to read request body")
				return
			}
			if len(body) > maxIdempotentBody {
				writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body exceeds 1 MiB")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			entry := logger.WithField("idempotency_key", key)
			record, err := repo.CreateProcessing(r.Context(), key, requestHash(r, body), time.Now().UTC().Add(ttl))
			if err != nil {
				replay(w, entry, record, err)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			var captured bytes.Buffer
			ww.Tee(&captured)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			mark := repo.MarkDone
			if status >= http.StatusBadRequest {
				mark = repo.MarkFailed
			}
			// Ответ уже ушёл клиенту; запись не должна зависеть от его отключения.
			if err := mark(context.WithoutCancel(r.Context()), key, captured.Bytes(), status); err != nil {
				entry.WithError(err).Warn("failed to store idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusConflict, codeIdempotencyConflict, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Completed() {
			writeError(w, http.StatusConflict, codeIdempotencyConflict, "request with the same idempotency key is already processing")
			return
		}
		status := record.HTTPStatus
		if status < http.StatusContinue {
			status = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(HeaderIdempotentReplay, "true")
		w.WriteHeader(status)
		_, _ = w.Write(record.ResponseBody)
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		writeDomainError(w, logger, createErr)
	}
}

// requestHash связывает ключ с методом, путём и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, r.Method)
	_, _ = io.WriteString(h, ":")
	_, _ = io.WriteString(h, r.URL.Path)
	_, _ = io.WriteString(h, ":")
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
