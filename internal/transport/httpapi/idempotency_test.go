package httpapi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/transport/httpapi"
)

// contextAwareIdempotency отклоняет запись по отменённому контексту, как это делает PostgreSQL-драйвер.
type contextAwareIdempotency struct {
	*memory.IdempotencyRepository
}

func (r contextAwareIdempotency) MarkDone(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkDone(ctx, key, body, status)
}

func (r contextAwareIdempotency) MarkFailed(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkFailed(ctx, key, body, status)
}

func idempotentRequest(ctx context.Context, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set(httpapi.HeaderIdempotencyKey, "order-key-1")
	return req
}

func TestIdempotency_ClientDisconnectStillStoresResponse(t *testing.T) {
	repo := contextAwareIdempotency{IdempotencyRepository: memory.NewIdempotencyRepository()}

	var calls atomic.Int32
	var disconnect context.CancelFunc
	handler := httpapi.Idempotency(repo, time.Hour, log.WithField("test", "idempotency"))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			// Заказ оформлен, но клиент успел отключиться до ответа.
			disconnect()
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"order-1"}`))
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	disconnect = cancel
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(ctx, `{"customer_id":"c-1"}`))

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, idempotentRequest(context.Background(), `{"customer_id":"c-1"}`))

	require.Equal(t, http.StatusCreated, retry.Code)
	require.Equal(t, "true", retry.Header().Get(httpapi.HeaderIdempotentReplay))
	require.JSONEq(t, `{"id":"order-1"}`, retry.Body.String())
	require.Equal(t, int32(1), calls.Load(), "retry must not place the order again")

	record, err := repo.Get(context.Background(), "order-key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
}

func TestIdempotency_RejectsOversizedBody(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	handler := httpapi.Idempotency(repo, time.Hour, log.WithField("test", "idempotency"))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not see a truncated body")
		}),
	)

	body := `{"customer_id":"` + strings.Repeat("x", 1<<20) + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(context.Background(), body))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "payload_too_large")

	_, err := repo.Get(context.Background(), "order-key-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound, "oversized request must not claim the key")
}

func TestIdempotency_BodyAtLimitPassesThrough(t *testing.T) {
	var seen int
	handler := httpapi.Idempotency(memory.NewIdempotencyRepository(), time.Hour, log.WithField("test", "idempotency"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(strings.Builder)
			n, err := io.Copy(buf, r.Body)
			require.NoError(t, err)
			seen = int(n)
			w.WriteHeader(http.StatusCreated)
		}),
	)

	body := strings.Repeat("x", 1<<20)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(context.Background(), body))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, len(body), seen)
}
