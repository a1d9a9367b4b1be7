package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	replayedHeader      = "Idempotency-Replayed"
	maxIdempotencyKeyLn = 255
)

var errIdempotencyKeyTooLong = errors.New("idempotency key is too long")

// idempotent сохраняет ответ на запрос с Idempotency-Key и отдаёт его повторно.
// Ключ изолирован по пользователю, хэш строится по методу, пути и телу.
func idempotent(repo domain.IdempotencyRepository, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if repo == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLn {
				writeError(w, r, logger, &domain.ValidationError{Field: idempotencyHeader, Err: errIdempotencyKeyTooLong})
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, r, logger, errBadJSON)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			user, _ := currentUser(r.Context())
			scoped := fmt.Sprintf("%d:%s", user.ID, key)
			hash := requestHash(r.Method, r.URL.Path, body)

			record, err := repo.CreateProcessing(r.Context(), scoped, hash, time.Now().UTC().Add(domain.IdempotencyTTL))
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrIdempotencyHashMismatch):
				writeError(w, r, logger, err)
				return
			case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
				if record.Replayable() {
					replay(w, record)
					return
				}
				writeError(w, r, logger, err)
				return
			default:
				writeError(w, r, logger, fmt.Errorf("create idempotency record: %w", err))
				return
			}

			rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Клиент мог отключиться, но результат всё равно фиксируем.
			ctx := context.WithoutCancel(r.Context())
			mark := repo.MarkDone
			if rec.status >= http.StatusBadRequest {
				mark = repo.MarkFailed
			}
			if err := mark(ctx, scoped, rec.body.Bytes(), rec.status); err != nil {
				logger.WithError(err).WithFields(log.Fields{
					"idempotency_key": key,
					"user_id":         user.ID,
				}).Error("Failed to store idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, record domain.IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}

// capturingWriter пишет ответ клиенту и одновременно копит его для сохранения.
type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturingWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
