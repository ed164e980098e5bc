package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

const (
	// IdempotencyKeyHeader — заголовок с ключом идемпотентности.
	IdempotencyKeyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL = 24 * time.Hour
	maxRequestBody        = 1 << 20
)

// idempotency повторяет сохранённый ответ для того же ключа и тела запроса.
type idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

func (m *idempotency) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if m.repo == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, m.logger, errBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		userID, _ := CallerFromContext(r.Context())
		scopedKey := userID + ":" + key
		logger := m.logger.WithField("idempotency_key", key)

		record, err := m.repo.CreateProcessing(r.Context(), scopedKey, requestHash(r, body), m.now().Add(m.ttl))
		if err != nil {
			m.replay(w, logger, record, err)
			return
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		switch {
		case rec.status >= http.StatusInternalServerError:
			// Серверная ошибка не кешируется: повтор с тем же ключом выполнит запрос заново.
			if err := m.repo.Release(r.Context(), scopedKey); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key after server error")
			}
			return
		case rec.status >= http.StatusBadRequest:
			if err := m.repo.MarkFailed(r.Context(), scopedKey, rec.body.Bytes(), rec.status); err != nil {
				logger.WithError(err).Warn("failed to store idempotent failure response")
			}
			return
		}
		if err := m.repo.MarkDone(r.Context(), scopedKey, rec.body.Bytes(), rec.status); err != nil {
			logger.WithError(err).Warn("failed to store idempotent success response")
		}
	})
}

func (m *idempotency) replay(w http.ResponseWriter, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "idempotency key is already used with a different request"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) && record.Finished():
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.ReplayStatus())
		_, _ = w.Write(record.ResponseBody)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "request with the same idempotency key is still processing"})
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "failed to initialize idempotent request"})
	}
}

type hashedRequest struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

func requestHash(r *http.Request, body []byte) string {
	payload := hashedRequest{Method: r.Method, Path: r.URL.Path}
	if len(bytes.TrimSpace(body)) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err == nil {
			payload.Body = compact.Bytes()
		} else {
			payload.Body, _ = json.Marshal(string(body))
		}
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// captureWriter пишет ответ клиенту и копирует его для кеша идемпотентности.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
