package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/auth"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
)

const (
	HeaderName       = "Idempotency-Key"
	ReplayHeaderName = "X-Idempotent-Replay"
	maxKeyLength     = 255
)

// Middleware makes a route safe to retry. Requests without an
// Idempotency-Key pass through untouched. Keys are scoped by caller, and a
// key reused with a different body is rejected. Server errors are not stored
// so the client can retry them.
func Middleware(store Store, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderName))
		if store == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxKeyLength {
			httpx.Abort(c, httpx.NewError("idempotency_key_invalid", "idempotency key too long", http.StatusBadRequest))
			return
		}

		body, err := readAndReplayBody(c.Request)
		if err != nil {
			httpx.Abort(c, httpx.NewError("validation_error", "unable to read request body", http.StatusBadRequest))
			return
		}

		identity := requester(c)
		fingerprint := requestFingerprint(c.Request, body, identity)
		scoped := key + "|" + identity
		ctx := c.Request.Context()

		res, err := store.Reserve(ctx, scoped, fingerprint, ttl)
		switch {
		case errors.Is(err, ErrFingerprintMismatch):
			httpx.Abort(c, httpx.NewError("idempotency_key_reused", "idempotency key already used for a different request", http.StatusUnprocessableEntity))
			return
		case err != nil:
			httpx.Internal(c, err)
			return
		}

		switch res.State {
		case StateCompleted:
			writeStored(c, res.Record)
			return
		case StatePending:
			httpx.Abort(c, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
			return
		}

		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee
		finished := false
		// runs while a handler panic unwinds too, so the key never stays pending
		defer func() {
			log := httpx.Log(c)
			status := tee.Status()
			if !finished || status >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					log.Warn("idempotency release failed", zap.Error(err))
				}
				return
			}
			resp := Response{Status: status, Headers: tee.Header().Clone(), Body: tee.body.Bytes()}
			if err := store.Save(ctx, scoped, fingerprint, resp, ttl); err != nil {
				log.Warn("idempotency save failed", zap.Error(err))
			}
		}()
		c.Next()
		finished = true
	}
}

// teeWriter passes the response through while keeping a copy of the body.
type teeWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func writeStored(c *gin.Context, rec Record) {
	h := c.Writer.Header()
	for name, values := range rec.Headers {
		h.Del(name)
		for _, v := range values {
			h.Add(name, v)
		}
	}
	h.Set(ReplayHeaderName, "true")
	status := rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)
	if len(rec.Body) > 0 {
		_, _ = c.Writer.Write(rec.Body)
	}
	c.Abort()
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requester(c *gin.Context) string {
	if id, ok := auth.FromContext(c); ok && id.UserID != "" {
		return id.UserID
	}
	return "anonymous"
}

func requestFingerprint(r *http.Request, body []byte, identity string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(identity)
	b.WriteString("|")
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}
