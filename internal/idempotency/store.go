// Package idempotency replays stored responses for repeated Idempotency-Key
// requests so a retried checkout never places a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const DefaultTTL = 24 * time.Hour

type State int

const (
	StateNew State = iota
	StateCompleted
	StatePending
)

type Record struct {
	Fingerprint string              `json:"fingerprint"`
	Completed   bool                `json:"completed"`
	Status      int                 `json:"status,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
}

type Reservation struct {
	State  State
	Record Record
}

type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses. Reserve must be atomic: of two
// concurrent callers with the same key exactly one sees StateNew.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error)
	Save(ctx context.Context, key, fingerprint string, resp Response, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

func hashKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func completedRecord(fingerprint string, resp Response) Record {
	headers := make(map[string][]string, len(resp.Headers))
	for name, values := range resp.Headers {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding", "x-request-id":
			continue
		}
		headers[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return Record{
		Fingerprint: fingerprint,
		Completed:   true,
		Status:      resp.Status,
		Headers:     headers,
		Body:        append([]byte(nil), resp.Body...),
	}
}
