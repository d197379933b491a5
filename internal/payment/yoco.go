package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	yocoName           = "yoco"
	yocoDefaultBaseURL = "https://payments.yoco.com"
	yocoTolerance      = 3 * time.Minute
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type YocoConfig struct {
	SecretKey     string
	WebhookSecret string // whsec_<base64>
	BaseURL       string
	HTTP          HTTPDoer
	Logger        *zap.Logger
	Now           func() time.Time
}

// Yoco talks to the Yoco Checkout REST API.
type Yoco struct {
	http      HTTPDoer
	baseURL   string
	secretKey string
	signKey   []byte
	log       *zap.Logger
	now       func() time.Time
}

func NewYoco(cfg YocoConfig) (*Yoco, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("yoco: secret key is required")
	}
	key, err := decodeWebhookSecret(cfg.WebhookSecret)
	if err != nil {
		return nil, err
	}
	doer := cfg.HTTP
	if doer == nil {
		doer = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = yocoDefaultBaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Yoco{http: doer, baseURL: base, secretKey: cfg.SecretKey, signKey: key, log: log.Named("yoco"), now: now}, nil
}

func decodeWebhookSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("yoco: webhook secret is required")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return nil, fmt.Errorf("yoco: webhook secret is not base64: %w", err)
	}
	return key, nil
}

func (y *Yoco) Name() string { return yocoName }

type yocoCheckoutRequest struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl,omitempty"`
	CancelURL  string            `json:"cancelUrl,omitempty"`
	FailureURL string            `json:"failureUrl,omitempty"`
	Metadata   map[string]string `json:"metadata"`
}

type yocoCheckoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (y *Yoco) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(yocoCheckoutRequest{
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		FailureURL: req.FailureURL,
		Metadata:   map[string]string{"orderId": req.OrderID, "order_id": req.OrderID},
	})
	if err != nil {
		return Session{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL+"/api/checkouts", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+y.secretKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	res, err := y.http.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("yoco: create checkout: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return Session{}, fmt.Errorf("yoco: create checkout: %s: %s", res.Status, strings.TrimSpace(string(msg)))
	}
	var out yocoCheckoutResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("yoco: decode checkout: %w", err)
	}
	if out.ID == "" || out.RedirectURL == "" {
		return Session{}, errors.New("yoco: checkout response missing id or redirectUrl")
	}
	y.log.Info("checkout created",
		zap.String("order_id", req.OrderID),
		zap.String("checkout_id", out.ID),
		zap.Int64("amount", req.Amount))
	return Session{ID: out.ID, Provider: yocoName, RedirectURL: out.RedirectURL}, nil
}

// VerifyWebhook checks the webhook-signature header, which may list several
// space-separated "v1,<base64>" entries during secret rotation.
func (y *Yoco) VerifyWebhook(payload []byte, header http.Header) error {
	id := header.Get("webhook-id")
	ts := header.Get("webhook-timestamp")
	sigs := header.Get("webhook-signature")
	if id == "" || ts == "" || sigs == "" {
		return fmt.Errorf("%w: missing webhook headers", ErrSignature)
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrSignature)
	}
	if d := y.now().Sub(time.Unix(sec, 0)); d > yocoTolerance || d < -yocoTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	}

	expected := SignYoco(y.signKey, id, ts, payload)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrSignature)
}

// SignYoco returns the base64 HMAC-SHA256 of "id.timestamp.payload".
func SignYoco(key []byte, id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type yocoEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"payload"`
}

func (y *Yoco) NormalizeEvent(payload []byte) (Event, error) {
	var evt yocoEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformed)
	}
	ref := evt.Payload.Metadata["checkoutId"]
	if ref == "" {
		ref = evt.Payload.ID
	}
	return Event{
		Provider:   yocoName,
		ID:         evt.ID,
		Type:       evt.Type,
		Kind:       yocoKind(evt.Type),
		OrderID:    orderIDFrom(evt.Payload.Metadata),
		PaymentRef: ref,
		Payload:    payload,
	}, nil
}

func yocoKind(t string) Kind {
	switch t {
	case "checkout.succeeded", "payment.succeeded":
		return KindSucceeded
	case "checkout.failed", "payment.failed":
		return KindFailed
	case "refund.succeeded":
		return KindRefunded
	}
	return KindIgnored
}
