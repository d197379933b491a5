// Package payment adapts hosted-checkout providers to one contract: create a
// session, verify a webhook, and normalise its payload into an Event.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedProvider = errors.New("payment: unsupported provider")
	// ErrSignature covers missing, malformed, stale and mismatched signatures.
	ErrSignature = errors.New("payment: invalid webhook signature")
	ErrMalformed = errors.New("payment: malformed webhook payload")
)

// Kind is the provider-neutral meaning of a webhook.
type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindRefunded  Kind = "refunded"
	KindIgnored   Kind = "ignored"
)

// Event is a verified, normalised webhook. OrderID comes from the metadata we
// attached when creating the session; PaymentRef is the provider's own id and
// is used when metadata is missing.
type Event struct {
	Provider   string
	ID         string
	Type       string
	Kind       Kind
	OrderID    string
	PaymentRef string
	Payload    []byte
}

// SessionRequest is built from the server-side quote only.
type SessionRequest struct {
	OrderID        string
	Amount         int64 // minor units
	Currency       string
	Email          string
	Description    string
	SuccessURL     string
	CancelURL      string
	FailureURL     string
	IdempotencyKey string
}

type Session struct {
	ID          string
	Provider    string
	RedirectURL string
}

type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyWebhook(payload []byte, header http.Header) error
	NormalizeEvent(payload []byte) (Event, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

func NewRegistry(fallback string, providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p.Name()))
		if key == "" {
			return nil, errors.New("payment: provider with empty name")
		}
		if _, dup := r.providers[key]; dup {
			return nil, fmt.Errorf("payment: provider %q registered twice", key)
		}
		r.providers[key] = p
	}
	r.fallback = strings.ToLower(strings.TrimSpace(fallback))
	if r.fallback == "" && len(r.providers) == 1 {
		for k := range r.providers {
			r.fallback = k
		}
	}
	return r, nil
}

// Get returns the named provider, or the fallback when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}
	if p, ok := r.providers[key]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MinorUnits converts a two-decimal amount to cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// orderIDFrom reads the order id from provider metadata. Both spellings are
// accepted because sessions created by older storefront builds used orderId.
func orderIDFrom(meta map[string]string) string {
	if meta == nil {
		return ""
	}
	if v := strings.TrimSpace(meta["order_id"]); v != "" {
		return v
	}
	return strings.TrimSpace(meta["orderId"])
}
