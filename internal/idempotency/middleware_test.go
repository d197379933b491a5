package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-checkout/internal/auth"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
)

func newRouter(store Store, status *int32, calls *int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.Middleware(auth.NewVerifier("secret")))
	r.POST("/orders", Middleware(store, time.Hour), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.Header("X-Order", "o-"+string(rune('0'+n)))
		c.JSON(int(atomic.LoadInt32(status)), gin.H{"call": n})
	})
	return r
}

func post(r http.Handler, key, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	status, calls := int32(http.StatusCreated), int32(0)
	r := newRouter(NewMemoryStore(), &status, &calls)

	first := post(r, "k-1", `{"a":1}`, "")
	second := post(r, "k-1", `{"a":1}`, "")

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "o-1", second.Header().Get("X-Order"))
	assert.Equal(t, "true", second.Header().Get(ReplayHeaderName))
	assert.Empty(t, first.Header().Get(ReplayHeaderName))
}

func TestMiddlewareWithoutKeyPassesThrough(t *testing.T) {
	status, calls := int32(http.StatusCreated), int32(0)
	r := newRouter(NewMemoryStore(), &status, &calls)

	post(r, "", `{"a":1}`, "")
	post(r, "", `{"a":1}`, "")
	assert.Equal(t, int32(2), calls)
}

func TestMiddlewareRejectsDifferentBody(t *testing.T) {
	status, calls := int32(http.StatusCreated), int32(0)
	r := newRouter(NewMemoryStore(), &status, &calls)

	post(r, "k-1", `{"a":1}`, "")
	w := post(r, "k-1", `{"a":2}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_reused")
	assert.Equal(t, int32(1), calls)
}

func TestMiddlewareScopesKeyByCaller(t *testing.T) {
	status, calls := int32(http.StatusCreated), int32(0)
	r := newRouter(NewMemoryStore(), &status, &calls)
	tok, err := auth.NewVerifier("secret").Sign(auth.Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)

	post(r, "k-1", `{"a":1}`, "")
	w := post(r, "k-1", `{"a":1}`, tok)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(2), calls)
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	status, calls := int32(http.StatusBadGateway), int32(0)
	r := newRouter(NewMemoryStore(), &status, &calls)

	assert.Equal(t, http.StatusBadGateway, post(r, "k-1", `{}`, "").Code)
	atomic.StoreInt32(&status, http.StatusCreated)
	w := post(r, "k-1", `{}`, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(2), calls)
}

func TestMiddlewarePendingKeyConflicts(t *testing.T) {
	store := NewMemoryStore()
	status, calls := int32(http.StatusCreated), int32(0)
	r := newRouter(store, &status, &calls)

	body := `{"a":1}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	fp := requestFingerprint(req, []byte(body), "anonymous")
	_, err := store.Reserve(context.Background(), "k-1|anonymous", fp, time.Hour)
	require.NoError(t, err)

	w := post(r, "k-1", body, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), calls)
}

func TestMiddlewareReleasesKeyAfterPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls int32
	r := gin.New()
	r.Use(httpx.Recovery())
	r.POST("/orders", Middleware(NewMemoryStore(), time.Hour), func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("handler blew up")
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	first := post(r, "k-1", `{"a":1}`, "")
	assert.Equal(t, http.StatusInternalServerError, first.Code)

	retry := post(r, "k-1", `{"a":1}`, "")
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Empty(t, retry.Header().Get(ReplayHeaderName))
	assert.Equal(t, int32(2), calls)

	again := post(r, "k-1", `{"a":1}`, "")
	assert.Equal(t, "true", again.Header().Get(ReplayHeaderName))
	assert.Equal(t, int32(2), calls)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)
	require.NoError(t, store.Save(ctx, "k", "fp", Response{Status: 201, Body: []byte("x")}, time.Minute))

	res, err = store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []byte("x"), res.Record.Body)

	now = now.Add(2 * time.Minute)
	res, err = store.Reserve(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)
}
