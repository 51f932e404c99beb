package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scootr/internal/id"
	"scootr/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireUser(t *testing.T) {
	r := gin.New()
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	userID := id.NewUserID().String()
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", userID, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "alice", http.StatusUnauthorized},
		{"vehicle id", id.NewVehicleID().String(), http.StatusUnauthorized},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, userID, w.Body.String())
			}
		})
	}
}

func TestRequireVehicle(t *testing.T) {
	r := gin.New()
	r.GET("/telemetry", RequireVehicle(), func(c *gin.Context) {
		assert.Empty(t, UserID(c))
		c.String(http.StatusOK, VehicleID(c))
	})

	vehicleID := id.NewVehicleID().String()
	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	req.Header.Set(VehicleIDHeader, vehicleID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, vehicleID, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		rid := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, rid)
		assert.Equal(t, rid, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", w.Body.String())
	})
}

type idempotencyRig struct {
	router *gin.Engine
	store  *tests.MockResponseStore
	calls  *int32
	status *int
	userID string
}

func newIdempotencyRig(t *testing.T) *idempotencyRig {
	t.Helper()
	var calls int32
	status := http.StatusCreated
	rig := &idempotencyRig{
		store:  tests.NewMockResponseStore(),
		calls:  &calls,
		status: &status,
		userID: id.NewUserID().String(),
	}

	r := gin.New()
	r.Use(RequireUser(), Idempotency(rig.store))
	r.POST("/wallets", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(*rig.status, gin.H{"call": n})
	})
	r.GET("/wallets", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusOK, gin.H{})
	})
	rig.router = r
	return rig
}

func (rig *idempotencyRig) send(method, key, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/wallets", strings.NewReader(`{}`))
	req.Header.Set(UserIDHeader, userID)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_Replay(t *testing.T) {
	rig := newIdempotencyRig(t)

	first := rig.send(http.MethodPost, "k1", rig.userID)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := rig.send(http.MethodPost, "k1", rig.userID)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(rig.calls))

	_, ok := rig.store.Stored(rig.userID + ":k1")
	assert.True(t, ok, "key is scoped to the caller")
}

func TestIdempotency_ScopedPerCaller(t *testing.T) {
	rig := newIdempotencyRig(t)

	rig.send(http.MethodPost, "shared", rig.userID)
	w := rig.send(http.MethodPost, "shared", id.NewUserID().String())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(2), atomic.LoadInt32(rig.calls))
}

func TestIdempotency_PendingConflicts(t *testing.T) {
	rig := newIdempotencyRig(t)
	rig.store.Hold(rig.userID + ":k1")

	w := rig.send(http.MethodPost, "k1", rig.userID)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(rig.calls))
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	rig := newIdempotencyRig(t)
	*rig.status = http.StatusInternalServerError

	rig.send(http.MethodPost, "k1", rig.userID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rig.store.ReleaseCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&rig.store.SaveCallCount))

	*rig.status = http.StatusCreated
	w := rig.send(http.MethodPost, "k1", rig.userID)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(rig.calls))
}

func TestIdempotency_ClientErrorsAreStored(t *testing.T) {
	rig := newIdempotencyRig(t)
	*rig.status = http.StatusForbidden

	rig.send(http.MethodPost, "k1", rig.userID)
	*rig.status = http.StatusCreated
	w := rig.send(http.MethodPost, "k1", rig.userID)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(rig.calls))
}

func TestIdempotency_PassThrough(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		rig := newIdempotencyRig(t)
		rig.send(http.MethodPost, "", rig.userID)
		rig.send(http.MethodPost, "", rig.userID)
		assert.Equal(t, int32(2), atomic.LoadInt32(rig.calls))
	})

	t.Run("safe method", func(t *testing.T) {
		rig := newIdempotencyRig(t)
		rig.send(http.MethodGet, "k1", rig.userID)
		rig.send(http.MethodGet, "k1", rig.userID)
		assert.Equal(t, int32(2), atomic.LoadInt32(rig.calls))
		assert.Equal(t, int32(0), atomic.LoadInt32(&rig.store.SaveCallCount))
	})

	t.Run("store unavailable", func(t *testing.T) {
		rig := newIdempotencyRig(t)
		rig.store.LookupError = errors.New("redis down")
		rig.send(http.MethodPost, "k1", rig.userID)
		rig.send(http.MethodPost, "k1", rig.userID)
		assert.Equal(t, int32(2), atomic.LoadInt32(rig.calls))
	})

	t.Run("nil store", func(t *testing.T) {
		r := gin.New()
		r.POST("/", Idempotency(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(idempotencyHeader, "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
