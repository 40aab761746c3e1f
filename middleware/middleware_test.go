package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quillpost/blog"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func router(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role})
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := router(Auth(secret))
	token, err := IssueToken(secret, blog.Actor{UserID: 7, Username: "alice", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	w := get(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"admin"}`, w.Body.String())

	w = get(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Please log in")

	w = get(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := IssueToken([]byte("other"), blog.Actor{UserID: 7}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, other).Code)

	expired, err := IssueToken(secret, blog.Actor{UserID: 7}, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, expired).Code)
}

func TestAuth_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(router(Auth(secret)), token).Code)
}

func TestOptionalAuth(t *testing.T) {
	r := router(OptionalAuth(secret))

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())

	w = get(r, "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())

	token, err := IssueToken(secret, blog.Actor{UserID: 3, Role: "user"}, time.Hour)
	require.NoError(t, err)
	w = get(r, token)
	assert.JSONEq(t, `{"user_id":3,"role":"user"}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := router(RateLimit(NewIPLimiter(1, 2)))

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
}

func TestIPLimiter_PerIP(t *testing.T) {
	l := NewIPLimiter(1, 1)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestRateLimit_IgnoresForwardedFor(t *testing.T) {
	r := router(RateLimit(NewIPLimiter(1, 1)))
	require.NoError(t, r.SetTrustedProxies(nil))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestIPLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 1)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Len(t, l.clients, 5)

	now = now.Add(limiterIdle)
	assert.True(t, l.Allow("10.0.0.99"))
	assert.Len(t, l.clients, 1)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	r := router(Logger(log))

	get(r, "")
	assert.Contains(t, buf.String(), `"path":"/me"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
