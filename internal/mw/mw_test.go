package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(Invalidate(store))
	r.GET("/occupancy", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.Header("X-Calls", "counted")
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.Status(http.StatusNotFound)
	})
	r.POST("/entry", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/rejected", func(c *gin.Context) { c.Status(http.StatusConflict) })

	first := do(r, http.MethodGet, "/occupancy")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(CacheHeader))

	second := do(r, http.MethodGet, "/occupancy")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(CacheHeader))
	assert.Equal(t, "counted", second.Header().Get("X-Calls"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	// Different query strings are different entries.
	do(r, http.MethodGet, "/occupancy?area_id=1")
	assert.Equal(t, 2, calls)

	// Failed writes keep the cache, successful ones flush it.
	do(r, http.MethodPost, "/rejected")
	assert.Equal(t, "HIT", do(r, http.MethodGet, "/occupancy").Header().Get(CacheHeader))
	do(r, http.MethodPost, "/entry")
	assert.Equal(t, "MISS", do(r, http.MethodGet, "/occupancy").Header().Get(CacheHeader))
	assert.Equal(t, 3, calls)

	// Errors are never cached.
	do(r, http.MethodGet, "/missing")
	do(r, http.MethodGet, "/missing")
	assert.Equal(t, 5, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping").Code)
	w := do(r, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests.")
}

func TestRateLimiterBy(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiterBy(rate.Limit(1), 1, func(c *gin.Context) string { return c.Query("gate") }))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping?gate=a").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping?gate=b").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/ping?gate=a").Code)
}

func TestKeyedRateLimiter_ReusesLimiter(t *testing.T) {
	k := NewKeyedRateLimiter(rate.Limit(1), 1)
	assert.Same(t, k.GetLimiter("x"), k.GetLimiter("x"))
	assert.NotSame(t, k.GetLimiter("x"), k.GetLimiter("y"))
}
