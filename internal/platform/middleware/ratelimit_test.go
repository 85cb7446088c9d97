package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func limitedHandler(set *limiterSet, cfg RateLimitConfig) echo.HandlerFunc {
	return rateLimit(set, cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func hit(t *testing.T, h echo.HandlerFunc, subject string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/qrda", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if subject != "" {
		c.Set("auth_subject", subject)
	}
	require.NoError(t, h(c))
	return rec
}

func newClockedSet(cfg RateLimitConfig) (*limiterSet, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	set := newLimiterSet(cfg)
	set.now = clock.now
	return set, clock
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3}
	set, _ := newClockedSet(cfg)
	h := limitedHandler(set, cfg)

	for i, want := range []string{"2", "1", "0"} {
		rec := hit(t, h, "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, rec.Header().Get("X-RateLimit-Remaining"), "request %d", i+1)
	}

	rec := hit(t, h, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])
}

func TestRateLimit_RetryAfterReflectsRefill(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 0.25, BurstSize: 1}
	set, _ := newClockedSet(cfg)
	h := limitedHandler(set, cfg)

	require.Equal(t, http.StatusOK, hit(t, h, "").Code)
	rec := hit(t, h, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Equal(t, 4, secs)
}

func TestRateLimit_RejectedRequestDoesNotConsume(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	set, clock := newClockedSet(cfg)
	h := limitedHandler(set, cfg)

	require.Equal(t, http.StatusOK, hit(t, h, "").Code)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusTooManyRequests, hit(t, h, "").Code)
	}

	// one second refills exactly one token even after repeated rejections
	clock.advance(time.Second)
	assert.Equal(t, http.StatusOK, hit(t, h, "").Code)
}

func TestRateLimit_SubjectsGetSeparateBuckets(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	set, _ := newClockedSet(cfg)
	h := limitedHandler(set, cfg)

	assert.Equal(t, http.StatusOK, hit(t, h, "client-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h, "client-a").Code)
	assert.Equal(t, http.StatusOK, hit(t, h, "client-b").Code)
	assert.Equal(t, http.StatusOK, hit(t, h, "").Code)
	assert.Equal(t, 3, set.size())
}

func TestRateLimit_ZeroBurstRejectsEverything(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 5, BurstSize: 0}
	set, _ := newClockedSet(cfg)

	rec := hit(t, limitedHandler(set, cfg), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestLimiterSet_EvictsIdleClients(t *testing.T) {
	set, clock := newClockedSet(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})

	first := set.get("a")
	set.get("b")
	assert.Same(t, first, set.get("a"))
	require.Equal(t, 2, set.size())

	clock.advance(2 * time.Minute)
	set.get("c")
	assert.Equal(t, 1, set.size())
	assert.NotSame(t, first, set.get("a"))
}

func TestRateLimit_HeaderFormatting(t *testing.T) {
	for _, tc := range []struct {
		rps  float64
		want string
	}{
		{rps: 10, want: "10"},
		{rps: 0.5, want: "0.5"},
		{rps: 2.25, want: "2.25"},
	} {
		cfg := RateLimitConfig{RequestsPerSecond: tc.rps, BurstSize: 1}
		rec := hit(t, RateLimit(cfg)(func(c echo.Context) error { return c.NoContent(http.StatusOK) }), "")
		assert.Equal(t, tc.want, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Equal(t, 2.0, cfg.RequestsPerSecond)
	assert.Equal(t, 10, cfg.BurstSize)
	assert.Equal(t, 10*time.Minute, cfg.IdleTTL)
}
