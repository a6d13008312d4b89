package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(c *Client) {
	c.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	noSleep(c)

	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestDoRetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	noSleep(c)

	resp, err := c.Do(context.Background(), http.MethodGet, "/flaky", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoExhaustsRetriesAndReturnsHTTPError(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", WithRetryPolicy(2, time.Millisecond, time.Millisecond, 2))
	noSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "/broken", nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.True(t, errors.Is(err, ErrServerError))

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls)) // initial + 2 retries
}

func TestDoNonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	noSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "/bad", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDoHonorsRetryAfterHeader(t *testing.T) {
	var calls int32
	var gotBackoff time.Duration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	c.sleepFunc = func(ctx context.Context, d time.Duration) error {
		gotBackoff = d
		return nil
	}

	resp, err := c.Do(context.Background(), http.MethodGet, "/throttled", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 7*time.Second, gotBackoff)
}

func TestCalcBackoffRespectsMaxDelay(t *testing.T) {
	c := New("http://example.com", "key")

	backoff := c.calcBackoff(20)
	assert.LessOrEqual(t, backoff, time.Duration(float64(c.maxDelay)*jitterHigh)+1)
}

func TestSetsBearerAuthorizationHeader(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "my-secret-key")
	noSleep(c)

	resp, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer my-secret-key", gotAuth)
}
