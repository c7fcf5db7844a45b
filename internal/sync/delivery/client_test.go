package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

func sampleSubmission() *models.QueuedSubmission {
	return &models.QueuedSubmission{
		ID:           "q-1",
		SubmissionID: "sub-1",
		ResponseData: map[string]interface{}{"passOrFail": "Pass"},
		GPS:          &models.GPS{Latitude: "1.5", Longitude: "2.5", Accuracy: "10"},
		DeviceInfo:   map[string]interface{}{"platform": "ios"},
		QueuedAt:     1700000000000,
	}
}

// TestNewClient_invalidBaseURL verifies the base URL is validated.
func TestNewClient_invalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/only"} {
		_, err := NewClient(Config{BaseURL: raw}, nil)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
	}
}

// TestCompletionURL verifies path joining and escaping.
func TestCompletionURL(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://jobs.example.com/tenant/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://jobs.example.com/tenant/api/form-submissions/sub-1/complete", c.CompletionURL("sub-1"))
	assert.Equal(t, "https://jobs.example.com/tenant/api/form-submissions/a%2Fb/complete", c.CompletionURL("a/b"))
}

// TestDeliver_success verifies method, path, headers and body.
func TestDeliver_success(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/form-submissions/sub-1/complete", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "q-1", r.Header.Get("X-Offline-Queue-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, AuthToken: "secret"}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, c.Deliver(context.Background(), sampleSubmission()))
	assert.Equal(t, true, gotBody["offline"])
	assert.Equal(t, map[string]interface{}{"passOrFail": "Pass"}, gotBody["responseData"])
	assert.Equal(t, map[string]interface{}{"latitude": "1.5", "longitude": "2.5", "accuracy": "10"}, gotBody["gps"])
	assert.Equal(t, map[string]interface{}{"platform": "ios"}, gotBody["deviceInfo"])
}

// TestDeliver_nonSuccessStatus verifies every non-2xx status is a delivery error.
func TestDeliver_nonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))

		c, err := NewClient(Config{BaseURL: srv.URL}, nil)
		require.NoError(t, err)

		err = c.Deliver(context.Background(), sampleSubmission())
		srv.Close()

		require.Error(t, err, "status %d", status)
		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errors.ErrDelivery, appErr.Code)
		assert.Equal(t, status, appErr.StatusCode)
	}
}

// TestDeliver_redirectIsFailure verifies a redirected completion is never
// acknowledged by the redirect target, for the default and an injected client.
func TestDeliver_redirectIsFailure(t *testing.T) {
	for _, status := range []int{http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect} {
		for _, injected := range []bool{false, true} {
			var followed atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
				followed.Add(1)
				w.WriteHeader(http.StatusOK)
			})
			mux.HandleFunc("/api/form-submissions/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/login", status)
			})
			srv := httptest.NewServer(mux)

			var hc *http.Client
			if injected {
				hc = srv.Client()
			}
			c, err := NewClient(Config{BaseURL: srv.URL}, hc)
			require.NoError(t, err)

			err = c.Deliver(context.Background(), sampleSubmission())
			srv.Close()

			require.Error(t, err, "status %d injected=%v", status, injected)
			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errors.ErrDelivery, appErr.Code)
			assert.Equal(t, status, appErr.StatusCode)
			assert.Zero(t, followed.Load(), "redirect target must not be requested")
		}
	}
}

// TestNewClient_doesNotModifyInjectedClient verifies the caller's client keeps its settings.
func TestNewClient_doesNotModifyInjectedClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	_, err := NewClient(Config{BaseURL: "http://localhost:1"}, hc)
	require.NoError(t, err)
	assert.Nil(t, hc.CheckRedirect)
}

// TestDeliver_transportError verifies an unreachable backend is a delivery error.
func TestDeliver_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	err = c.Deliver(context.Background(), sampleSubmission())
	assert.True(t, errors.IsDelivery(err))
}

// TestDeliver_timeout verifies a hung backend is bounded by the client timeout.
func TestDeliver_timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	err = c.Deliver(context.Background(), sampleSubmission())
	assert.True(t, errors.IsDelivery(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestDeliver_rateLimited verifies pacing spaces requests apart.
func TestDeliver_rateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, RatePerSecond: 20}, srv.Client())
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Deliver(context.Background(), sampleSubmission()))
	}
	// burst of 1 at 20/s: the 2nd and 3rd calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

// TestPing verifies the health probe.
func TestPing(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	assert.NoError(t, c.Ping(context.Background()))
	healthy.Store(false)
	assert.True(t, errors.IsDelivery(c.Ping(context.Background())))
}
