package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	})

	t.Run("labels by route pattern", func(t *testing.T) {
		before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/posts/{id}", "200"))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/posts/42", nil))

		assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/posts/{id}", "200")))
	})

	t.Run("records error status", func(t *testing.T) {
		before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/files", "413"))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/files", strings.NewReader("payload")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/files", "413")))
	})

	t.Run("in flight returns to zero", func(t *testing.T) {
		assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
	})
}
