package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blogmedia/blogmedia/backend/internal/setup"
	mw "github.com/blogmedia/blogmedia/shared/middleware"
	"github.com/blogmedia/blogmedia/shared/middleware/metrics"
)

// New builds the HTTP API. Reads are public, writes need an author token and
// sweeps need an admin token.
func New(deps *setup.Dependencies) http.Handler {
	cfg := deps.Config.Public.HTTP
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(mw.SecurityHeaders(cfg.HTTPS))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CorsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}

	h := deps.Handler
	authMw := deps.AuthMiddleware

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Objects on local disk are served under the public base URL's path.
	if deps.LocalFiles != nil {
		if prefix := localMediaPrefix(deps.Config.Public.Storage.PublicBaseURL); prefix != "" {
			fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(deps.LocalFiles.Root())))
			r.Handle(prefix+"*", noDirListing(fileServer))
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Timeout(requestTimeout(cfg.RequestTimeout)))

		v1.Get("/posts/{post}", h.GetPost)
		v1.Get("/files/{file}", h.DownloadFile)

		v1.Group(func(authors chi.Router) {
			authors.Use(authMw.NeedAuth())
			authors.Post("/posts", h.CreatePost)
			authors.Put("/posts/{post}", h.UpdatePost)
			authors.Delete("/posts/{post}", h.DeletePost)
			authors.With(mw.RateLimit(deps.UploadLimiter, mw.GetUserIDFromContext)).Post("/files", h.UploadFile)
		})

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(authMw.AdminOnly())
			admin.Post("/media/sweep", h.RunSweep)
			admin.Get("/media/sweep", h.LastSweep)
		})
	})

	return r
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// localMediaPrefix extracts "/media/" from "http://host/media".
func localMediaPrefix(publicBaseURL string) string {
	rest := publicBaseURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	i := strings.Index(rest, "/")
	if i < 0 {
		return ""
	}
	path := strings.TrimRight(rest[i:], "/")
	if path == "" {
		return ""
	}
	return path + "/"
}
