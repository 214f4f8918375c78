package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"videogenie/internal/httpapi/handlers"
	"videogenie/internal/httpkit"
	"videogenie/internal/metrics"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	CORSOrigins    []string
	RequestTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
		MaxAgeSeconds:  600,
	}))
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// ---- JOBS ----
	r.Post("/jobs", wrap(h.PostJob))
	r.Get("/jobs", wrap(h.ListJobs))
	r.Get("/jobs/{jobId}", wrap(h.GetJob))
	r.Get("/jobs/{jobId}/video", wrap(h.GetJobVideo))

	// ---- AVATAR RENDERS ----
	r.Post("/render", wrap(h.PostRender))
	r.Get("/status/{jobId}", wrap(h.GetStatus))

	// ---- AVATARS ----
	r.Get("/avatars", wrap(h.ListAvatars))
	r.Put("/avatars/{avatarId}", wrap(h.PutAvatar))
	r.Delete("/avatars/{avatarId}", wrap(h.DeleteAvatar))

	r.NotFound(wrap(func(w http.ResponseWriter, r *http.Request) error {
		return errors.NotFound("route", r.URL.Path)
	}))
	return r
}
