package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

// Options tunes the router middleware chain.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	DefaultLocale   string
	RateLimitPerMin int
	Logger          infra.Logger
}

// NewRouter wires the public API surface. The provider callback route sits
// outside JWT auth; it authenticates with the shared callback token instead.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/callbacks/kling", app.KlingCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Post("/v1/videos", app.VideosCreate)
		r.Post("/v1/influencers", app.InfluencersCreate)

		r.Route("/v1/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Post("/cancel", app.JobCancel)
			r.Get("/assets", app.JobAssets)
		})

		r.Get("/v1/pipelines/{pipeline_id}", app.PipelineStatus)
	})

	return r
}
