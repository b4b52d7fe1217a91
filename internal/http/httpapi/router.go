package httpapi

import (
	stdhttp "net/http"
	"time"

	"server/internal/http/handlers"
	appmw "server/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the public HTTP surface. The country lookup is
// optional; without it locale detection falls back to headers only.
func NewRouter(app *handlers.App, lookup appmw.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		appmw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		appmw.Logger(app.Logger),
		appmw.CORS(app.Config.CORSOrigins),
		appmw.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		appmw.I18N("en", lookup),
	)

	r.Get("/v1/healthz", app.Health)

	// Generated renders are served straight from the file store.
	fs := stdhttp.FileServer(stdhttp.Dir(app.Config.StoragePath))
	r.Handle("/static/*", stdhttp.StripPrefix("/static/", fs))

	r.Group(func(r chi.Router) {
		r.Use(appmw.AuthJWT(app.Config.AuthSecret))

		r.Route("/v1/designs", func(r chi.Router) {
			r.Post("/", app.DesignsCreate)
			r.Get("/{id}", app.DesignGet)
			r.Get("/{id}/download", app.DesignDownload)
		})
		r.Get("/v1/usage", app.UsageGet)
		r.Get("/v1/engines", app.Engines)
	})

	return r
}
