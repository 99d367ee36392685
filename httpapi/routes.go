package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router. A rateLimitRPM of zero disables rate limiting.
func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	if len(corsOrigins) > 0 {
		r.Use(m.CORS(corsOrigins))
	}
	if rateLimitRPM > 0 {
		r.Use(m.RateLimit(rateLimitRPM))
	}

	if h.metrics != nil {
		r.Method("GET", "/metrics", h.metrics)
	}

	// Dumps
	r.Get("/all", h.DumpAll)
	r.Get("/zall", h.DumpAllRanked)

	// Ranked sets
	r.Get("/zcard/{key}", h.ZCardinality)
	r.Get("/zrange/{key}", h.ZRange)
	// {arg} is the ranked value for GET and the expiry in seconds for PUT
	r.Get("/{key}/{arg}", h.ZRank)
	r.Post("/{key}", h.ZAdd)

	// Scalars
	r.Get("/", h.Size)
	r.Get("/{key}", h.Get)
	r.Put("/{key}", h.Set)
	r.Put("/{key}/{arg}", h.SetWithExpiry)
	r.Delete("/{key}", h.Delete)
	r.Patch("/{key}", h.Increment)

	return r
}
