package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeOf resolves the templated route of r, falling back to fallback when
// the router has not matched. Call it after the handler ran.
func routeOf(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
