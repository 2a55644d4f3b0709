//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "foundationsd/docs"
)

// SwaggerBuilt reports whether /swagger/* is served by this binary.
const SwaggerBuilt = true

// MountSwagger serves the UI and doc.json under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
