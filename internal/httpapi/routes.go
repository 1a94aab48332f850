// Package httpapi is the thin JSON HTTP adapter around the core facade.
// It exists only so the "server" CLI action is runnable end to end;
// deliberately unambitious: one content type, one router, no custom DSL.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/facade"
)

// NewRouter builds the full request-handling chain: request-id + logging
// middleware wraps every route, a session-check middleware additionally
// guards the write routes.
func NewRouter(f *facade.Facade, log *zap.Logger) http.Handler {
	h := &handlers{f: f, log: log}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/{supermarket}", h.getProducts)
		r.Get("/products/{supermarket}/search", h.getProductsByName)
		r.Get("/product/{supermarket}/{identifier}", h.getProduct)
		r.Get("/product/{supermarket}/{identifier}/history", h.getProductHistory)
		r.Get("/productlog/{supermarket}", h.getRecentProductlog)
		r.Get("/productclass/{id}", h.getProductclass)
		r.Get("/tags", h.getTags)
		r.Get("/permissions", h.checkPermissions)

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware(h))
			r.Post("/product/{supermarket}", h.addProduct)
			r.Post("/product/{supermarket}/image", h.addProductImageCitation)
			r.Post("/productclass/absorb", h.absorbProductclass)
			r.Post("/tagcategory", h.findAddTagcategory)
			r.Post("/tag", h.findAddTag)
			r.Post("/tag/bind", h.bindTag)
			r.Post("/tag/parent", h.updateTagSetParent)
			r.Post("/tag/absorb", h.absorbTag)
		})

		r.Post("/session/ticket", h.generateSessionticket)
		r.Post("/session", h.createSession)
	})

	return r
}
