// Package status exposes the aggregated download statistics and the
// paginated download history.
package status

import (
	"github.com/go-chi/chi/v5"

	"github.com/vidfetch/vidfetch/server/internal/kv"
)

func ApplyRouter(repo Repository, mdb *kv.Store, downloadDir string) func(chi.Router) {
	var (
		s = NewService(repo, mdb, downloadDir)
		h = NewHandler(s)
	)

	return func(r chi.Router) {
		r.Get("/stats", h.Stats())
		r.Get("/history", h.History())
	}
}
