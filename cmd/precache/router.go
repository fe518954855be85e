package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/always-cache/precache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const statusPath = "/.precache"

type status struct {
	Cache     string   `json:"cache"`
	Ready     bool     `json:"ready"`
	Resources []string `json:"resources"`
	Stored    []string `json:"stored"`
}

// newRouter wires request logging, the status endpoint and the cache.
func newRouter(p *precache.Precache, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, code, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("code", code).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Get(statusPath, statusHandler(p))
	r.Handle("/*", p)
	return r
}

func statusHandler(p *precache.Precache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := status{
			Cache:     p.CacheName(),
			Ready:     p.Ready(),
			Resources: p.Resources(),
			Stored:    []string{},
		}
		if s.Ready {
			stored, err := p.Keys()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Could not list cache keys")
				http.Error(w, "Could not list cache keys", http.StatusInternalServerError)
				return
			}
			s.Stored = stored
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Could not write status")
		}
	}
}
