package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Images         *ImageHandler
	Albums         *AlbumHandler
	Directories    *DirectoryHandler
	Scan           *ScanHandler
	Events         http.HandlerFunc
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/images", func(r chi.Router) {
			r.Get("/", cfg.Images.ListImages)
			r.Get("/count", cfg.Images.CountImages)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Images.GetImage)
				r.Delete("/", cfg.Images.DeleteImage)
				r.Put("/favorite", cfg.Images.SetFavorite)
				r.Post("/favorite/toggle", cfg.Images.ToggleFavorite)
				r.Put("/rating", cfg.Images.SetRating)
				r.Get("/thumbnail", cfg.Images.Thumbnail)
				r.Get("/original", cfg.Images.Original)
			})
		})

		r.Route("/albums", func(r chi.Router) {
			r.Get("/", cfg.Albums.ListAlbums)
			r.Post("/", cfg.Albums.CreateAlbum)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Albums.GetAlbum)
				r.Put("/", cfg.Albums.UpdateAlbum)
				r.Delete("/", cfg.Albums.DeleteAlbum)
				r.Get("/images", cfg.Albums.ListAlbumImages)
				r.Post("/images", cfg.Albums.AddImages)
				r.Delete("/images", cfg.Albums.RemoveImages)
				r.Put("/images/order", cfg.Albums.ReorderImages)
			})
		})

		r.Route("/directories", func(r chi.Router) {
			r.Get("/", cfg.Directories.ListDirectories)
			r.Post("/", cfg.Directories.RegisterDirectory)
			r.Delete("/", cfg.Directories.UnregisterDirectory)
			r.Get("/tree", cfg.Directories.GetTree)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Post("/", cfg.Scan.TriggerScan)
			r.Get("/status", cfg.Scan.Status)
			r.Post("/prune", cfg.Scan.Prune)
		})

		if cfg.Events != nil {
			r.Get("/events", cfg.Events)
		}
	})

	return r
}
