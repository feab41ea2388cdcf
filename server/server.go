package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"DhammaFM/config"
	"DhammaFM/logger"
)

// NewRouter builds the full route table with CORS enabled.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Catalog
	router.HandleFunc("/api/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/refresh", h.RefreshHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/progress", h.GetProgressHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/progress", h.ResetProgressHandler).Methods(http.MethodDelete)

	// Downloads and cache
	router.HandleFunc("/api/downloads", h.GetDownloadsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/download", h.DownloadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/downloads/{id}", h.RemoveDownloadHandler).Methods(http.MethodDelete)

	// Schedules
	router.HandleFunc("/api/schedules", h.GetSchedulesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/schedules", h.CreateScheduleHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/schedules/{id}", h.UpdateScheduleHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/schedules/{id}", h.DeleteScheduleHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/schedules/{id}/enabled", h.SetScheduleEnabledHandler).Methods(http.MethodPost)

	// Player
	router.HandleFunc("/api/player/select", h.SelectTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/play", h.PlayTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/toggle", h.TogglePlayPauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", h.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/skip-forward", h.SkipForwardHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/skip-backward", h.SkipBackwardHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/stop", h.StopHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/state", h.PlayerStateHandler).Methods(http.MethodGet)

	// Live state
	router.HandleFunc("/ws/player", h.PlayerSocketHandler)

	return router
}

// Start runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// gracefully within five seconds.
func Start(cfg *config.Config, h *APIHandler) error {
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      NewRouter(h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-stop:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
