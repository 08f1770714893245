package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all HTTP routes for the server.
func (s *Server) SetupRoutes(router *mux.Router) {
	router.Use(requestLogMiddleware)
	router.Use(recoveryMiddleware)
	router.Use(corsMiddleware(s.cfg.CORSOrigins))

	// Service descriptor and probes
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handlePing).Methods(http.MethodGet)

	// Catalog and index
	router.HandleFunc("/restaurants", s.handleRestaurants).Methods(http.MethodGet)
	router.HandleFunc("/pizza-index/live", s.handleLiveIndex).Methods(http.MethodGet)
	router.HandleFunc("/pizza-index/chart-data", s.handleChartData).Methods(http.MethodGet)
	router.HandleFunc("/pizza-index/rollups", s.handleRollups).Methods(http.MethodGet)

	// Per-restaurant data
	router.HandleFunc("/restaurant/{id}/data", s.handleRestaurantData).Methods(http.MethodGet)
	router.HandleFunc("/restaurant/{id}/latest", s.handleRestaurantLatest).Methods(http.MethodGet)
	router.HandleFunc("/restaurant/{id}/stats", s.handleRestaurantStats).Methods(http.MethodGet)

	// All-restaurant views
	router.HandleFunc("/data/latest", s.handleLatestData).Methods(http.MethodGet)
	router.HandleFunc("/data/summary", s.handleSummary).Methods(http.MethodGet)

	// Legacy aliases
	router.HandleFunc("/extreme-pizza/live", s.handleLegacyLive).Methods(http.MethodGet)
	router.HandleFunc("/extreme-pizza/history", s.handleLegacyHistory).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/ingest", s.ingest.HandleIngest).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/storage", s.handleStorageUsage).Methods(http.MethodGet)

	// WebSocket for live index updates
	api.HandleFunc("/ws", s.hub.HandleWebSocket(s.broadcaster.Message)).Methods(http.MethodGet)

	// Export/import
	api.HandleFunc("/export", s.export.HandleExport).Methods(http.MethodGet)
	api.HandleFunc("/import", s.export.HandleImport).Methods(http.MethodPost, http.MethodOptions)
}
