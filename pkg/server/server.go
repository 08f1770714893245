// Package server wires storage, the index service and the HTTP handlers
// into a runnable API server.
package server

import (
	"context"
	"time"

	"github.com/gorilla/mux"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/export"
	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/live"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/rollup"
	"github.com/rcookie777/pizza-api/pkg/server/monitor"
	"github.com/rcookie777/pizza-api/pkg/service"
)

var log = logging.Component("server")

// Version is reported by the health endpoint
const Version = "1.0.0"

// Server holds every component behind the HTTP API.
type Server struct {
	cfg     *config.Config
	backend *Backend
	catalog *catalog.Catalog

	svc         *service.Service
	roller      *rollup.Roller
	ingest      *ingest.Handler
	export      *export.Handler
	hub         *live.Hub
	broadcaster *live.Broadcaster

	storageMonitor *monitor.StorageMonitor
	rollupMonitor  *monitor.JobMonitor

	clock     func() time.Time
	startTime time.Time
}

// New creates a server on top of an opened backend.
func New(cfg *config.Config, backend *Backend, cat *catalog.Catalog) *Server {
	return newServer(cfg, backend, cat, time.Now)
}

func newServer(cfg *config.Config, backend *Backend, cat *catalog.Catalog, clock func() time.Time) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		catalog:   cat,
		clock:     clock,
		startTime: clock(),
	}

	s.svc = service.New(service.Options{
		Store:       backend.Store,
		Catalog:     cat,
		Index:       cfg.Index,
		BaselineLag: cfg.BaselineLag,
		Rollups:     backend.Rollups,
		Clock:       clock,
	})
	s.roller = rollup.New(backend.Store, backend.Rollups, cfg.Index.Scale)

	s.ingest = ingest.NewHandler(backend.Store, cat)
	s.export = export.NewHandler(backend.Store, cat)

	s.hub = live.NewHub(cfg.CORSOrigins)
	s.broadcaster = live.NewBroadcaster(s.hub, s.liveProducer, config.BroadcastTimeout)

	// Push a fresh index as soon as new rows land
	s.ingest.OnWrite(func([]measurement.Measurement) {
		go func() {
			if err := s.broadcaster.Push(context.Background()); err != nil {
				log.WithError(err).Warn("live push after ingest failed")
			}
		}()
	})

	s.storageMonitor = monitor.NewStorageMonitor(backend.Store, backend.Name)
	// A few missed runs in a row are tolerated before health degrades
	s.rollupMonitor = monitor.NewJobMonitor("rollup", 4*cfg.RollupInterval)

	return s
}

// Router returns the configured HTTP handler tree.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	s.SetupRoutes(router)
	return router
}

// RunHub runs the WebSocket hub until ctx is cancelled.
func (s *Server) RunHub(ctx context.Context) {
	s.hub.Run(ctx)
}

// Close releases the storage backend.
func (s *Server) Close() error {
	return s.backend.Store.Close()
}
