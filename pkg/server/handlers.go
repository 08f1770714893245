package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/httpx"
	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/server/monitor"
	"github.com/rcookie777/pizza-api/pkg/service"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// legacyRestaurantID backs the /extreme-pizza aliases
const legacyRestaurantID = "extreme_pizza"

// errBadParam marks query parameter validation failures
var errBadParam = errors.New("invalid parameter")

// respondServiceError maps service and core errors to HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownEstablishment):
		httpx.RespondErrorString(w, http.StatusNotFound, "Restaurant not found")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, index.ErrNoDataAvailable):
		httpx.RespondErrorString(w, http.StatusNotFound, "No data available")
	case errors.Is(err, index.ErrInvalidInterval), errors.Is(err, errBadParam):
		httpx.RespondError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrRollupsUnavailable):
		httpx.RespondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		logging.FromContext(r.Context(), "server").WithError(err).Warn("query timed out")
		httpx.RespondErrorString(w, http.StatusGatewayTimeout, "Query timed out")
	default:
		logging.FromContext(r.Context(), "server").WithError(err).Error("request failed")
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Internal server error")
	}
}

// intParam reads an optional integer query parameter in [min, max].
func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be between %d and %d", errBadParam, name, min, max)
	}
	return v, nil
}

func intervalParam(r *http.Request) (index.Interval, error) {
	raw := r.URL.Query().Get("interval")
	if raw == "" {
		return index.IntervalHour, nil
	}
	return index.ParseInterval(raw)
}

func queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), config.QueryTimeout)
}

// handleRoot returns the service descriptor with a store connectivity check.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.HealthCheckTimeout)
	defer cancel()

	httpx.RespondJSON(w, http.StatusOK, RootResponse{
		Status:            "healthy",
		Service:           serviceName,
		Timestamp:         s.clock().UTC(),
		DatabaseConnected: s.storageMonitor.Ping(ctx) == nil,
		RestaurantsCount:  s.catalog.Len(),
	})
}

// handlePing is a liveness probe that never touches storage.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, PingResponse{Status: "ok", Timestamp: s.clock().UTC()})
}

// handleHealth returns service health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.HealthCheckTimeout)
	defer cancel()

	storageHealth := StorageHealth{Backend: s.storageMonitor.Backend(), Connected: true}
	if err := s.storageMonitor.Ping(ctx); err != nil {
		storageHealth.Connected = false
		storageHealth.Error = err.Error()
	}

	jobs := []monitor.JobStatus{s.rollupMonitor.Status()}

	overallStatus := "healthy"
	statusCode := http.StatusOK
	if !storageHealth.Connected || !s.rollupMonitor.IsHealthy() {
		overallStatus = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	httpx.RespondJSON(w, statusCode, HealthResponse{
		Status:  overallStatus,
		Version: Version,
		Uptime:  s.clock().Sub(s.startTime).Round(time.Second).String(),
		Storage: storageHealth,
		Jobs:    jobs,
		Clients: s.hub.ClientCount(),
	})
}

// handleStorageUsage returns current storage usage.
func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.HealthCheckTimeout)
	defer cancel()

	stats, err := s.storageMonitor.GetStats(ctx)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, StorageUsage{
		Backend:             s.storageMonitor.Backend(),
		TotalMeasurements:   stats.TotalMeasurements,
		TotalEstablishments: stats.TotalEstablishments,
		SizeBytes:           stats.SizeBytes,
		Oldest:              stats.Oldest,
		Newest:              stats.Newest,
	})
}

// handleRestaurants lists the catalog.
func (s *Server) handleRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants := make(map[string]RestaurantInfo, s.catalog.Len())
	for _, e := range s.catalog.All() {
		restaurants[e.ID] = RestaurantInfo{Name: e.Name, Address: e.Address}
	}
	httpx.RespondJSON(w, http.StatusOK, RestaurantsResponse{
		Restaurants: restaurants,
		Count:       len(restaurants),
	})
}

// liveProducer builds the live payload for HTTP and WebSocket clients.
func (s *Server) liveProducer(ctx context.Context) (interface{}, error) {
	snap, err := s.svc.LiveIndex(ctx)
	if err != nil {
		return nil, err
	}
	return s.liveResponse(snap), nil
}

// handleLiveIndex returns the current index snapshot.
func (s *Server) handleLiveIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := queryContext(r)
	defer cancel()

	snap, err := s.svc.LiveIndex(ctx)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, s.liveResponse(snap))
}

// handleChartData buckets raw measurements into a chart series.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "raw", s.svc.ChartSeries)
}

// handleRollups serves precomputed chart points.
func (s *Server) handleRollups(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "rollup", s.svc.RollupSeries)
}

func (s *Server) serveChart(
	w http.ResponseWriter,
	r *http.Request,
	source string,
	series func(context.Context, int, index.Interval) (*service.Chart, error),
) {
	days, err := intParam(r, "days", config.DefaultChartDays, 1, config.MaxChartDays)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	unit, err := intervalParam(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	ctx, cancel := queryContext(r)
	defer cancel()

	chart, err := series(ctx, days, unit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, chartResponse(chart, days, source))
}

// handleRestaurantData lists one restaurant's measurements, newest first.
// days takes precedence over hours when both are given.
func (s *Server) handleRestaurantData(w http.ResponseWriter, r *http.Request) {
	s.serveRestaurantData(w, r, mux.Vars(r)["id"])
}

func (s *Server) serveRestaurantData(w http.ResponseWriter, r *http.Request, id string) {
	limit, err := intParam(r, "limit", config.DefaultDataLimit, 1, config.MaxDataLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	days, err := intParam(r, "days", 0, 1, config.MaxChartDays)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	hours, err := intParam(r, "hours", 0, 1, config.MaxChartDays*24)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var since time.Duration
	switch {
	case days > 0:
		since = time.Duration(days) * 24 * time.Hour
	case hours > 0:
		since = time.Duration(hours) * time.Hour
	}

	ctx, cancel := queryContext(r)
	defer cancel()

	rows, err := s.svc.EstablishmentData(ctx, id, since, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, rows)
}

// handleRestaurantLatest returns one restaurant's newest measurement.
func (s *Server) handleRestaurantLatest(w http.ResponseWriter, r *http.Request) {
	s.serveRestaurantLatest(w, r, mux.Vars(r)["id"])
}

func (s *Server) serveRestaurantLatest(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := queryContext(r)
	defer cancel()

	m, err := s.svc.EstablishmentLatest(ctx, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, m)
}

// handleRestaurantStats summarizes one restaurant over the last N days.
// An empty window is reported with data_points 0 rather than an error.
func (s *Server) handleRestaurantStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	days, err := intParam(r, "days", config.DefaultStatsDays, 1, config.MaxChartDays)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	ctx, cancel := queryContext(r)
	defer cancel()

	st, err := s.svc.EstablishmentStats(ctx, id, days)
	if errors.Is(err, index.ErrNoDataAvailable) {
		e, _ := s.catalog.Get(id)
		httpx.RespondJSON(w, http.StatusOK, StatsResponse{
			RestaurantID:   id,
			RestaurantName: e.Name,
			PeriodDays:     days,
			Message:        "No data available for the specified period",
		})
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	e, _ := s.catalog.Get(id)
	httpx.RespondJSON(w, http.StatusOK, statsResponse(e, days, st))
}

// handleLatestData returns the newest measurement of every restaurant.
func (s *Server) handleLatestData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := queryContext(r)
	defer cancel()

	entries, err := s.svc.LatestByEstablishment(ctx)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := LatestDataResponse{
		Timestamp:   s.clock().UTC(),
		Restaurants: make(map[string]LatestDataEntry, len(entries)),
	}
	for _, e := range entries {
		resp.Restaurants[e.Establishment.ID] = LatestDataEntry{
			Restaurant: e.Establishment,
			LatestData: e.Latest,
		}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// handleSummary summarizes every restaurant over the last N days.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", config.DefaultSummaryDays, 1, config.MaxChartDays)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	ctx, cancel := queryContext(r)
	defer cancel()

	sum, err := s.svc.Summary(ctx, days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, summaryResponse(sum, days))
}

// handleLegacyLive aliases /restaurant/extreme_pizza/latest.
func (s *Server) handleLegacyLive(w http.ResponseWriter, r *http.Request) {
	s.serveRestaurantLatest(w, r, legacyRestaurantID)
}

// handleLegacyHistory aliases /restaurant/extreme_pizza/data.
func (s *Server) handleLegacyHistory(w http.ResponseWriter, r *http.Request) {
	s.serveRestaurantData(w, r, legacyRestaurantID)
}
