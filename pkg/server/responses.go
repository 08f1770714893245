package server

import (
	"math"
	"time"

	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/server/monitor"
	"github.com/rcookie777/pizza-api/pkg/service"
)

// Index identity shown by the live endpoint
const (
	indexID          = "pizza"
	indexName        = "Pentagon Pizza Index"
	indexSymbol      = "PZZA"
	indexDescription = "Real-time pizza demand index around the Pentagon"
	indexMethodology = "Aggregates current popularity data from major pizza establishments around the Pentagon area. " +
		"Higher values indicate increased demand and potential economic activity."
	serviceName = "restaurant-popular-times-api"
)

var indexDataSources = []string{"Google Maps Popular Times"}

// round1 rounds to one decimal place
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round1Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round1(*v)
	return &r
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Status            string    `json:"status"`
	Service           string    `json:"service"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	RestaurantsCount  int       `json:"restaurants_count"`
}

// PingResponse is returned by GET /health.
type PingResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status  string              `json:"status"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
	Storage StorageHealth       `json:"storage"`
	Jobs    []monitor.JobStatus `json:"jobs"`
	Clients int                 `json:"websocket_clients"`
}

// StorageHealth reports backend reachability.
type StorageHealth struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// StorageUsage is returned by GET /v1/storage.
type StorageUsage struct {
	Backend             string    `json:"backend"`
	TotalMeasurements   uint64    `json:"total_measurements"`
	TotalEstablishments uint64    `json:"total_restaurants"`
	SizeBytes           uint64    `json:"size_bytes"`
	Oldest              time.Time `json:"oldest"`
	Newest              time.Time `json:"newest"`
}

// RestaurantInfo is one catalog entry keyed by id.
type RestaurantInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// RestaurantsResponse is returned by GET /restaurants.
type RestaurantsResponse struct {
	Restaurants map[string]RestaurantInfo `json:"restaurants"`
	Count       int                       `json:"count"`
}

// IndexInfo describes the index and its current value.
type IndexInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	Value         float64  `json:"value"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	Description   string   `json:"description"`
	Methodology   string   `json:"methodology"`
	DataSources   []string `json:"dataSources"`
}

// LiveMetadata carries the snapshot counters.
type LiveMetadata struct {
	Timestamp            time.Time `json:"timestamp"`
	TotalPopularity      int       `json:"total_popularity"`
	AvgPopularity        float64   `json:"avg_popularity"`
	ActiveRestaurants    int       `json:"active_restaurants"`
	ReportingRestaurants int       `json:"reporting_restaurants"`
	TotalRestaurants     int       `json:"total_restaurants"`
	HasBaseline          bool      `json:"has_baseline"`
}

// LiveRestaurant is one establishment's contribution to the snapshot.
type LiveRestaurant struct {
	Restaurant measurement.Establishment `json:"restaurant"`
	Popularity int                       `json:"popularity"`
	Rating     *float64                  `json:"rating"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// LiveResponse is returned by GET /pizza-index/live and pushed over WebSocket.
type LiveResponse struct {
	Index       IndexInfo                 `json:"index"`
	Metadata    LiveMetadata              `json:"metadata"`
	Restaurants map[string]LiveRestaurant `json:"restaurants"`
}

func (s *Server) liveResponse(snap index.Snapshot) LiveResponse {
	restaurants := make(map[string]LiveRestaurant, len(snap.PerEstablishment))
	for id, m := range snap.PerEstablishment {
		e, _ := s.catalog.Get(id)
		restaurants[id] = LiveRestaurant{
			Restaurant: e,
			Popularity: m.Popularity,
			Rating:     m.Rating,
			Timestamp:  m.Timestamp,
		}
	}

	return LiveResponse{
		Index: IndexInfo{
			ID:            indexID,
			Name:          indexName,
			Symbol:        indexSymbol,
			Value:         round1(snap.Value),
			Change:        round1(snap.Change),
			ChangePercent: round1(snap.ChangePercent),
			Description:   indexDescription,
			Methodology:   indexMethodology,
			DataSources:   indexDataSources,
		},
		Metadata: LiveMetadata{
			Timestamp:            snap.Timestamp,
			TotalPopularity:      snap.TotalPopularity,
			AvgPopularity:        round1(snap.AvgPopularity),
			ActiveRestaurants:    snap.ActiveCount,
			ReportingRestaurants: snap.ReportingCount,
			TotalRestaurants:     snap.TotalCount,
			HasBaseline:          snap.HasBaseline,
		},
		Restaurants: restaurants,
	}
}

// ChartPoint is a chart point with display rounding applied.
type ChartPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	AvgPopularity float64   `json:"avg_popularity"`
	DataPoints    int       `json:"data_points"`
}

// ChartResponse is returned by the chart and rollup endpoints.
type ChartResponse struct {
	ChartData       []ChartPoint   `json:"chart_data"`
	PeriodDays      int            `json:"period_days"`
	Interval        index.Interval `json:"interval"`
	TotalDataPoints int            `json:"total_data_points"`
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	Source          string         `json:"source"`
}

func chartResponse(chart *service.Chart, days int, source string) ChartResponse {
	resp := ChartResponse{
		ChartData:   make([]ChartPoint, 0, len(chart.Points)),
		PeriodDays:  days,
		Interval:    chart.Interval,
		WindowStart: chart.WindowStart,
		WindowEnd:   chart.WindowEnd,
		Source:      source,
	}
	for _, p := range chart.Points {
		resp.ChartData = append(resp.ChartData, ChartPoint{
			Timestamp:     p.BucketStart,
			Value:         round1(p.Value),
			AvgPopularity: round1(p.AvgPopularity),
			DataPoints:    p.SampleCount,
		})
		resp.TotalDataPoints += p.SampleCount
	}
	return resp
}

// PopularityStats summarizes current_popularity over a window.
type PopularityStats struct {
	Latest  int     `json:"latest"`
	Average float64 `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	P99     float64 `json:"p99"`
}

// RatingStats summarizes ratings over a window.
type RatingStats struct {
	Latest  *float64 `json:"latest"`
	Average *float64 `json:"average"`
	Count   int      `json:"count"`
	Reviews *int     `json:"reviews,omitempty"`
}

// StatsResponse is returned by GET /restaurant/{id}/stats.
type StatsResponse struct {
	RestaurantID      string                   `json:"restaurant_id"`
	RestaurantName    string                   `json:"restaurant_name"`
	PeriodDays        int                      `json:"period_days"`
	DataPoints        int                      `json:"data_points"`
	Message           string                   `json:"message,omitempty"`
	LatestData        *measurement.Measurement `json:"latest_data,omitempty"`
	FirstData         *measurement.Measurement `json:"first_data,omitempty"`
	CurrentPopularity *PopularityStats         `json:"current_popularity,omitempty"`
	Rating            *RatingStats             `json:"rating,omitempty"`
	Trend             index.Trend              `json:"trend,omitempty"`
}

func popularityStats(st index.StatsSummary) *PopularityStats {
	return &PopularityStats{
		Latest:  st.Last.Popularity,
		Average: round1(st.Mean),
		Min:     st.Min,
		Max:     st.Max,
		P50:     round1(st.P50),
		P90:     round1(st.P90),
		P99:     round1(st.P99),
	}
}

func ratingStats(st index.StatsSummary) *RatingStats {
	return &RatingStats{
		Latest:  st.LatestRating,
		Average: round1Ptr(st.RatingMean),
		Count:   st.RatedCount,
		Reviews: st.LatestReviews,
	}
}

func statsResponse(e measurement.Establishment, days int, st index.StatsSummary) StatsResponse {
	last, first := st.Last, st.First
	return StatsResponse{
		RestaurantID:      e.ID,
		RestaurantName:    e.Name,
		PeriodDays:        days,
		DataPoints:        st.Count,
		LatestData:        &last,
		FirstData:         &first,
		CurrentPopularity: popularityStats(st),
		Rating:            ratingStats(st),
		Trend:             st.Trend,
	}
}

// LatestDataEntry pairs an establishment with its newest measurement.
type LatestDataEntry struct {
	Restaurant measurement.Establishment `json:"restaurant"`
	LatestData *measurement.Measurement  `json:"latest_data"`
}

// LatestDataResponse is returned by GET /data/latest.
type LatestDataResponse struct {
	Timestamp   time.Time                  `json:"timestamp"`
	Restaurants map[string]LatestDataEntry `json:"restaurants"`
}

// SummaryEntry is one establishment inside a SummaryResponse.
type SummaryEntry struct {
	Restaurant        measurement.Establishment `json:"restaurant"`
	DataPoints        int                       `json:"data_points"`
	LatestData        measurement.Measurement   `json:"latest_data"`
	CurrentPopularity *PopularityStats          `json:"current_popularity"`
	Rating            *RatingStats              `json:"rating"`
	Trend             index.Trend               `json:"trend"`
}

// SummaryResponse is returned by GET /data/summary.
type SummaryResponse struct {
	PeriodDays      int                     `json:"period_days"`
	TotalDataPoints int                     `json:"total_data_points"`
	WindowStart     time.Time               `json:"window_start"`
	WindowEnd       time.Time               `json:"window_end"`
	Restaurants     map[string]SummaryEntry `json:"restaurants"`
}

func summaryResponse(sum *service.Summary, days int) SummaryResponse {
	resp := SummaryResponse{
		PeriodDays:      days,
		TotalDataPoints: sum.TotalDataPoints,
		WindowStart:     sum.WindowStart,
		WindowEnd:       sum.WindowEnd,
		Restaurants:     make(map[string]SummaryEntry, len(sum.Establishments)),
	}
	for _, e := range sum.Establishments {
		resp.Restaurants[e.Establishment.ID] = SummaryEntry{
			Restaurant:        e.Establishment,
			DataPoints:        e.Stats.Count,
			LatestData:        e.Stats.Last,
			CurrentPopularity: popularityStats(e.Stats),
			Rating:            ratingStats(e.Stats),
			Trend:             e.Stats.Trend,
		}
	}
	return resp
}
