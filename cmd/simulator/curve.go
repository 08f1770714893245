package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/producer"
)

// hourlyProfile is a typical weekday busyness curve for a pizza place, by local hour
var hourlyProfile = [24]float64{
	8, 4, 2, 0, 0, 0, 0, 0, 0, 3, 8, 22,
	48, 55, 38, 24, 22, 34, 58, 66, 57, 40, 26, 15,
}

const (
	weekendFactor = 1.2
	jitterStdDev  = 6.0
)

// Curve produces deterministic synthetic popularity readings
type Curve struct {
	loc *time.Location
	rnd *rand.Rand
}

// NewCurve creates a curve evaluated in loc
func NewCurve(loc *time.Location, seed int64) *Curve {
	if loc == nil {
		loc = time.UTC
	}
	return &Curve{loc: loc, rnd: rand.New(rand.NewSource(seed))}
}

// Expected returns the noise-free popularity of a restaurant at ts
func (c *Curve) Expected(restaurantID string, ts time.Time) float64 {
	local := ts.In(c.loc)

	// Interpolate between hours so the feed has no hourly steps
	h := local.Hour()
	frac := float64(local.Minute()) / 60
	v := hourlyProfile[h]*(1-frac) + hourlyProfile[(h+1)%24]*frac

	if wd := local.Weekday(); wd == time.Friday || wd == time.Saturday {
		v *= weekendFactor
	}
	return v * restaurantScale(restaurantID)
}

// Reading returns a jittered reading clamped to the ingest bounds
func (c *Curve) Reading(restaurantID string, ts time.Time) ingest.Row {
	v := c.Expected(restaurantID, ts) + c.rnd.NormFloat64()*jitterStdDev
	p := int(math.Round(math.Max(0, math.Min(100, v))))
	return producer.Reading(restaurantID, ts, p)
}

// restaurantScale gives each restaurant a stable size factor in [0.7, 1.1)
func restaurantScale(restaurantID string) float64 {
	return 0.7 + float64(xxhash.Sum64String(restaurantID)%400)/1000
}
