package booking

import (
	"cmp"
	"math"
	"slices"

	"github.com/iliyamo/kart-rental/internal/model"
)

// Point is a position given as latitude and longitude.
type Point struct {
	Lat float64
	Lng float64
}

// Distance is the planar distance between p and k on the
// (longitude, latitude) plane.  It is only meant for ordering.
func Distance(p Point, k model.Kart) float64 {
	return math.Hypot(k.Longitude-p.Lng, k.Latitude-p.Lat)
}

// RankByDistance returns a copy of karts ordered nearest first.  Karts at
// the same distance keep their input order.
func RankByDistance(p Point, karts []model.Kart) []model.Kart {
	out := slices.Clone(karts)
	slices.SortStableFunc(out, func(a, b model.Kart) int {
		return cmp.Compare(Distance(p, a), Distance(p, b))
	})
	return out
}
