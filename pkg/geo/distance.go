package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// WeightMillimeters returns the great-circle distance between a and b in
// millimeters, rounded, and never zero so that every edge has a cost.
func WeightMillimeters(a, b orb.Point) uint32 {
	mm := math.Round(orbgeo.DistanceHaversine(a, b) * 1000)
	if mm < 1 {
		return 1
	}
	if mm >= math.MaxUint32 {
		return math.MaxUint32 - 1
	}
	return uint32(mm)
}
