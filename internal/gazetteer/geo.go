package gazetteer

import (
	"math"

	"github.com/twpayne/go-geom"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// points. Points use (lon, lat) coordinate order, matching go-geom's
// convention. Returns -1 when either point is nil.
func Haversine(origin, destination *geom.Point) float64 {
	if origin == nil || destination == nil {
		return -1
	}

	lat1 := origin.Y() * math.Pi / 180
	lat2 := destination.Y() * math.Pi / 180
	deltaLat := (destination.Y() - origin.Y()) * math.Pi / 180
	deltaLon := (destination.X() - origin.X()) * math.Pi / 180

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)

	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Distance returns the distance in kilometers between two records, or -1
// when either record has no coordinates.
func Distance(a, b *Record) float64 {
	if a == nil || b == nil {
		return -1
	}
	return Haversine(a.Point, b.Point)
}

// Enrich populates derived geographic context on every record: the
// coordinate point, a degenerate bounding box around it, and a cross
// reference to the same-state capital. Runs after a payload is loaded.
func Enrich(payload *Payload) {
	capitals := make(map[string]string, 27)
	for i := range payload.Data {
		record := &payload.Data[i]
		if record.IsCapital {
			capitals[record.StateCode] = record.ID
		}
		if record.Latitude != nil && record.Longitude != nil {
			point := geom.NewPointFlat(geom.XY, []float64{*record.Longitude, *record.Latitude})
			record.Point = point
			bounds := geom.NewBounds(geom.XY)
			bounds.Extend(point)
			record.Bounds = bounds
		}
	}
	for i := range payload.Data {
		record := &payload.Data[i]
		record.CapitalID = capitals[record.StateCode]
	}
}
