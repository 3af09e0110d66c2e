// Package proj reprojects coordinate arrays between the SRIDs a style
// script's geometry/area columns can target. The evaluator bridge builds
// every geometry in the geometry builder's native SRID first and only
// reprojects the coordinate array afterward, on a column's explicit
// request — see internal/evaluator's maybeReproject.
package proj

import (
	"fmt"
	"math"
)

const (
	SRID4326 = 4326 // WGS84 lon/lat, the wire format every OSM primitive arrives in
	SRID3857 = 3857 // Web Mercator, the common tile-rendering projection
)

// Reprojector converts coordinates from one SRID to another. Only the pair
// this pipeline actually needs — WGS84 in, Web Mercator out, or a no-op
// when source and target match — is implemented; anything else would need
// a full projection library (proj4/GDAL bindings), which none of the
// OSM-to-PostGIS tooling this project is built on pulls in either.
type Reprojector struct {
	from, to int
}

// NewReprojector builds a Reprojector for the given source/target SRID pair.
func NewReprojector(from, to int) (*Reprojector, error) {
	if from != SRID4326 {
		return nil, fmt.Errorf("proj: unsupported source SRID %d (only %d supported)", from, SRID4326)
	}
	if to != SRID4326 && to != SRID3857 {
		return nil, fmt.Errorf("proj: unsupported target SRID %d (only %d and %d supported)", to, SRID4326, SRID3857)
	}
	return &Reprojector{from: from, to: to}, nil
}

// ReprojectCoords rewrites a flat [lon, lat, lon, lat, ...] array in place.
func (r *Reprojector) ReprojectCoords(coords []float64) {
	if r.from == r.to {
		return
	}
	for i := 0; i < len(coords); i += 2 {
		coords[i], coords[i+1] = wgs84ToWebMercator(coords[i], coords[i+1])
	}
}

const (
	webMercatorEarthRadius = 6378137.0          // WGS84 semi-major axis, meters
	webMercatorMaxExtent   = 20037508.342789244 // half-circumference at the equator, meters
	webMercatorMaxLat      = 85.06              // beyond this the projection diverges to infinity
)

// wgs84ToWebMercator projects a single WGS84 lon/lat pair to EPSG:3857
// meters; y = R * ln(tan(pi/4 + phi/2)) is the standard spherical Mercator
// formula, the same one every slippy-map tile server uses.
func wgs84ToWebMercator(lon, lat float64) (x, y float64) {
	if lat > webMercatorMaxLat {
		lat = webMercatorMaxLat
	} else if lat < -webMercatorMaxLat {
		lat = -webMercatorMaxLat
	}

	x = lon * webMercatorMaxExtent / 180.0

	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * webMercatorEarthRadius

	return x, y
}

// ParseSRID accepts a bare SRID number or an "EPSG:nnnn" form, as used by
// the --projection flag and a column's projection option.
func ParseSRID(s string) (int, error) {
	switch s {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("proj: unsupported projection %q (supported: 4326, 3857)", s)
	}
}
