package expire

import (
	"fmt"
	"math"
)

// Tile is a single slippy-map tile coordinate.
type Tile struct {
	Z, X, Y int
}

// String renders a tile in the conventional z/x/y path form used by both
// the expire-list file format and most tile server URL schemes.
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Key is the dedup key a Tracker stores tiles under.
func (t Tile) Key() string {
	return t.String()
}

// BBox is a WGS84 bounding box: [MinLon, MinLat] to [MaxLon, MaxLat].
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// IsValid reports whether the box has non-crossed edges and lies within
// valid lon/lat range. GetAffectedTiles returns no tiles for an invalid
// box. The zero BBox that NewBBoxFromCoords returns for an empty
// coordinate array is valid.
func (b BBox) IsValid() bool {
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// NewBBoxFromCoords derives a bounding box from a flat
// [lon, lat, lon, lat, ...] array, the same coordinate layout
// evaluator.Object uses for way/relation geometry.
func NewBBoxFromCoords(coords []float64) BBox {
	if len(coords) < 2 {
		return BBox{}
	}

	b := BBox{MinLon: coords[0], MaxLon: coords[0], MinLat: coords[1], MaxLat: coords[1]}
	for i := 2; i < len(coords); i += 2 {
		lon, lat := coords[i], coords[i+1]
		b.MinLon = math.Min(b.MinLon, lon)
		b.MaxLon = math.Max(b.MaxLon, lon)
		b.MinLat = math.Min(b.MinLat, lat)
		b.MaxLat = math.Max(b.MaxLat, lat)
	}
	return b
}

const (
	// mercatorLatLimit is the latitude at which the Web Mercator projection
	// this tile scheme is built on diverges; OSM/Google tile servers clamp
	// to it rather than reject coordinates near the poles.
	mercatorLatLimit = 85.0511287798
)

// LatLonToTile maps a WGS84 point to the OSM/Google slippy-map tile that
// contains it at the given zoom level.
func LatLonToTile(lat, lon float64, zoom int) Tile {
	lat = clamp(lat, -mercatorLatLimit, mercatorLatLimit)
	lon = clamp(lon, -180, 180)

	n := float64(uint64(1) << uint(zoom))

	x := int((lon + 180.0) / 360.0 * n)
	if x >= int(n) {
		x = int(n) - 1
	}

	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	y = clampInt(y, 0, int(n)-1)

	return Tile{Z: zoom, X: x, Y: y}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// tileRange is the rectangle of tiles, at one zoom level, that a bounding
// box touches. Tile Y grows southward, so the box's north edge (MaxLat)
// maps to the smaller Y.
type tileRange struct {
	z          int
	minX, maxX int
	minY, maxY int
}

func bboxToTileRange(bbox BBox, zoom int) tileRange {
	topLeft := LatLonToTile(bbox.MaxLat, bbox.MinLon, zoom)
	bottomRight := LatLonToTile(bbox.MinLat, bbox.MaxLon, zoom)
	return tileRange{z: zoom, minX: topLeft.X, maxX: bottomRight.X, minY: topLeft.Y, maxY: bottomRight.Y}
}

func (r tileRange) tiles() []Tile {
	out := make([]Tile, 0, (r.maxX-r.minX+1)*(r.maxY-r.minY+1))
	for x := r.minX; x <= r.maxX; x++ {
		for y := r.minY; y <= r.maxY; y++ {
			out = append(out, Tile{Z: r.z, X: x, Y: y})
		}
	}
	return out
}

// GetAffectedTiles returns every tile a bounding box touches across
// [minZoom, maxZoom].
func GetAffectedTiles(bbox BBox, minZoom, maxZoom int) []Tile {
	if !bbox.IsValid() {
		return nil
	}
	var tiles []Tile
	for z := minZoom; z <= maxZoom; z++ {
		tiles = append(tiles, bboxToTileRange(bbox, z).tiles()...)
	}
	return tiles
}

// GetAffectedTilesForPoint returns the single tile containing a point at
// each zoom level in [minZoom, maxZoom].
func GetAffectedTilesForPoint(lat, lon float64, minZoom, maxZoom int) []Tile {
	tiles := make([]Tile, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		tiles = append(tiles, LatLonToTile(lat, lon, z))
	}
	return tiles
}
