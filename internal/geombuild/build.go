package geombuild

import (
	"fmt"

	"github.com/flexosm/flex2pg/internal/wkb"
)

// Builder turns OSM primitives into WKB geometry, backed by one reusable
// encoder so a worker doing many objects in a row avoids reallocating.
type Builder struct {
	enc *wkb.Encoder
}

// NewBuilder creates a geometry builder targeting the given SRID.
func NewBuilder(srid int) *Builder {
	return &Builder{enc: wkb.NewEncoderWithSRID(256, srid)}
}

// SRID returns the builder's output SRID.
func (b *Builder) SRID() int { return b.enc.SRID() }

// Point builds a point geometry for a node.
func (b *Builder) Point(lon, lat float64) []byte {
	wkbBytes := b.enc.EncodePoint(lon, lat)
	out := make([]byte, len(wkbBytes))
	copy(out, wkbBytes)
	return out
}

// LineString builds a linestring geometry from a way's coordinates.
// coords is a flat [lon0, lat0, lon1, lat1, ...] array; at least two
// distinct points are required.
func (b *Builder) LineString(coords []float64) ([]byte, error) {
	coords = collapseZeroLengthSegments(coords)
	if len(coords) < 4 {
		return nil, &ConstructionError{Reason: "linestring needs at least two distinct points"}
	}
	wkbBytes := b.enc.EncodeLineString(coords)
	return cloneBytes(wkbBytes), nil
}

// Polygon builds a single-ring polygon from a closed way's coordinates.
func (b *Builder) Polygon(coords []float64) ([]byte, error) {
	coords = collapseZeroLengthSegments(coords)
	if len(coords) < 8 || coords[0] != coords[len(coords)-2] || coords[1] != coords[len(coords)-1] {
		return nil, &ConstructionError{Reason: "polygon requires a closed ring of at least four points"}
	}
	wkbBytes := b.enc.EncodePolygon(coords)
	return cloneBytes(wkbBytes), nil
}

// Multipolygon assembles a multipolygon/boundary relation's member ways
// into either a single-shell polygon or a multipolygon, per §4.3's rule
// that a one-shell result is emitted as a plain polygon.
func (b *Builder) Multipolygon(relationID int64, members []Member) ([]byte, error) {
	polygons, err := BuildMultipolygon(relationID, members)
	if err != nil {
		return nil, err
	}
	if len(polygons) == 0 {
		return nil, &ConstructionError{Reason: fmt.Sprintf("relation %d produced no polygons", relationID)}
	}
	if len(polygons) == 1 {
		wkbBytes := b.enc.EncodePolygonWithRings(polygons[0])
		return cloneBytes(wkbBytes), nil
	}
	wkbBytes := b.enc.EncodeMultiPolygon(polygons)
	return cloneBytes(wkbBytes), nil
}

// MultiLineString renders a relation as a multilinestring of its member
// ways' coordinates, for emitters that request that shape instead of a
// merged polygon.
func (b *Builder) MultiLineString(members []Member) ([]byte, error) {
	lines := make([][]float64, 0, len(members))
	for _, m := range members {
		coords := collapseZeroLengthSegments(m.Coords)
		if len(coords) >= 4 {
			lines = append(lines, coords)
		}
	}
	if len(lines) == 0 {
		return nil, &ConstructionError{Reason: "no usable member ways for multilinestring"}
	}
	wkbBytes := b.enc.EncodeMultiLineString(lines)
	return cloneBytes(wkbBytes), nil
}

// GeometryCollection renders a relation's member ways as a heterogeneous
// collection: closed ways embed as polygons, open ways as linestrings.
func (b *Builder) GeometryCollection(members []Member) ([]byte, error) {
	geoms := make([]wkb.Geom, 0, len(members))
	for _, m := range members {
		coords := collapseZeroLengthSegments(m.Coords)
		if len(coords) < 4 {
			continue
		}
		if coords[0] == coords[len(coords)-2] && coords[1] == coords[len(coords)-1] && len(coords) >= 8 {
			geoms = append(geoms, wkb.EmbedPolygon([][]float64{coords}))
		} else {
			geoms = append(geoms, wkb.EmbedLineString(coords))
		}
	}
	if len(geoms) == 0 {
		return nil, &ConstructionError{Reason: "no usable member ways for geometry collection"}
	}
	wkbBytes := b.enc.EncodeGeometryCollection(geoms)
	return cloneBytes(wkbBytes), nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
