package expire

import "testing"

func TestLatLonToTile(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     int
		wantX    int
		wantY    int
	}{
		{name: "London at zoom 10", lat: 51.5074, lon: -0.1278, zoom: 10, wantX: 511, wantY: 340},
		{name: "Monaco at zoom 12", lat: 43.7384, lon: 7.4246, zoom: 12, wantX: 2132, wantY: 1493},
		{name: "New York at zoom 10", lat: 40.7128, lon: -74.0060, zoom: 10, wantX: 301, wantY: 385},
		{name: "origin at zoom 0", lat: 0, lon: 0, zoom: 0, wantX: 0, wantY: 0},
		{name: "origin at zoom 1", lat: 0, lon: 0, zoom: 1, wantX: 1, wantY: 1},
		{name: "pole clamps rather than diverging", lat: 89.9, lon: 0, zoom: 4, wantX: 8, wantY: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := LatLonToTile(tt.lat, tt.lon, tt.zoom)
			if tile.X != tt.wantX || tile.Y != tt.wantY {
				t.Errorf("LatLonToTile(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tt.lat, tt.lon, tt.zoom, tile.X, tile.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestBboxToTileRangeBoundsMonaco(t *testing.T) {
	bbox := BBox{MinLon: 7.409, MinLat: 43.724, MaxLon: 7.440, MaxLat: 43.752}

	r := bboxToTileRange(bbox, 14)

	count := (r.maxX - r.minX + 1) * (r.maxY - r.minY + 1)
	if count < 1 {
		t.Error("expected at least 1 tile covering the Monaco extract's bbox")
	}
	if count > 100 {
		t.Errorf("expected fewer than 100 tiles at zoom 14 for a city-sized bbox, got %d", count)
	}
	if r.z != 14 {
		t.Errorf("expected zoom 14, got %d", r.z)
	}
}

func TestGetAffectedTilesCoversEveryRequestedZoom(t *testing.T) {
	bbox := BBox{MinLon: 7.4246, MinLat: 43.7384, MaxLon: 7.4246, MaxLat: 43.7384}

	tiles := GetAffectedTiles(bbox, 10, 12)
	if len(tiles) != 3 {
		t.Errorf("expected one tile per zoom level (10,11,12), got %d", len(tiles))
	}

	zooms := make(map[int]bool)
	for _, tile := range tiles {
		zooms[tile.Z] = true
	}
	for z := 10; z <= 12; z++ {
		if !zooms[z] {
			t.Errorf("expected a tile at zoom %d", z)
		}
	}
}

func TestGetAffectedTilesRejectsInvalidBBox(t *testing.T) {
	// A crossed bbox (min > max) must not expire every tile on the planet.
	bbox := BBox{MinLon: 10, MinLat: 10, MaxLon: 5, MaxLat: 5}
	if tiles := GetAffectedTiles(bbox, 0, 5); tiles != nil {
		t.Errorf("expected no tiles for an invalid bbox, got %d", len(tiles))
	}
}

func TestTileString(t *testing.T) {
	tile := Tile{Z: 12, X: 2144, Y: 1501}
	if got := tile.String(); got != "12/2144/1501" {
		t.Errorf("expected 12/2144/1501, got %s", got)
	}
}

func TestBBoxFromCoords(t *testing.T) {
	// A 3-node way threading through Monaco.
	coords := []float64{
		7.409, 43.724,
		7.420, 43.740,
		7.440, 43.752,
	}

	bbox := NewBBoxFromCoords(coords)

	if bbox.MinLon != 7.409 || bbox.MaxLon != 7.440 {
		t.Errorf("lon range = [%f, %f], want [7.409, 7.440]", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat != 43.724 || bbox.MaxLat != 43.752 {
		t.Errorf("lat range = [%f, %f], want [43.724, 43.752]", bbox.MinLat, bbox.MaxLat)
	}
}

func TestBBoxFromCoordsEmpty(t *testing.T) {
	if bbox := NewBBoxFromCoords(nil); bbox != (BBox{}) {
		t.Errorf("expected zero-value BBox for an empty coordinate array, got %+v", bbox)
	}
}
