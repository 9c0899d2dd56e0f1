package cluster

import "math"

// BBox is a geographic box [west, south, east, north] in degrees.
// West > East means the box crosses the antimeridian.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Viewport is the visible part of the map. It is owned by the map view;
// the engine only reads it.
type Viewport struct {
	Center GeoCoordinates `json:"center"`
	Zoom   float64        `json:"zoom"`
	Bounds BBox           `json:"bounds"`
}

// ViewportFromCenter derives the bounding box of a width x height pixel
// map centered at center.
func ViewportFromCenter(center GeoCoordinates, zoom float64, width, height, tileSize int) Viewport {
	world := float64(tileSize) * math.Exp2(zoom)
	cx, cy := MercatorProjection(center)
	dx := float64(width) / 2 / world
	dy := float64(height) / 2 / world

	bounds := BBox{West: -180, East: 180}
	if dx < 0.5 {
		bounds.West = wrapLon(ReverseMercatorProjection(cx-dx, 0).Lon)
		bounds.East = wrapLon(ReverseMercatorProjection(cx+dx, 0).Lon)
	}
	bounds.North = ReverseMercatorProjection(0, math.Max(0, cy-dy)).Lat
	bounds.South = ReverseMercatorProjection(0, math.Min(1, cy+dy)).Lat
	return Viewport{Center: center, Zoom: zoom, Bounds: bounds}
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// IndexedZoom returns the level a fractional zoom is served from: the
// nearest integer zoom, limited to [MinZoom, MaxZoom+1].
func (idx *Index) IndexedZoom(zoom float64) int {
	if math.IsNaN(zoom) {
		return idx.Options.MinZoom
	}
	zoom = math.Max(-1, math.Min(zoom, MaxZoomLimit+1))
	return idx.limitZoom(int(math.Round(zoom)))
}

// Query returns every node of the nearest indexed zoom whose position falls
// inside the box grown by EdgeMargin pixels. The result has no duplicates
// and its order is unspecified.
func (idx *Index) Query(box BBox, zoom float64) []Node {
	if idx == nil {
		return nil
	}
	return idx.QueryWithMargin(box, zoom, idx.Options.EdgeMargin)
}

// QueryWithMargin is Query with the edge margin given in pixels.
func (idx *Index) QueryWithMargin(box BBox, zoom, marginPx float64) []Node {
	if idx == nil {
		return nil
	}
	z := idx.IndexedZoom(zoom)
	margin := marginPx / (float64(idx.Options.TileSize) * math.Exp2(float64(z)))
	_, top := MercatorProjection(GeoCoordinates{Lat: box.North})
	_, bottom := MercatorProjection(GeoCoordinates{Lat: box.South})
	if top > bottom {
		top, bottom = bottom, top
	}
	top -= margin
	bottom += margin

	var ranges [][2]float64
	switch {
	case box.East-box.West >= 360:
		ranges = [][2]float64{{0, 1}}
	case box.West > box.East:
		//box crosses the antimeridian, take both sides
		west, _ := MercatorProjection(GeoCoordinates{Lon: box.West})
		east, _ := MercatorProjection(GeoCoordinates{Lon: box.East})
		ranges = [][2]float64{{west - margin, 1}, {0, east + margin}}
	default:
		west, _ := MercatorProjection(GeoCoordinates{Lon: box.West})
		east, _ := MercatorProjection(GeoCoordinates{Lon: box.East})
		ranges = [][2]float64{{west - margin, east + margin}}
		//margin wraps around the antimeridian
		if west-margin < 0 {
			ranges = append(ranges, [2]float64{west - margin + 1, 1})
		}
		if east+margin > 1 {
			ranges = append(ranges, [2]float64{0, east + margin - 1})
		}
	}
	return idx.levels[z].collect(ranges, top, bottom)
}

// Tile returns the nodes of tile x, y at zoom z, with EdgeMargin pixels
// around the tile. Tiles on the left and right edges of the world also take
// the nodes just across the antimeridian. Tiles outside the grid are empty.
func (idx *Index) Tile(x, y, z int) []Node {
	if idx == nil || z < 0 || z > MaxZoomLimit+1 {
		return nil
	}
	z2 := 1 << uint(z)
	if x < 0 || y < 0 || x >= z2 || y >= z2 {
		return nil
	}
	lv := idx.levels[idx.limitZoom(z)]
	z2f := float64(z2)
	p := idx.Options.EdgeMargin / float64(idx.Options.TileSize)
	top := (float64(y) - p) / z2f
	bottom := (float64(y) + 1 + p) / z2f

	ranges := [][2]float64{{(float64(x) - p) / z2f, (float64(x) + 1 + p) / z2f}}
	if x == 0 {
		ranges = append(ranges, [2]float64{1 - p/z2f, 1})
	}
	if x == z2-1 {
		ranges = append(ranges, [2]float64{0, p / z2f})
	}
	return lv.collect(ranges, top, bottom)
}

// collect runs the x ranges against the level tree and drops duplicates.
func (lv *level) collect(ranges [][2]float64, top, bottom float64) []Node {
	result := make([]Node, 0)
	if lv.tree == nil {
		return result
	}
	seen := make(map[int]struct{})
	for _, r := range ranges {
		for _, i := range lv.tree.Range(r[0], top, r[1], bottom) {
			n := lv.nodes[i]
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			result = append(result, *n)
		}
	}
	return result
}

// GetClusters returns the nodes of the zoom level inside the box spanned by
// the north-west and south-east corners.
func (idx *Index) GetClusters(northWest, southEast GeoPoint, zoom int) []Node {
	nw, se := northWest.GetCoordinates(), southEast.GetCoordinates()
	return idx.Query(BBox{West: nw.Lon, North: nw.Lat, East: se.Lon, South: se.Lat}, float64(zoom))
}

// AllClusters returns every node of the level serving zoom.
func (idx *Index) AllClusters(zoom int) []Node {
	if idx == nil {
		return nil
	}
	lv := idx.levels[idx.limitZoom(zoom)]
	result := make([]Node, len(lv.nodes))
	for i, n := range lv.nodes {
		result[i] = *n
	}
	return result
}
