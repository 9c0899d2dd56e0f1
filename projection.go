package cluster

import "math"

// GeoCoordinates represent position in the Earth
type GeoCoordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// all objects that can be clustered implement this protocol
type GeoPoint interface {
	GetCoordinates() GeoCoordinates
}

// GetCoordinates lets a bare coordinate be used where a GeoPoint is expected.
func (g GeoCoordinates) GetCoordinates() GeoCoordinates {
	return g
}

// Valid reports whether the coordinate can be projected.
func (g GeoCoordinates) Valid() bool {
	if math.IsNaN(g.Lon) || math.IsNaN(g.Lat) || math.IsInf(g.Lon, 0) || math.IsInf(g.Lat, 0) {
		return false
	}
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// longitude/latitude to spherical mercator in [0..1] range
func MercatorProjection(coordinates GeoCoordinates) (float64, float64) {
	x := coordinates.Lon/360.0 + 0.5
	sin := math.Sin(coordinates.Lat * math.Pi / 180.0)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	if y < 0 {
		y = 0
	}
	if y > 1 {
		y = 1
	}
	return x, y
}

// ReverseMercatorProjection is the inverse of MercatorProjection.
func ReverseMercatorProjection(x, y float64) GeoCoordinates {
	result := GeoCoordinates{}
	result.Lon = (x - 0.5) * 360
	y2 := (180 - y*360) * math.Pi / 180.0
	result.Lat = 360*math.Atan(math.Exp(y2))/math.Pi - 90
	return result
}

// PixelProjection returns the world pixel position of coordinates at zoom
// for square tiles of tileSize pixels.
func PixelProjection(coordinates GeoCoordinates, zoom, tileSize int) (float64, float64) {
	x, y := MercatorProjection(coordinates)
	scale := float64(tileSize) * math.Exp2(float64(zoom))
	return x * scale, y * scale
}

// PixelDistance is the euclidean distance in pixels between two points at zoom.
func PixelDistance(a, b GeoCoordinates, zoom, tileSize int) float64 {
	ax, ay := PixelProjection(a, zoom, tileSize)
	bx, by := PixelProjection(b, zoom, tileSize)
	return math.Hypot(ax-bx, ay-by)
}

//count number of digits, for example 123356 will return 6
func digitsCount(a int) int {
	if a == 0 {
		return 1
	}
	return int(math.Floor(math.Log10(math.Abs(float64(a))))) + 1
}
