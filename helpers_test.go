package cluster

import (
	"fmt"
	"math"
	"math/rand"
)

var testCategories = []Category{
	CategoryWind, CategorySolar, CategoryHydro, CategoryGas,
	CategoryCoal, CategoryOil, CategoryNuclear,
}

var testStatuses = []Status{StatusOperating, StatusConstruction, StatusPlanned, StatusRetired}

var testCountries = []string{"BRA", "CHN", "DEU", "FRA", "IND", "USA"}

// randomRecords scatters n records around a few hot spots so that every
// zoom has both aggregates and leaves. Deterministic for a seed.
func randomRecords(n int, seed int64) []Record {
	r := rand.New(rand.NewSource(seed))
	spots := []GeoCoordinates{{Lon: 10, Lat: 50}, {Lon: -95, Lat: 38}, {Lon: 135, Lat: -25}, {Lon: 179, Lat: 0}}
	records := make([]Record, n)
	for i := range records {
		spot := spots[r.Intn(len(spots))]
		spread := math.Pow(10, -r.Float64()*3) * 8
		lon := spot.Lon + (r.Float64()*2-1)*spread
		if lon > 180 {
			lon -= 360
		}
		records[i] = Record{
			ID:         fmt.Sprintf("R%05d", i),
			Lon:        lon,
			Lat:        spot.Lat + (r.Float64()*2-1)*spread,
			Category:   testCategories[r.Intn(len(testCategories))],
			Status:     testStatuses[r.Intn(len(testStatuses))],
			Country:    testCountries[r.Intn(len(testCountries))],
			Capacity:   r.Float64() * 2000,
			Generation: r.Float64() * 9000,
			Year:       float64(1950 + r.Intn(74)),
		}
		if i%17 == 0 {
			records[i].Generation = math.NaN()
		}
	}
	return records
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].ID
	}
	return out
}

// bruteForceComponents unions every pair of valid records closer than the
// radius in pixels at zoom, returning the component label of each record.
func bruteForceComponents(records []Record, zoom int, c *Cluster) []int {
	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			d := PixelDistance(records[i].GetCoordinates(), records[j].GetCoordinates(), zoom, c.TileSize)
			if d <= c.Radius {
				parent[find(i)] = find(j)
			}
		}
	}
	labels := make([]int, len(records))
	for i := range records {
		labels[i] = find(i)
	}
	return labels
}
