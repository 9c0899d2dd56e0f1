package cluster

import (
	"encoding/json"
	"math"
	"strings"
)

// Category is the primary fuel of a plant.
type Category string

const (
	CategoryWind    Category = "wind"
	CategorySolar   Category = "solar"
	CategoryHydro   Category = "hydro"
	CategoryGas     Category = "gas"
	CategoryCoal    Category = "coal"
	CategoryOil     Category = "oil"
	CategoryNuclear Category = "nuclear"
	CategoryBiomass Category = "biomass"
	CategoryOther   Category = "other"
)

// Status is the operating state of a plant.
type Status string

const (
	StatusOperating    Status = "operating"
	StatusConstruction Status = "construction"
	StatusPlanned      Status = "planned"
	StatusRetired      Status = "retired"
	StatusUnknown      Status = "unknown"
)

var categories = map[Category]struct{}{
	CategoryWind: {}, CategorySolar: {}, CategoryHydro: {}, CategoryGas: {}, CategoryCoal: {},
	CategoryOil: {}, CategoryNuclear: {}, CategoryBiomass: {}, CategoryOther: {},
}

var statuses = map[Status]struct{}{
	StatusOperating: {}, StatusConstruction: {}, StatusPlanned: {}, StatusRetired: {}, StatusUnknown: {},
}

// ParseCategory maps a free-form value onto the closed set. Values outside
// it become CategoryOther and false.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[c]; !ok {
		return CategoryOther, false
	}
	return c, true
}

// ParseStatus maps a free-form value onto the closed set. Values outside
// it become StatusUnknown and false.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statuses[st]; !ok {
		return StatusUnknown, false
	}
	return st, true
}

// Record is one facility. Records are loaded once and never mutated,
// the ID is stable across filtering and clustering.
type Record struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`

	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Country  string   `json:"country"`

	// Capacity in MW
	Capacity float64 `json:"capacity_mw"`
	// Generation in GWh per year
	Generation float64 `json:"generation_gwh"`
	// Year of commissioning
	Year float64 `json:"year"`

	Name   string `json:"name,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Source string `json:"source,omitempty"`
}

func (r *Record) GetCoordinates() GeoCoordinates {
	return GeoCoordinates{Lon: r.Lon, Lat: r.Lat}
}

// MarshalJSON writes unknown numeric attributes as null.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Capacity   *float64 `json:"capacity_mw"`
		Generation *float64 `json:"generation_gwh"`
		Year       *float64 `json:"year"`
	}{plain(r), known(r.Capacity), known(r.Generation), known(r.Year)})
}

func known(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Valid reports whether the record can take part in clustering.
func (r *Record) Valid() bool {
	return r.GetCoordinates().Valid()
}

// numeric attribute accessors, shared by the domain and the evaluator
type numericField int

const (
	fieldCapacity numericField = iota
	fieldGeneration
	fieldYear
	numericFieldCount
)

func (r *Record) numeric(f numericField) float64 {
	switch f {
	case fieldCapacity:
		return r.Capacity
	case fieldGeneration:
		return r.Generation
	case fieldYear:
		return r.Year
	}
	return math.NaN()
}
