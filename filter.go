package cluster

import (
	"cmp"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// clamp fits r into the domain d, swapping reversed bounds.
func (r Range) clamp(d Range) Range {
	fit := func(v float64) float64 {
		if math.IsNaN(v) {
			return d.Min
		}
		return math.Max(d.Min, math.Min(d.Max, v))
	}
	r.Min, r.Max = fit(r.Min), fit(r.Max)
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

// ValueSet is an immutable set of accepted values. The empty set accepts
// everything.
type ValueSet[T cmp.Ordered] struct {
	m map[T]struct{}
}

func NewValueSet[T cmp.Ordered](values ...T) ValueSet[T] {
	s := ValueSet[T]{m: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.m[v] = struct{}{}
	}
	return s
}

func (s ValueSet[T]) Len() int { return len(s.m) }

func (s ValueSet[T]) Has(v T) bool {
	_, ok := s.m[v]
	return ok
}

// Accepts is Has with the empty set meaning "accept all".
func (s ValueSet[T]) Accepts(v T) bool {
	if len(s.m) == 0 {
		return true
	}
	return s.Has(v)
}

// Values returns the members in ascending order.
func (s ValueSet[T]) Values() []T {
	out := make([]T, 0, len(s.m))
	for v := range s.m {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Domain is the data derived extent of every filterable attribute.
type Domain struct {
	Categories []Category `json:"categories"`
	Statuses   []Status   `json:"statuses"`
	Countries  []string   `json:"countries"`
	Capacity   Range      `json:"capacity_mw"`
	Generation Range      `json:"generation_gwh"`
	Year       Range      `json:"year"`
}

func (d Domain) numeric(f numericField) Range {
	switch f {
	case fieldCapacity:
		return d.Capacity
	case fieldGeneration:
		return d.Generation
	}
	return d.Year
}

// DomainOf scans records once. NaN numeric values are ignored; an attribute
// without any known value gets the [0, 0] range.
func DomainOf(records []Record) Domain {
	var (
		categories = map[Category]struct{}{}
		statuses   = map[Status]struct{}{}
		countries  = map[string]struct{}{}
		ranges     [numericFieldCount]Range
		seen       [numericFieldCount]bool
	)
	for i := range records {
		r := &records[i]
		categories[r.Category] = struct{}{}
		statuses[r.Status] = struct{}{}
		countries[r.Country] = struct{}{}
		for f := numericField(0); f < numericFieldCount; f++ {
			v := r.numeric(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if !seen[f] {
				ranges[f] = Range{v, v}
				seen[f] = true
				continue
			}
			ranges[f].Min = math.Min(ranges[f].Min, v)
			ranges[f].Max = math.Max(ranges[f].Max, v)
		}
	}
	return Domain{
		Categories: sortedKeys(categories),
		Statuses:   sortedKeys(statuses),
		Countries:  sortedKeys(countries),
		Capacity:   ranges[fieldCapacity],
		Generation: ranges[fieldGeneration],
		Year:       ranges[fieldYear],
	}
}

func sortedKeys[T cmp.Ordered](m map[T]struct{}) []T {
	out := make([]T, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// RangeInput is a user supplied range, nil bounds mean "domain bound".
type RangeInput struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// FilterInput is the raw, unnormalized edit coming from the UI.
type FilterInput struct {
	Categories []Category  `json:"categories,omitempty"`
	Statuses   []Status    `json:"statuses,omitempty"`
	Countries  []string    `json:"countries,omitempty"`
	Capacity   *RangeInput `json:"capacity_mw,omitempty"`
	Generation *RangeInput `json:"generation_gwh,omitempty"`
	Year       *RangeInput `json:"year,omitempty"`
}

// FilterState is the normalized set of predicates. It is immutable once
// built by NewFilterState or DefaultFilterState; edits replace it wholesale.
type FilterState struct {
	Categories ValueSet[Category]
	Statuses   ValueSet[Status]
	Countries  ValueSet[string]
	Capacity   Range
	Generation Range
	Year       Range

	domain Domain
	built  bool
}

// DefaultFilterState accepts every record of the domain.
func DefaultFilterState(d Domain) FilterState {
	return NewFilterState(d, FilterInput{})
}

// NewFilterState normalizes in against the domain. Unknown categorical
// values are dropped and an empty categorical set becomes "all"; ranges
// are clamped to the domain and reversed bounds are swapped.
func NewFilterState(d Domain, in FilterInput) FilterState {
	return FilterState{
		Categories: acceptedOf(d.Categories, in.Categories),
		Statuses:   acceptedOf(d.Statuses, in.Statuses),
		Countries:  restrictionOf(d.Countries, in.Countries),
		Capacity:   rangeOf(d.Capacity, in.Capacity),
		Generation: rangeOf(d.Generation, in.Generation),
		Year:       rangeOf(d.Year, in.Year),
		domain:     d,
		built:      true,
	}
}

func acceptedOf[T cmp.Ordered](domain, wanted []T) ValueSet[T] {
	if kept := intersect(domain, wanted); len(kept) > 0 {
		return NewValueSet(kept...)
	}
	return NewValueSet(domain...)
}

// restrictionOf keeps the empty set empty: no group restriction.
func restrictionOf[T cmp.Ordered](domain, wanted []T) ValueSet[T] {
	return NewValueSet(intersect(domain, wanted)...)
}

func intersect[T cmp.Ordered](domain, wanted []T) []T {
	var kept []T
	for _, v := range wanted {
		if _, found := slices.BinarySearch(domain, v); found {
			kept = append(kept, v)
		}
	}
	return kept
}

func rangeOf(d Range, in *RangeInput) Range {
	r := d
	if in == nil {
		return r
	}
	if in.Min != nil {
		r.Min = *in.Min
	}
	if in.Max != nil {
		r.Max = *in.Max
	}
	return r.clamp(d)
}

// Domain returns the domain the state was normalized against.
func (f FilterState) Domain() Domain {
	return f.domain
}

// Input converts the state back to the wire shape.
func (f FilterState) Input() FilterInput {
	rng := func(r Range) *RangeInput {
		lo, hi := r.Min, r.Max
		return &RangeInput{Min: &lo, Max: &hi}
	}
	return FilterInput{
		Categories: f.Categories.Values(),
		Statuses:   f.Statuses.Values(),
		Countries:  f.Countries.Values(),
		Capacity:   rng(f.Capacity),
		Generation: rng(f.Generation),
		Year:       rng(f.Year),
	}
}

func (f FilterState) numeric(field numericField) Range {
	switch field {
	case fieldCapacity:
		return f.Capacity
	case fieldGeneration:
		return f.Generation
	}
	return f.Year
}

// restricted reports whether the range narrows the domain at all.
func (f FilterState) restricted(field numericField) bool {
	return f.built && f.numeric(field) != f.domain.numeric(field)
}

// Match evaluates every predicate against r. A numeric attribute with an
// unknown (NaN) value only passes an unrestricted range.
func (f FilterState) Match(r *Record) bool {
	if !f.Categories.Accepts(r.Category) || !f.Statuses.Accepts(r.Status) {
		return false
	}
	if !f.Countries.Accepts(r.Country) {
		return false
	}
	for field := numericField(0); field < numericFieldCount; field++ {
		if !f.restricted(field) {
			continue
		}
		if !f.numeric(field).Contains(r.numeric(field)) {
			return false
		}
	}
	return true
}

// Evaluate returns the records passing every predicate, in input order.
func Evaluate(records []Record, state FilterState) []Record {
	out := make([]Record, 0, len(records))
	for i := range records {
		if state.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// Subset is an active subset together with the positions of its records in
// the full collection. Order is always collection order, so the positions
// identify the subset.
type Subset struct {
	Records   []Record
	positions []uint32
	bitmap    *roaring.Bitmap
}

// EvaluateSubset is Evaluate that also keeps the record positions.
func EvaluateSubset(records []Record, state FilterState) *Subset {
	s := &Subset{
		Records: make([]Record, 0, len(records)),
		bitmap:  roaring.New(),
	}
	for i := range records {
		if state.Match(&records[i]) {
			s.Records = append(s.Records, records[i])
			s.positions = append(s.positions, uint32(i))
		}
	}
	s.bitmap.AddMany(s.positions)
	s.bitmap.RunOptimize()
	return s
}

// NewSubset wraps records that are already a whole collection.
func NewSubset(records []Record) *Subset {
	s := &Subset{
		Records:   records,
		positions: make([]uint32, len(records)),
	}
	for i := range records {
		s.positions[i] = uint32(i)
	}
	s.bitmap = roaring.BitmapOf(s.positions...)
	s.bitmap.RunOptimize()
	return s
}

func (s *Subset) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Equal reports whether both subsets select the same records.
func (s *Subset) Equal(other *Subset) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.bitmap.Equals(other.bitmap)
}
