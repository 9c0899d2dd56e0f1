package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestEvaluateIdentity(t *testing.T) {
	for _, n := range []int{0, 1, 50, 500} {
		records := randomRecords(n, int64(n))
		state := DefaultFilterState(DomainOf(records))
		assert.Equal(t, ids(records), ids(Evaluate(records, state)), "n=%d", n)
	}
}

func TestEvaluateIdentityWithUnknownValues(t *testing.T) {
	records := []Record{
		{ID: "a", Category: CategoryWind, Capacity: 10, Generation: math.NaN(), Year: 2001},
		{ID: "b", Category: CategoryGas, Capacity: math.NaN(), Generation: 5, Year: math.NaN()},
		{ID: "c", Category: CategoryGas, Capacity: 20, Generation: 7, Year: 2010},
	}
	state := DefaultFilterState(DomainOf(records))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Evaluate(records, state)))

	narrowed := NewFilterState(state.Domain(), FilterInput{Capacity: &RangeInput{Max: ptr(15)}})
	assert.Equal(t, []string{"a"}, ids(Evaluate(records, narrowed)), "unknown capacity fails a restricted range")
}

func TestEvaluateMonotonicity(t *testing.T) {
	records := randomRecords(400, 3)
	d := DomainOf(records)

	prev := len(Evaluate(records, DefaultFilterState(d)))
	for step := 1; step <= 10; step++ {
		hi := d.Capacity.Max - float64(step)*(d.Capacity.Max-d.Capacity.Min)/10
		state := NewFilterState(d, FilterInput{Capacity: &RangeInput{Max: &hi}})
		got := len(Evaluate(records, state))
		assert.LessOrEqual(t, got, prev, "capacity max %v", hi)
		prev = got
	}

	prev = len(records)
	for keep := len(d.Categories); keep >= 1; keep-- {
		state := NewFilterState(d, FilterInput{Categories: d.Categories[:keep]})
		got := len(Evaluate(records, state))
		assert.LessOrEqual(t, got, prev, "categories %v", d.Categories[:keep])
		prev = got
	}

	prev = len(records)
	for keep := len(d.Countries); keep >= 1; keep-- {
		state := NewFilterState(d, FilterInput{Countries: d.Countries[:keep]})
		got := len(Evaluate(records, state))
		assert.LessOrEqual(t, got, prev, "countries %v", d.Countries[:keep])
		prev = got
	}
}

func TestEvaluateIsStableAndAnded(t *testing.T) {
	records := randomRecords(3000, 9)
	d := DomainOf(records)
	state := NewFilterState(d, FilterInput{
		Categories: []Category{CategoryWind, CategorySolar},
		Statuses:   []Status{StatusOperating},
		Countries:  []string{"DEU", "FRA"},
		Year:       &RangeInput{Min: ptr(1990), Max: ptr(2010)},
	})
	got := Evaluate(records, state)
	require.NotEmpty(t, got)

	last := -1
	pos := map[string]int{}
	for i, r := range records {
		pos[r.ID] = i
	}
	for _, r := range got {
		assert.Contains(t, []Category{CategoryWind, CategorySolar}, r.Category)
		assert.Equal(t, StatusOperating, r.Status)
		assert.Contains(t, []string{"DEU", "FRA"}, r.Country)
		assert.True(t, r.Year >= 1990 && r.Year <= 2010)
		assert.Greater(t, pos[r.ID], last, "input order is kept")
		last = pos[r.ID]
	}
}

func TestNewFilterStateNormalizes(t *testing.T) {
	records := randomRecords(200, 5)
	d := DomainOf(records)

	t.Run("empty categorical set accepts all", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Categories: []Category{}})
		assert.Equal(t, d.Categories, s.Categories.Values())
		assert.Equal(t, d.Statuses, s.Statuses.Values())
		assert.Equal(t, 0, s.Countries.Len(), "no country restriction")
	})

	t.Run("unknown values are dropped", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Categories: []Category{"fusion", CategoryWind}})
		assert.Equal(t, []Category{CategoryWind}, s.Categories.Values())

		s = NewFilterState(d, FilterInput{Categories: []Category{"fusion"}})
		assert.Equal(t, d.Categories, s.Categories.Values(), "never accept none")
	})

	t.Run("ranges are clamped", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Capacity: &RangeInput{Min: ptr(-1e9), Max: ptr(1e9)}})
		assert.Equal(t, d.Capacity, s.Capacity)
		assert.False(t, s.restricted(fieldCapacity))
	})

	t.Run("reversed bounds are swapped", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Year: &RangeInput{Min: ptr(2000), Max: ptr(1980)}})
		assert.Equal(t, Range{Min: 1980, Max: 2000}, s.Year)
	})

	t.Run("NaN bound falls back to the domain", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Year: &RangeInput{Min: ptr(math.NaN())}})
		assert.Equal(t, d.Year, s.Year)
	})

	t.Run("bounds within the domain", func(t *testing.T) {
		s := NewFilterState(d, FilterInput{Generation: &RangeInput{Min: ptr(-5), Max: ptr(d.Generation.Max + 1)}})
		assert.GreaterOrEqual(t, s.Generation.Min, d.Generation.Min)
		assert.LessOrEqual(t, s.Generation.Max, d.Generation.Max)
	})
}

func TestFilterStateInputRoundTrip(t *testing.T) {
	d := DomainOf(randomRecords(100, 11))
	s := NewFilterState(d, FilterInput{
		Categories: []Category{CategoryCoal},
		Countries:  []string{"USA"},
		Capacity:   &RangeInput{Min: ptr(100), Max: ptr(900)},
	})
	again := NewFilterState(d, s.Input())
	assert.Equal(t, s.Categories.Values(), again.Categories.Values())
	assert.Equal(t, s.Countries.Values(), again.Countries.Values())
	assert.Equal(t, s.Capacity, again.Capacity)
	assert.Equal(t, s.Year, again.Year)
}

func TestDomainOf(t *testing.T) {
	records := []Record{
		{Category: CategoryWind, Country: "DEU", Capacity: 5, Generation: math.NaN(), Year: 2001},
		{Category: CategorySolar, Country: "FRA", Capacity: 50, Generation: math.NaN(), Year: 1999},
	}
	d := DomainOf(records)
	assert.Equal(t, []Category{CategorySolar, CategoryWind}, d.Categories)
	assert.Equal(t, []string{"DEU", "FRA"}, d.Countries)
	assert.Equal(t, Range{5, 50}, d.Capacity)
	assert.Equal(t, Range{}, d.Generation)
	assert.Equal(t, Range{1999, 2001}, d.Year)
}

func TestZeroFilterStateAcceptsAll(t *testing.T) {
	records := randomRecords(40, 2)
	assert.Equal(t, ids(records), ids(Evaluate(records, FilterState{})))
}

func TestSubsetIdentity(t *testing.T) {
	records := randomRecords(120, 4)
	d := DomainOf(records)
	wind := NewFilterState(d, FilterInput{Categories: []Category{CategoryWind}})

	a := EvaluateSubset(records, wind)
	b := EvaluateSubset(records, NewFilterState(d, FilterInput{Categories: []Category{CategoryWind, "unknown"}}))
	all := EvaluateSubset(records, DefaultFilterState(d))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(all))
	assert.True(t, all.Equal(NewSubset(records)))
	assert.Equal(t, ids(Evaluate(records, wind)), ids(a.Records))
}
