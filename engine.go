package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownRecord = errors.New("unknown record")

// Observer receives engine events, used for metrics.
type Observer interface {
	FilterApplied(active, total int)
	StructureBuilt(took time.Duration, records int)
	StructureReused()
	RecordsSkipped(n int)
	Queried(took time.Duration, nodes int)
}

type nopObserver struct{}

func (nopObserver) FilterApplied(int, int)            {}
func (nopObserver) StructureBuilt(time.Duration, int) {}
func (nopObserver) StructureReused()                  {}
func (nopObserver) RecordsSkipped(int)                {}
func (nopObserver) Queried(time.Duration, int)        {}

type EngineOption func(*Engine)

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithCacheSize sets how many built structures are remembered.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) { e.cacheSize = n }
}

// Engine is the coordinator: it owns the filter state, the clustering
// options and the current cluster structure. Every edit replaces the whole
// state, readers always see one consistent generation.
// Viewport queries never rebuild; rebuilds happen only when the active
// subset or the options change and are memoized against both.
type Engine struct {
	records []Record
	byID    map[string]int
	domain  Domain

	log       *slog.Logger
	observer  Observer
	cacheSize int

	mu    sync.Mutex
	state atomic.Pointer[engineState]
	cache []*Index
}

type engineState struct {
	filter  FilterState
	options Cluster
	index   *Index
	total   int
}

// NewEngine builds the initial structure for the default filter state.
// records is a read-only snapshot and must not be modified afterwards.
func NewEngine(records []Record, c *Cluster, opts ...EngineOption) (*Engine, error) {
	if c == nil {
		c = NewCluster()
	}
	e := &Engine{
		records:   records,
		byID:      make(map[string]int, len(records)),
		domain:    DomainOf(records),
		log:       slog.Default(),
		observer:  nopObserver{},
		cacheSize: 4,
	}
	for _, o := range opts {
		o(e)
	}
	if e.cacheSize < 1 {
		e.cacheSize = 1
	}
	for i := range records {
		e.byID[records[i].ID] = i
	}

	filter := DefaultFilterState(e.domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, err := e.structure(EvaluateSubset(records, filter), *c)
	if err != nil {
		return nil, err
	}
	e.state.Store(&engineState{filter: filter, options: *c, index: idx, total: len(records)})
	return e, nil
}

func (e *Engine) Domain() Domain      { return e.domain }
func (e *Engine) Records() []Record   { return e.records }
func (e *Engine) Filter() FilterState { return e.state.Load().filter }
func (e *Engine) Options() Cluster    { return e.state.Load().options }
func (e *Engine) Index() *Index       { return e.state.Load().index }
func (e *Engine) Active() []Record    { return e.Index().Subset().Records }
func (e *Engine) Snapshot() Snapshot  { return e.state.Load().snapshot() }

// Snapshot is one consistent view of the engine state.
type Snapshot struct {
	Filter     FilterState
	Generation uuid.UUID
	Active     int
	Total      int
}

func (s *engineState) snapshot() Snapshot {
	return Snapshot{
		Filter:     s.filter,
		Generation: s.index.Generation,
		Active:     s.index.Subset().Len(),
		Total:      s.total,
	}
}

// SetFilter normalizes the edit, evaluates it and swaps in the structure
// for the new active subset. The returned snapshot is the state it stored.
func (e *Engine) SetFilter(in FilterInput) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	filter := NewFilterState(e.domain, in)
	subset := EvaluateSubset(e.records, filter)
	e.observer.FilterApplied(subset.Len(), len(e.records))

	idx, err := e.structure(subset, cur.options)
	if err != nil {
		// stored options are always valid
		panic(err)
	}
	next := &engineState{filter: filter, options: cur.options, index: idx, total: len(e.records)}
	e.state.Store(next)
	return next.snapshot()
}

// SetClusterOptions changes the clustering parameters.
func (e *Engine) SetClusterOptions(c Cluster) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	idx, err := e.structure(cur.index.Subset(), c)
	if err != nil {
		return err
	}
	e.state.Store(&engineState{filter: cur.filter, options: c, index: idx, total: len(e.records)})
	return nil
}

// structure returns a cached index for (subset, options) or builds one.
// Options that do not shape the levels never cause a rebuild.
// Callers hold e.mu.
func (e *Engine) structure(subset *Subset, c Cluster) (*Index, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	for i, idx := range e.cache {
		if idx.Options.sameLevels(c) && idx.subset.Equal(subset) {
			//move to front
			copy(e.cache[1:i+1], e.cache[:i])
			e.cache[0] = idx
			e.observer.StructureReused()
			return idx, nil
		}
	}

	start := time.Now()
	idx, err := c.Build(subset)
	if err != nil {
		return nil, fmt.Errorf("build cluster structure: %w", err)
	}
	took := time.Since(start)
	e.observer.StructureBuilt(took, idx.Len())
	e.log.Debug("structure_built",
		"generation", idx.Generation,
		"records", idx.Len(),
		"radius", c.Radius,
		"max_zoom", c.MaxZoom,
		"took", took)
	if len(idx.Skipped) > 0 {
		e.observer.RecordsSkipped(len(idx.Skipped))
		e.log.Warn("records_skipped",
			"reason", "invalid coordinates",
			"count", len(idx.Skipped),
			"ids", head(idx.Skipped, 10))
	}

	if len(e.cache) < e.cacheSize {
		e.cache = append(e.cache, nil)
	}
	copy(e.cache[1:], e.cache[:len(e.cache)-1])
	e.cache[0] = idx
	return idx, nil
}

// RenderList is the answer to a viewport query, tagged with the structure
// generation it came from.
type RenderList struct {
	Generation uuid.UUID `json:"generation"`
	Zoom       int       `json:"zoom"`
	Nodes      []Node    `json:"nodes"`
}

// Render queries the current structure for the viewport.
func (e *Engine) Render(v Viewport) RenderList {
	start := time.Now()
	st := e.state.Load()
	idx := st.index
	list := RenderList{
		Generation: idx.Generation,
		Zoom:       idx.IndexedZoom(v.Zoom),
		Nodes:      idx.QueryWithMargin(v.Bounds, v.Zoom, st.options.EdgeMargin),
	}
	e.observer.Queried(time.Since(start), len(list.Nodes))
	return list
}

// Query returns the nodes of the render list for the viewport.
func (e *Engine) Query(v Viewport) []Node {
	return e.Render(v).Nodes
}

// ResolveMarkerClick flies to a record by id.
func (e *Engine) ResolveMarkerClick(id string) (Target, error) {
	i, ok := e.byID[id]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownRecord, id)
	}
	opts := e.Options()
	return opts.ResolveMarkerClick(e.records[i]), nil
}

// ResolveClusterClick resolves a click on the node with the given id from
// the given generation. Clicks on a structure that was since replaced are a
// no-op: the current viewport is returned with false.
func (e *Engine) ResolveClusterClick(id int, generation uuid.UUID, current Viewport) (Target, bool) {
	st := e.state.Load()
	idx := st.index
	if idx == nil || idx.Generation != generation {
		return Target{Center: current.Center, Zoom: current.Zoom}, false
	}
	n, ok := idx.NodeByID(id)
	if !ok {
		return Target{Center: current.Center, Zoom: current.Zoom}, false
	}
	if n.Kind == Leaf && n.Record != nil {
		return st.options.ResolveMarkerClick(*n.Record), true
	}
	return idx.ResolveClusterClick(n, current)
}

// Tile returns the nodes of tile x, y at zoom z from the current structure.
func (e *Engine) Tile(x, y, z int) RenderList {
	start := time.Now()
	idx := e.Index()
	list := RenderList{Generation: idx.Generation, Zoom: z, Nodes: idx.Tile(x, y, z)}
	e.observer.Queried(time.Since(start), len(list.Nodes))
	return list
}

func head(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
