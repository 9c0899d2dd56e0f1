package cluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/MadAppGang/kdbush"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
)

// Cluster's hard upper zoom limit
const MaxZoomLimit = 21

var ErrInvalidOptions = errors.New("invalid cluster options")

// Kind tells leaves and aggregates apart.
type Kind string

const (
	Leaf      Kind = "leaf"
	Aggregate Kind = "cluster"
)

// Node is one marker of a render list: a single record (leaf) or an
// aggregate of nearby records at a zoom level.
// Nodes belong to the Index generation that produced them and are never
// mutated after the build.
type Node struct {
	ID         int            `json:"id"`
	Kind       Kind           `json:"kind"`
	Center     GeoCoordinates `json:"center"`
	Zoom       int            `json:"zoom"`
	NumPoints  int            `json:"num_points"`
	Record     *Record        `json:"record,omitempty"`
	Generation uuid.UUID      `json:"generation"`

	//mercator projection in [0..1]
	X, Y float64 `json:"-"`

	// positions of the members in Index.records, nil for leaves
	members *roaring.Bitmap
	// position of the record for leaves
	position uint32
}

func (n *Node) Coordinates() (float64, float64) {
	return n.X, n.Y
}

func (n *Node) IsCluster() bool {
	return n.Kind == Aggregate
}

// memberSet returns positions of member records, a fresh bitmap for leaves
func (n *Node) memberSet() *roaring.Bitmap {
	if n.members == nil {
		return roaring.BitmapOf(n.position)
	}
	return n.members
}

// first member position in subset order
func (n *Node) firstMember() uint32 {
	if n.members == nil {
		return n.position
	}
	return n.members.Minimum()
}

// Cluster holds the clustering configuration. Create it with NewCluster
// and adjust the fields before calling Build.
// MinZoom - minimum zoom level to generate clusters
// MaxZoom - maximum zoom level to generate clusters, above it every record is a leaf
// Zoom range is limited by 0 to 21, and MinZoom could not be larger, then MaxZoom
// Radius - clustering radius in pixels
// TileSize - size of tile in pixels, affects clustering radius
// NodeSize - size of the KD-tree node. Higher means faster indexing but slower search, and vise versa.
// DetailZoom - zoom a marker click flies to
// EdgeMargin - pixels added around a viewport box to avoid pop-in at the edges
type Cluster struct {
	MinZoom    int
	MaxZoom    int
	Radius     float64
	TileSize   int
	NodeSize   int
	DetailZoom float64
	EdgeMargin float64
}

// Create new Cluster instance with default parameters:
// MinZoom = 0
// MaxZoom = 14
// Radius = 40
// TileSize = 256 (web mercator default)
// NodeSize = 64
// DetailZoom = 6
// EdgeMargin = 16
func NewCluster() *Cluster {
	return &Cluster{
		MinZoom:    0,
		MaxZoom:    14,
		Radius:     40,
		TileSize:   256,
		NodeSize:   64,
		DetailZoom: 6,
		EdgeMargin: 16,
	}
}

func (c *Cluster) validate() error {
	switch {
	case c.MinZoom < 0 || c.MaxZoom > MaxZoomLimit || c.MinZoom > c.MaxZoom:
		return fmt.Errorf("%w: zoom range [%d, %d]", ErrInvalidOptions, c.MinZoom, c.MaxZoom)
	case !(c.Radius >= 0) || math.IsInf(c.Radius, 0):
		return fmt.Errorf("%w: radius %v", ErrInvalidOptions, c.Radius)
	case c.TileSize <= 0:
		return fmt.Errorf("%w: tile size %d", ErrInvalidOptions, c.TileSize)
	case c.NodeSize <= 0:
		return fmt.Errorf("%w: node size %d", ErrInvalidOptions, c.NodeSize)
	case !(c.EdgeMargin >= 0) || math.IsInf(c.EdgeMargin, 0):
		return fmt.Errorf("%w: edge margin %v", ErrInvalidOptions, c.EdgeMargin)
	case math.IsNaN(c.DetailZoom) || math.IsInf(c.DetailZoom, 0):
		return fmt.Errorf("%w: detail zoom %v", ErrInvalidOptions, c.DetailZoom)
	}
	return nil
}

// sameLevels reports whether both options build identical levels.
// DetailZoom and EdgeMargin only matter when the index is read.
func (c Cluster) sameLevels(o Cluster) bool {
	return c.MinZoom == o.MinZoom &&
		c.MaxZoom == o.MaxZoom &&
		c.Radius == o.Radius &&
		c.TileSize == o.TileSize &&
		c.NodeSize == o.NodeSize
}

// Index is a built cluster structure: one level of nodes with its own
// KD-tree per zoom from MinZoom to MaxZoom+1. It is immutable; any change of
// the active subset or of the options produces a new Index with a new
// Generation.
type Index struct {
	Generation uuid.UUID
	Options    Cluster
	// ids of records excluded because of unusable coordinates
	Skipped []string

	// ids of aggregates start at ClusterIdxSeed, see nodeID
	ClusterIdxSeed int

	subset  *Subset
	records []Record
	levels  []*level
}

type level struct {
	zoom  int
	nodes []*Node
	// owner[p] is the index in nodes of the node holding record p
	owner []int32
	tree  *kdbush.KDBush
}

// ClusterPoints builds an index over the whole slice of records.
func (c *Cluster) ClusterPoints(records []Record) (*Index, error) {
	return c.Build(NewSubset(records))
}

// Build creates the multilevel clustered indexes for an active subset.
// Records with unusable coordinates are skipped and listed in
// Index.Skipped. Only invalid options produce an error.
func (c *Cluster) Build(subset *Subset) (*Index, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if subset == nil {
		subset = NewSubset(nil)
	}

	idx := &Index{
		Generation: uuid.New(),
		Options:    *c,
		subset:     subset,
		records:    make([]Record, 0, subset.Len()),
		levels:     make([]*level, c.MaxZoom+2),
	}
	for i := range subset.Records {
		r := &subset.Records[i]
		if !r.Valid() {
			idx.Skipped = append(idx.Skipped, r.ID)
			continue
		}
		idx.records = append(idx.records, *r)
	}

	//get digits number, start from next exponent
	//if we have 78 points, all cluster ids will start from 100...
	//if we have 986 points, all clusters ids will start from 1000
	idx.ClusterIdxSeed = int(math.Pow(10, float64(digitsCount(len(idx.records)))))

	leaves := idx.leafLevel()
	idx.levels[c.MaxZoom+1] = leaves

	for z := c.MaxZoom; z >= c.MinZoom; z-- {
		idx.levels[z] = idx.clusterize(leaves, z)
	}
	return idx, nil
}

// leafLevel is the extra layer above MaxZoom where clustering is disabled
func (idx *Index) leafLevel() *level {
	zoom := idx.Options.MaxZoom + 1
	lv := &level{
		zoom:  zoom,
		nodes: make([]*Node, len(idx.records)),
		owner: make([]int32, len(idx.records)),
	}
	for i := range idx.records {
		lv.nodes[i] = idx.newLeaf(uint32(i), zoom)
		lv.owner[i] = int32(i)
	}
	lv.tree = newTree(lv.nodes, idx.Options.NodeSize)
	return lv
}

//clusterize points for zoom level
//Every seed taken in subset order opens a node that absorbs all records
//reachable through hops no longer than the radius, so a node is a connected
//component of the radius graph.
func (idx *Index) clusterize(leaves *level, zoom int) *level {
	r := idx.Options.Radius / (float64(idx.Options.TileSize) * math.Exp2(float64(zoom)))
	n := len(leaves.nodes)
	lv := &level{
		zoom:  zoom,
		owner: make([]int32, n),
	}
	for i := range lv.owner {
		lv.owner[i] = -1
	}

	var stack []int
	for seed := 0; seed < n; seed++ {
		//skip points we have already clustered
		if lv.owner[seed] >= 0 {
			continue
		}
		ordinal := int32(len(lv.nodes))
		lv.owner[seed] = ordinal
		members := []uint32{uint32(seed)}

		stack = append(stack[:0], seed)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if leaves.tree == nil {
				break
			}
			for _, nb := range leaves.tree.Within(leaves.nodes[p], r) {
				if lv.owner[nb] >= 0 {
					continue
				}
				lv.owner[nb] = ordinal
				members = append(members, uint32(nb))
				stack = append(stack, nb)
			}
		}

		if len(members) == 1 {
			lv.nodes = append(lv.nodes, idx.newLeaf(members[0], zoom))
			continue
		}
		lv.nodes = append(lv.nodes, idx.newAggregate(members, zoom, int(ordinal)))
	}
	lv.tree = newTree(lv.nodes, idx.Options.NodeSize)
	return lv
}

func (idx *Index) newLeaf(position uint32, zoom int) *Node {
	r := &idx.records[position]
	x, y := MercatorProjection(r.GetCoordinates())
	return &Node{
		ID:         int(position),
		Kind:       Leaf,
		Center:     r.GetCoordinates(),
		Zoom:       zoom,
		NumPoints:  1,
		Record:     r,
		Generation: idx.Generation,
		X:          x,
		Y:          y,
		position:   position,
	}
}

func (idx *Index) newAggregate(members []uint32, zoom, ordinal int) *Node {
	var lon, lat float64
	for _, p := range members {
		lon += idx.records[p].Lon
		lat += idx.records[p].Lat
	}
	center := GeoCoordinates{
		Lon: lon / float64(len(members)),
		Lat: lat / float64(len(members)),
	}
	x, y := MercatorProjection(center)
	set := roaring.BitmapOf(members...)
	set.RunOptimize()
	return &Node{
		ID:         idx.ClusterIdxSeed*(zoom+1) + ordinal,
		Kind:       Aggregate,
		Center:     center,
		Zoom:       zoom,
		NumPoints:  len(members),
		Generation: idx.Generation,
		X:          x,
		Y:          y,
		members:    set,
	}
}

// NodeByID finds a node of this generation. Leaf ids resolve to the
// unclustered level.
func (idx *Index) NodeByID(id int) (Node, bool) {
	if idx == nil || id < 0 {
		return Node{}, false
	}
	if id < idx.ClusterIdxSeed {
		leaves := idx.levels[idx.Options.MaxZoom+1]
		if id >= len(leaves.nodes) {
			return Node{}, false
		}
		return *leaves.nodes[id], true
	}
	z := id/idx.ClusterIdxSeed - 1
	ordinal := id % idx.ClusterIdxSeed
	if z < idx.Options.MinZoom || z > idx.Options.MaxZoom {
		return Node{}, false
	}
	lv := idx.levels[z]
	if ordinal >= len(lv.nodes) || lv.nodes[ordinal].ID != id {
		return Node{}, false
	}
	return *lv.nodes[ordinal], true
}

// Len returns the number of clustered records.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// Subset returns the active subset the index was built from.
func (idx *Index) Subset() *Subset {
	if idx == nil {
		return nil
	}
	return idx.subset
}

// Members returns the record ids aggregated by the node, in subset order.
func (idx *Index) Members(n Node) []string {
	if !idx.owns(n) {
		return nil
	}
	set := n.memberSet()
	ids := make([]string, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		ids = append(ids, idx.records[it.Next()].ID)
	}
	return ids
}

// Leaves returns the records aggregated by the node, in subset order.
func (idx *Index) Leaves(n Node) []Record {
	if !idx.owns(n) {
		return nil
	}
	set := n.memberSet()
	out := make([]Record, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		out = append(out, idx.records[it.Next()])
	}
	return out
}

// Children returns the nodes the aggregate splits into one zoom level down.
func (idx *Index) Children(n Node) []Node {
	if !idx.owns(n) || n.Kind == Leaf || n.Zoom > idx.Options.MaxZoom {
		return nil
	}
	next := idx.levels[n.Zoom+1]
	seen := map[int32]struct{}{}
	var out []Node
	it := n.members.Iterator()
	for it.HasNext() {
		o := next.owner[it.Next()]
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, *next.nodes[o])
	}
	return out
}

// owns reports whether the node was produced by this generation.
func (idx *Index) owns(n Node) bool {
	return idx != nil && n.Generation == idx.Generation
}

func (idx *Index) limitZoom(zoom int) int {
	if zoom > idx.Options.MaxZoom+1 {
		zoom = idx.Options.MaxZoom + 1
	}
	if zoom < idx.Options.MinZoom {
		zoom = idx.Options.MinZoom
	}
	return zoom
}

////////// End of Cluster implementation

/////////////////////////////////
// private stuff
/////////////////////////////////

func newTree(nodes []*Node, nodeSize int) *kdbush.KDBush {
	if len(nodes) == 0 {
		return nil
	}
	return kdbush.NewBush(nodesToPoints(nodes), nodeSize)
}

func nodesToPoints(nodes []*Node) []kdbush.Point {
	result := make([]kdbush.Point, len(nodes))
	for i, v := range nodes {
		result[i] = v
	}
	return result
}
