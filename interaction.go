package cluster

// Target is where the map should fly after a click.
type Target struct {
	Center GeoCoordinates `json:"center"`
	Zoom   float64        `json:"zoom"`
}

// ResolveMarkerClick centers a record at the fixed detail zoom.
func (c *Cluster) ResolveMarkerClick(r Record) Target {
	return Target{Center: r.GetCoordinates(), Zoom: c.DetailZoom}
}

// ExpansionZoom returns the smallest zoom at which the members of n are no
// longer held by a single node. Levels only split as zoom grows, so it is
// enough to follow the first member. A group that never splits up to
// MaxZoom is expanded at MaxZoom+1, where every record is a leaf.
func (idx *Index) ExpansionZoom(n Node) int {
	if !idx.owns(n) {
		return n.Zoom
	}
	if n.Kind == Leaf {
		return idx.limitZoom(n.Zoom)
	}
	first := n.firstMember()
	for z := n.Zoom + 1; z <= idx.Options.MaxZoom; z++ {
		lv := idx.levels[z]
		if lv.nodes[lv.owner[first]].NumPoints < n.NumPoints {
			return z
		}
	}
	return idx.Options.MaxZoom + 1
}

// ResolveClusterClick flies to the node at its expansion zoom. A node from
// another generation, or a missing index, resolves to the current viewport
// and false: rebuilds racing with clicks are expected.
func (idx *Index) ResolveClusterClick(n Node, current Viewport) (Target, bool) {
	if !idx.owns(n) {
		return Target{Center: current.Center, Zoom: current.Zoom}, false
	}
	if n.Kind == Leaf && n.Record != nil {
		return idx.Options.ResolveMarkerClick(*n.Record), true
	}
	return Target{Center: n.Center, Zoom: float64(idx.ExpansionZoom(n))}, true
}
