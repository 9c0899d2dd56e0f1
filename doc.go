// MIT License
//
// Copyright (c) 2016 MadAppGang

// Clustering and filtering engine for maps of geolocated facilities.
//
// The engine takes a read-only collection of records, a filter state and a
// viewport and produces the exact set of markers to draw: aggregates of
// nearby records when zoomed out, single records when zoomed in.
//
// Clusters are connected components of the graph joining records closer
// than Radius pixels in web mercator at a zoom. Each zoom level from MinZoom
// to MaxZoom is built once per active subset and indexed with a KD-tree
// (https://github.com/MadAppGang/kdbush), so viewport queries are cheap and
// can run on every map move.
//
// Very easy to use:
//
//	//1.Create the engine with your records
//	e, err := cluster.NewEngine(records, cluster.NewCluster())
//
//	//2.Apply a filter edit, rebuilds only when the active subset changes
//	e.SetFilter(cluster.FilterInput{Categories: []cluster.Category{cluster.CategoryWind}})
//
//	//3.Get the markers for the viewport
//	nodes := e.Query(viewport)
//
//	//4.Resolve a click on an aggregate
//	target, ok := e.ResolveClusterClick(node.ID, node.Generation, viewport)
//
//	//5.Or get the markers of one z/x/y tile
//	list := e.Tile(x, y, z)
//
// Leaf ids are positions of records inside the clustered subset.
// Aggregates have generated ids that encode their zoom, started at ClusterIdxSeed:
// ClusterIdxSeed is the next power of ten above the subset length, and an
// aggregate of zoom z gets ClusterIdxSeed*(z+1)+ordinal.
//
// For example, if the subset length is 78, ClusterIdxSeed == 100,
// if the subset length is 991, ClusterIdxSeed == 1000
// etc
package cluster
