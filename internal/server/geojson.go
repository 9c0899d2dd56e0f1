package server

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	cluster "github.com/georgeryan15/globalpower"
)

// toFeatureCollection renders the list as GeoJSON points. Aggregates carry
// cluster, cluster_id and point_count; leaves carry the record attributes.
func toFeatureCollection(list cluster.RenderList) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range list.Nodes {
		f := geojson.NewFeature(orb.Point{n.Center.Lon, n.Center.Lat})
		f.ID = n.ID
		f.Properties["cluster"] = n.IsCluster()
		f.Properties["cluster_id"] = n.ID
		f.Properties["point_count"] = n.NumPoints
		f.Properties["zoom"] = list.Zoom
		f.Properties["generation"] = list.Generation.String()
		if r := n.Record; r != nil {
			f.Properties["id"] = r.ID
			f.Properties["name"] = r.Name
			f.Properties["category"] = string(r.Category)
			f.Properties["status"] = string(r.Status)
			f.Properties["country"] = r.Country
			setKnown(f.Properties, "capacity_mw", r.Capacity)
			setKnown(f.Properties, "generation_gwh", r.Generation)
			setKnown(f.Properties, "year", r.Year)
		}
		fc.Append(f)
	}
	return fc
}

func setKnown(p geojson.Properties, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p[key] = v
}
