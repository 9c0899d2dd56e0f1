package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	cluster "github.com/georgeryan15/globalpower"
	"github.com/georgeryan15/globalpower/internal/logger"
	"github.com/georgeryan15/globalpower/loader"
)

func main() {
	data := flag.String("data", "./testdata/plants.geojson", "GeoJSON file, .zst is decompressed")
	categories := flag.String("categories", "", "comma separated categories to keep")
	zoom := flag.Float64("zoom", 2, "map zoom")
	lon := flag.Float64("lon", 0, "viewport center longitude")
	lat := flag.Float64("lat", 20, "viewport center latitude")
	radius := flag.Float64("radius", 40, "clustering radius in pixels")
	snapshot := flag.String("save", "", "write the active records to this file (.zst compresses)")
	flag.Parse()

	logger.Setup()
	res, err := loader.Load(*data)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	for _, w := range res.Warnings {
		logger.L().Warn("record_warning", "id", w.ID, "reason", w.Reason)
	}

	c := cluster.NewCluster()
	c.Radius = *radius
	e, err := cluster.NewEngine(res.Records, c, cluster.WithLogger(logger.L()))
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	if *categories != "" {
		var in cluster.FilterInput
		for _, s := range strings.Split(*categories, ",") {
			in.Categories = append(in.Categories, cluster.Category(strings.TrimSpace(s)))
		}
		snap := e.SetFilter(in)
		logger.L().Info("filter_applied", "active", snap.Active, "total", snap.Total)
	}

	v := cluster.ViewportFromCenter(cluster.GeoCoordinates{Lon: *lon, Lat: *lat}, *zoom, 1280, 720, c.TileSize)
	result := e.Render(v)
	fmt.Printf("Getting %v nodes at zoom %v for %+v\n", len(result.Nodes), result.Zoom, v.Bounds)

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(resultJSON))

	if *snapshot != "" {
		if err := loader.Save(*snapshot, e.Active()); err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
	}
}
