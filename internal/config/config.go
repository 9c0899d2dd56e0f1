// Package config reads the map server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	cluster "github.com/georgeryan15/globalpower"
)

// Config holds the server settings. Zero values never reach the engine:
// Load fills every field from the defaults first.
type Config struct {
	Addr      string
	DataPath  string
	CacheSize int
	Cluster   cluster.Cluster
}

// Load reads .env files if present, then GLOBALPOWER_* variables.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	cfg := &Config{
		Addr:      getenv("GLOBALPOWER_ADDR", ":8080"),
		DataPath:  getenv("GLOBALPOWER_DATA", "testdata/plants.geojson"),
		CacheSize: 4,
		Cluster:   *cluster.NewCluster(),
	}

	var err error
	if cfg.CacheSize, err = intVar("GLOBALPOWER_CACHE_SIZE", cfg.CacheSize); err != nil {
		return nil, err
	}
	if cfg.Cluster.MinZoom, err = intVar("GLOBALPOWER_MIN_ZOOM", cfg.Cluster.MinZoom); err != nil {
		return nil, err
	}
	if cfg.Cluster.MaxZoom, err = intVar("GLOBALPOWER_MAX_ZOOM", cfg.Cluster.MaxZoom); err != nil {
		return nil, err
	}
	if cfg.Cluster.TileSize, err = intVar("GLOBALPOWER_TILE_SIZE", cfg.Cluster.TileSize); err != nil {
		return nil, err
	}
	if cfg.Cluster.Radius, err = floatVar("GLOBALPOWER_RADIUS", cfg.Cluster.Radius); err != nil {
		return nil, err
	}
	if cfg.Cluster.DetailZoom, err = floatVar("GLOBALPOWER_DETAIL_ZOOM", cfg.Cluster.DetailZoom); err != nil {
		return nil, err
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("GLOBALPOWER_CACHE_SIZE must be positive, got %d", cfg.CacheSize)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intVar(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func floatVar(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
