// Package server exposes the engine over HTTP for the demo map.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cluster "github.com/georgeryan15/globalpower"
	"github.com/georgeryan15/globalpower/internal/metrics"
)

type Server struct {
	engine  *cluster.Engine
	metrics *metrics.Metrics
	log     *slog.Logger
	router  *gin.Engine
}

func New(e *cluster.Engine, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{engine: e, metrics: m, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), s.access(), cors())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "records": len(e.Records())})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	api.GET("/domain", s.domain)
	api.GET("/filter", s.getFilter)
	api.PUT("/filter", s.putFilter)
	api.GET("/markers", s.markers)
	api.GET("/tiles/:z/:x/:y", s.tile)
	api.POST("/markers/:id/click", s.markerClick)
	api.POST("/clusters/:id/click", s.clusterClick)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http_listen", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) access() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		s.log.Debug("http_access",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
		if s.metrics != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type filterResponse struct {
	Filter     cluster.FilterInput `json:"filter"`
	Generation uuid.UUID           `json:"generation"`
	Active     int                 `json:"active"`
	Total      int                 `json:"total"`
}

func (s *Server) domain(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Domain())
}

func (s *Server) getFilter(c *gin.Context) {
	c.JSON(http.StatusOK, filterResponseOf(s.engine.Snapshot()))
}

func (s *Server) putFilter(c *gin.Context) {
	var in cluster.FilterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter: " + err.Error()})
		return
	}
	resp := filterResponseOf(s.engine.SetFilter(in))
	s.log.Info("filter_applied", "active", resp.Active, "total", resp.Total)
	c.JSON(http.StatusOK, resp)
}

func filterResponseOf(snap cluster.Snapshot) filterResponse {
	return filterResponse{
		Filter:     snap.Filter.Input(),
		Generation: snap.Generation,
		Active:     snap.Active,
		Total:      snap.Total,
	}
}

func (s *Server) markers(c *gin.Context) {
	v, err := viewportQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list := s.engine.Render(v)
	c.Header("X-Generation", list.Generation.String())
	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, toFeatureCollection(list))
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) tile(c *gin.Context) {
	var zxy [3]int
	for i, key := range []string{"z", "x", "y"} {
		v, err := strconv.Atoi(c.Param(key))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s parameter", key)})
			return
		}
		zxy[i] = v
	}
	z, x, y := zxy[0], zxy[1], zxy[2]
	if z < 0 || z > cluster.MaxZoomLimit+1 || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile outside the grid"})
		return
	}
	list := s.engine.Tile(x, y, z)
	c.Header("X-Generation", list.Generation.String())
	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, toFeatureCollection(list))
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) markerClick(c *gin.Context) {
	target, err := s.engine.ResolveMarkerClick(c.Param("id"))
	if errors.Is(err, cluster.ErrUnknownRecord) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if !target.Center.Valid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "record has no usable coordinates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": target})
}

type clusterClickRequest struct {
	Generation uuid.UUID        `json:"generation"`
	Viewport   cluster.Viewport `json:"viewport"`
}

func (s *Server) clusterClick(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cluster id"})
		return
	}
	var req clusterClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Generation == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing generation"})
		return
	}
	target, ok := s.engine.ResolveClusterClick(id, req.Generation, req.Viewport)
	if !ok {
		s.log.Debug("stale_cluster_click", "id", id, "generation", req.Generation)
	}
	c.JSON(http.StatusOK, gin.H{"target": target, "stale": !ok})
}

// viewportQuery reads west, south, east, north and zoom.
func viewportQuery(c *gin.Context) (cluster.Viewport, error) {
	var vals [5]float64
	for i, key := range []string{"west", "south", "east", "north", "zoom"} {
		v, err := strconv.ParseFloat(c.Query(key), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return cluster.Viewport{}, fmt.Errorf("invalid %s parameter", key)
		}
		vals[i] = v
	}
	box := cluster.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if box.South > box.North {
		return cluster.Viewport{}, errors.New("invalid bounds: south above north")
	}
	center := cluster.GeoCoordinates{Lon: (box.West + box.East) / 2, Lat: (box.South + box.North) / 2}
	if box.West > box.East {
		center.Lon = (box.West + box.East + 360) / 2
		if center.Lon > 180 {
			center.Lon -= 360
		}
	}
	return cluster.Viewport{Center: center, Zoom: vals[4], Bounds: box}, nil
}
