// Package loader reads and writes the record collection as a GeoJSON
// FeatureCollection of points, optionally zstd compressed.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	cluster "github.com/georgeryan15/globalpower"
)

var ErrDuplicateID = errors.New("duplicate record id")

// Warning reports a feature that was loaded with a problem: it cannot be
// clustered or one of its attributes was replaced.
type Warning struct {
	ID     string
	Reason string
}

func (w Warning) String() string {
	return w.ID + ": " + w.Reason
}

// Result of a load. Records keep the file order.
type Result struct {
	Records  []cluster.Record
	Warnings []Warning
}

// Load reads a file, files ending with .zst are decompressed.
func Load(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1024*1024)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return Decode(r)
}

// Decode parses a FeatureCollection.
func Decode(r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	res := &Result{Records: make([]cluster.Record, 0, len(fc.Features))}
	seen := make(map[string]struct{}, len(fc.Features))
	for i, f := range fc.Features {
		rec, warns := toRecord(i, f)
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		for _, w := range warns {
			res.Warnings = append(res.Warnings, Warning{ID: rec.ID, Reason: w})
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func toRecord(i int, f *geojson.Feature) (cluster.Record, []string) {
	p := f.Properties
	var warns []string
	rec := cluster.Record{
		ID:         recordID(i, f),
		Lon:        math.NaN(),
		Lat:        math.NaN(),
		Category:   cluster.CategoryOther,
		Status:     cluster.StatusUnknown,
		Country:    p.MustString("country", ""),
		Capacity:   number(p, "capacity_mw"),
		Generation: number(p, "generation_gwh"),
		Year:       number(p, "year"),
		Name:       p.MustString("name", ""),
		Owner:      p.MustString("owner", ""),
		Source:     p.MustString("source", ""),
	}

	if v, ok := p["category"].(string); ok {
		var known bool
		if rec.Category, known = cluster.ParseCategory(v); !known {
			warns = append(warns, fmt.Sprintf("unknown category %q, using %s", v, cluster.CategoryOther))
		}
	}
	if v, ok := p["status"].(string); ok {
		var known bool
		if rec.Status, known = cluster.ParseStatus(v); !known {
			warns = append(warns, fmt.Sprintf("unknown status %q, using %s", v, cluster.StatusUnknown))
		}
	}

	pt, ok := f.Geometry.(orb.Point)
	switch {
	case f.Geometry == nil:
		return rec, append(warns, "missing geometry")
	case !ok:
		return rec, append(warns, "geometry is "+f.Geometry.GeoJSONType()+", not Point")
	}
	rec.Lon, rec.Lat = pt.Lon(), pt.Lat()
	if !rec.Valid() {
		return rec, append(warns, "coordinate out of range")
	}
	return rec, warns
}

func recordID(i int, f *geojson.Feature) string {
	if id, ok := f.Properties["id"]; ok && id != nil {
		return fmt.Sprint(id)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return "feature-" + strconv.Itoa(i)
}

// number reads a numeric property, strings are parsed. Missing or
// unparsable values are NaN.
func number(p geojson.Properties, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

// Encode writes records as a FeatureCollection, zstd compressed when
// compress is set. Records without usable coordinates are left out.
func Encode(w io.Writer, records []cluster.Record, compress bool) error {
	fc := geojson.NewFeatureCollection()
	for i := range records {
		if records[i].Valid() {
			fc.Append(toFeature(&records[i]))
		}
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode feature collection: %w", err)
	}

	if !compress {
		_, err = w.Write(raw)
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("compress records: %w", err)
	}
	return enc.Close()
}

// Save writes records to path, compressing when it ends with .zst.
func Save(path string, records []cluster.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	bw := bufio.NewWriterSize(f, 1024*1024)
	if err := Encode(bw, records, strings.HasSuffix(path, ".zst")); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return f.Close()
}

func toFeature(r *cluster.Record) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{r.Lon, r.Lat})
	f.Properties["id"] = r.ID
	f.Properties["category"] = string(r.Category)
	f.Properties["status"] = string(r.Status)
	f.Properties["country"] = r.Country
	setNumber(f.Properties, "capacity_mw", r.Capacity)
	setNumber(f.Properties, "generation_gwh", r.Generation)
	setNumber(f.Properties, "year", r.Year)
	for k, v := range map[string]string{"name": r.Name, "owner": r.Owner, "source": r.Source} {
		if v != "" {
			f.Properties[k] = v
		}
	}
	return f
}

// NaN is not valid JSON, unknown numbers are left out
func setNumber(p geojson.Properties, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p[key] = v
}
