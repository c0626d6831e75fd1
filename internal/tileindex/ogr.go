package tileindex

import (
	"fmt"
	"io"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/kiesman99/imgdice/internal/raster/gdalraster"
	"github.com/kiesman99/imgdice/pkg/tile"
)

// OGRReader reads polygons from the first layer of any OGR vector dataset
// (GeoPackage, FlatGeobuf, KML, ...).
type OGRReader struct {
	ds    *godal.Dataset
	layer godal.Layer
	next  int
}

// OpenOGR opens path with GDAL's vector drivers.
func OpenOGR(path string) (*OGRReader, error) {
	gdalraster.Register()
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, err
	}
	layers := ds.Layers()
	if len(layers) == 0 {
		ds.Close()
		return nil, fmt.Errorf("%s has no vector layer", path)
	}
	return &OGRReader{ds: ds, layer: layers[0]}, nil
}

func (r *OGRReader) Next() (tile.BBox, error) {
	feat := r.layer.NextFeature()
	if feat == nil {
		return tile.BBox{}, io.EOF
	}
	defer feat.Close()
	id := r.next
	r.next++

	g := feat.Geometry()
	if g == nil || g.Empty() {
		return tile.BBox{}, &GeometryError{ID: id, Type: "empty"}
	}
	wkt, err := g.WKT()
	if err != nil {
		return tile.BBox{}, &GeometryError{ID: id, Type: "unknown", Err: err}
	}
	if kind := geometryKind(wkt); kind != "POLYGON" && kind != "MULTIPOLYGON" {
		return tile.BBox{}, &GeometryError{ID: id, Type: kind}
	}

	b, err := g.Bounds()
	if err != nil {
		return tile.BBox{}, &GeometryError{ID: id, Type: "polygon", Err: err}
	}
	return tile.BBox{
		ID:  id,
		Min: tile.Point{X: b[0], Y: b[1]},
		Max: tile.Point{X: b[2], Y: b[3]},
	}, nil
}

func (r *OGRReader) Close() error {
	return r.ds.Close()
}

// geometryKind returns the leading WKT keyword, e.g. "POLYGON" for "POLYGON Z ((...))".
func geometryKind(wkt string) string {
	kind, _, _ := strings.Cut(strings.TrimSpace(wkt), "(")
	kind, _, _ = strings.Cut(strings.TrimSpace(kind), " ")
	return strings.ToUpper(kind)
}
