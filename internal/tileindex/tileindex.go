// Package tileindex reads tile boundary polygons and reduces each one to its
// bounding box.
package tileindex

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kiesman99/imgdice/pkg/tile"
)

// Reader yields tile bounding boxes one at a time.
type Reader interface {
	// Next returns the next tile. It returns io.EOF after the last one.
	// A *GeometryError reports a bad record; the reader stays usable and
	// the following call moves on to the next record.
	Next() (tile.BBox, error)
	Close() error
}

// GeometryError reports a tile index record that is not a polygon.
type GeometryError struct {
	ID   int    // record number, starting at 0
	Type string // the shape type that was found
	Err  error
}

func (e *GeometryError) Error() string {
	msg := fmt.Sprintf("tile index record %d: unexpected shape type %s", e.ID, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// Open picks a reader by file extension: shapefiles and GeoJSON are read
// natively, every other format goes through OGR.
func Open(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return OpenShapefile(path)
	case ".geojson", ".json":
		return OpenGeoJSON(path)
	default:
		return OpenOGR(path)
	}
}
