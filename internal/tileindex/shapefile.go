package tileindex

import (
	"fmt"
	"io"

	"github.com/jonas-p/go-shp"

	"github.com/kiesman99/imgdice/pkg/tile"
)

// ShapefileReader reads polygons from an ESRI shapefile.
type ShapefileReader struct {
	shape *shp.Reader
}

// OpenShapefile opens the .shp file at path.
func OpenShapefile(path string) (*ShapefileReader, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	return &ShapefileReader{shape: shape}, nil
}

func (r *ShapefileReader) Next() (tile.BBox, error) {
	if !r.shape.Next() {
		if err := r.shape.Err(); err != nil {
			return tile.BBox{}, err
		}
		return tile.BBox{}, io.EOF
	}

	n, p := r.shape.Shape()
	switch s := p.(type) {
	case *shp.Polygon:
		return bboxFromBox(n, s.BBox(), 0, 0), nil
	case *shp.PolygonZ:
		return bboxFromBox(n, s.BBox(), s.ZRange[0], s.ZRange[1]), nil
	case *shp.PolygonM:
		return bboxFromBox(n, s.BBox(), 0, 0), nil
	default:
		return tile.BBox{}, &GeometryError{ID: n, Type: fmt.Sprintf("%T", p)}
	}
}

func (r *ShapefileReader) Close() error {
	r.shape.Close()
	return nil
}

func bboxFromBox(id int, box shp.Box, minZ, maxZ float64) tile.BBox {
	return tile.BBox{
		ID:  id,
		Min: tile.Point{X: box.MinX, Y: box.MinY, Z: minZ},
		Max: tile.Point{X: box.MaxX, Y: box.MaxY, Z: maxZ},
	}
}
