// Package raster defines the raster I/O capability used by the dicer.
//
// Implementations live in subpackages: gdalraster wraps GDAL through godal,
// rastertest keeps datasets in memory for tests.
package raster

import (
	"fmt"

	"github.com/kiesman99/imgdice/pkg/tile"
)

// DataType is the pixel type of a band.
type DataType int

const (
	Unknown DataType = iota
	Byte
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

func (dt DataType) String() string {
	switch dt {
	case Byte:
		return "Byte"
	case UInt16:
		return "UInt16"
	case Int16:
		return "Int16"
	case UInt32:
		return "UInt32"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	}
	return fmt.Sprintf("Unknown(%d)", int(dt))
}

// Driver opens existing rasters and creates new ones.
type Driver interface {
	// Open opens path read-only. Each call returns an independent handle.
	Open(path string) (Dataset, error)

	// Create creates a new raster at path. The returned dataset must be
	// closed to flush it.
	Create(path string, width, height, bands int, dtype DataType) (Dataset, error)

	// Remove deletes a raster previously created at path, if any.
	Remove(path string) error
}

// Dataset is an open raster.
type Dataset interface {
	// Size returns the raster dimensions in pixels.
	Size() (width, height int)
	BandCount() int

	GeoTransform() (tile.GeoTransform, error)
	SetGeoTransform(gt tile.GeoTransform) error

	// Projection returns the spatial reference as WKT, empty if unset.
	Projection() string
	SetProjection(wkt string) error

	// Band returns band i, counting from 1.
	Band(i int) Band

	Close() error
}

// Band is one channel of a Dataset.
type Band interface {
	DataType() DataType
	NoData() (float64, bool)
	SetNoData(nodata float64) error

	// Read fills buf with the width x height window starting at pixel x,y.
	Read(x, y int, buf []float64, width, height int) error

	// Write stores buf into the width x height window starting at pixel x,y.
	Write(x, y int, buf []float64, width, height int) error
}
